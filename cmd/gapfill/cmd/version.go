package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the gapfill CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gapfill version %s\n", version)
		fmt.Println("An intraday gap-fill trading bot for equities")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gapfill",
	Short: "An intraday gap-fill trading bot for equities",
	Long: `Gapfill is an automated intraday equity trading bot.

Each trading day it:
  - Waits for the venue to open
  - Scans a configured universe for qualifying overnight gaps down
  - Confirms each candidate with an oversold momentum reading
  - Sizes positions from a risk budget and a per-instrument cash budget
  - Buys, attaches a protective stop, and monitors for the gap to fill
  - Force-closes whatever is still held at the end of the session

Brokerage credentials come from the T212_API_KEY and T212_API_SECRET
environment variables (a .env file is honored). Market data comes from
Alpaca via the APCA_* environment variables.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

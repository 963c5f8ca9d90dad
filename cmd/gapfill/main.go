package main

import (
	"os"

	"github.com/rustyeddy/gapfill/cmd/gapfill/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

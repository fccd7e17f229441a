package main

import (
	"os"

	"github.com/civicpulse/poll-indexer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides the entry point for the resync CLI.
package main

import (
	"os"

	"github.com/resync-ops/resync/cmd/resync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

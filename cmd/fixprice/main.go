// Package main is the entry point for the fixprice CLI.
package main

import (
	"os"

	"github.com/jmylchreest/fixprice/cmd/fixprice/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}

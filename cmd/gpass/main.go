// Package main is the entry point for the GuardiaPass CLI.
package main

import (
	"os"

	"github.com/jgutierrezgil/guardiapass/cmd/gpass/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

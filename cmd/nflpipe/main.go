// Package main is the nflpipe command-line entry point.
package main

import (
	"os"

	"github.com/leapstack-labs/nflpipe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

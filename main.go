// Package main is the entry point for the questchain raid server.
package main

import (
	"fmt"
	"os"

	"github.com/belulok/quest-chain/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

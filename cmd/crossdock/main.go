// Package main provides the entry point for the crossdock CLI.
package main

import (
	"os"

	"github.com/uqsoft/crossdock/cmd/crossdock/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

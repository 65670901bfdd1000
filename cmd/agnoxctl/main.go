// Package main is the entry point for the Agnox CLI.
// The CLI is the developer terminal tool for interacting with the Agnox API.
package main

import (
	"os"

	"github.com/keinar/Agnox-sub002/cmd/agnoxctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

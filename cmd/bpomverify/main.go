// Package main provides the entry point for the bpomverify CLI.
package main

import (
	"os"

	"github.com/bpomverify/bpomverify/cmd/bpomverify/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

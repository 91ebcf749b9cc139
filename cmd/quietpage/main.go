// Package main provides the entry point for the quietpage server.
package main

import (
	"os"

	"github.com/quietpage/quietpage/cmd/quietpage/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

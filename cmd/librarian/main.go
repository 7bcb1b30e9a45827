// Package main provides the entry point for the librarian CLI.
package main

import (
	"os"

	"github.com/librarian-ai/librarian/cmd/librarian/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

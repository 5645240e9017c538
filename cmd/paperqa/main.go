// Command paperqa is the entry point for the paper QA service.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// REST API for paper ingestion, search, question answering, and extraction.
package main

import (
	"fmt"
	"os"

	"github.com/evidara/paperqa-go/cmd/paperqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

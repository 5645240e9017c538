// Package commands defines all Cobra CLI commands for the paperqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/evidara/paperqa-go/internal/audit"
	"github.com/evidara/paperqa-go/internal/config"
	"github.com/evidara/paperqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "paperqa",
		Short: "Paper QA — retrieval-augmented question answering over research papers",
		Long: `Paper QA is a local-first service for asking questions about your own
research papers.

Uploaded papers are chunked, embedded, and indexed for semantic search.
Questions are answered with citations back to the exact passages used,
and papers can be mined for PICO elements and biomedical entities.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.paperqa/config.yaml).
See 'paperqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.paperqa/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewVersionCmd(),
	)

	return root
}

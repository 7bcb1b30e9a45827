// Package cmd provides the CLI commands for librarian.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/librarian-ai/librarian/internal/logging"
	"github.com/librarian-ai/librarian/pkg/version"
)

// Global flags, bound on the root command.
var (
	flagConfig   string
	flagDataDir  string
	flagLogLevel string
	flagJSON     bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the librarian CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "librarian",
		Short: "Incremental document indexing and semantic retrieval",
		Long: `Librarian indexes a directory of documents into a local vector
index and answers natural-language queries against it.

Indexing is incremental: unchanged files are skipped, changed files are
re-embedded, deleted files are swept out. The index lives under the data
directory and survives restarts.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("librarian version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default: ./.librarian.yaml)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override the data directory")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Emit machine-readable JSON output")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with signal-aware context cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// setupLogging routes slog to the configured log file. Stderr stays
// clean for command output unless debug level is requested.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		FilePath:      cfg.LogPath(),
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		WriteToStderr: cfg.Logging.Level == "debug",
	})
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

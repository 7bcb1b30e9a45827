package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/librarian-ai/librarian/internal/ingest"
	"github.com/librarian-ai/librarian/internal/output"
	"github.com/librarian-ai/librarian/internal/store"
)

// newIngestCmd creates the ingest command.
func newIngestCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "ingest <directory>",
		Short: "Index a directory of documents incrementally",
		Long: `Scan the directory for supported documents, skip unchanged files,
re-embed changed ones, and sweep deleted ones out of the index.

With --force every file is reindexed regardless of its stored hash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			col, embedder, err := openIndex(ctx, cfg)
			if err != nil && !errors.Is(err, store.ErrReindexRequired) {
				return err
			}
			defer closeIndex(col, embedder)

			pipeline := ingest.NewPipeline(cfg, col, embedder, nil)
			summary, err := pipeline.Run(ctx, args[0], force)
			if err != nil {
				if errors.Is(err, store.ErrLocked) {
					return fmt.Errorf("another librarian process is writing the index: %w", err)
				}
				return err
			}

			return output.NewPrinter(cmd.OutOrStdout(), flagJSON).Summary(summary)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reindex every file, ignoring stored hashes")

	return cmd
}

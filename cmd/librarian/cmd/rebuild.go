package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/librarian-ai/librarian/internal/output"
	"github.com/librarian-ai/librarian/internal/store"
)

// newRebuildCmd creates the rebuild command.
func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed the whole index from stored chunk text",
		Long: `Regenerate every vector from the chunk text kept in the metadata
sidecar. Useful after switching embedding models or when the vector
graph is suspect. Source files are not read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			// Load first: its recovery branch takes the lock itself.
			col, embedder, err := openIndex(ctx, cfg)
			if err != nil && !errors.Is(err, store.ErrReindexRequired) {
				return err
			}
			defer closeIndex(col, embedder)

			lock, err := store.NewIndexLock(cfg.IndexDir())
			if err != nil {
				return err
			}
			if err := lock.TryAcquire(); err != nil {
				return fmt.Errorf("another librarian process is writing the index: %w", err)
			}
			defer lock.Release()

			if err := col.RebuildFromMetadata(ctx, embedder); err != nil {
				return err
			}

			stats := col.CollectionStats()
			return output.NewPrinter(cmd.OutOrStdout(), flagJSON).KV([][2]string{
				{"Rebuilt chunks", strconv.Itoa(stats.Vectors)},
				{"Files", strconv.Itoa(stats.Files)},
				{"Dimensions", strconv.Itoa(stats.Dimensions)},
			})
		},
	}

	return cmd
}

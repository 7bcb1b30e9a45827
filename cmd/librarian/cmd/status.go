package cmd

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/librarian-ai/librarian/internal/output"
	"github.com/librarian-ai/librarian/internal/store"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printer := output.NewPrinter(cmd.OutOrStdout(), flagJSON)

			health := "ok"
			col, embedder, err := openIndex(cmd.Context(), cfg)
			if err != nil {
				if !errors.Is(err, store.ErrReindexRequired) {
					return err
				}
				health = "reset, reindex required"
			}
			defer closeIndex(col, embedder)

			stats := col.CollectionStats()
			return printer.KV([][2]string{
				{"Index", cfg.IndexDir()},
				{"Health", health},
				{"Files", strconv.Itoa(stats.Files)},
				{"Chunks", strconv.Itoa(stats.Vectors)},
				{"Dimensions", strconv.Itoa(stats.Dimensions)},
				{"Provider", cfg.Embeddings.Provider},
				{"Model", embedder.ModelName()},
			})
		},
	}

	return cmd
}

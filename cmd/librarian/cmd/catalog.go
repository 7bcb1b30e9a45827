package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/librarian-ai/librarian/internal/catalog"
	"github.com/librarian-ai/librarian/internal/store"
)

// newCatalogCmd creates the catalog command.
func newCatalogCmd() *cobra.Command {
	var outFile string
	var write bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List everything in the index",
		Long: `Render a per-document inventory of the index: title, category
tags, chunk count, and indexing time. Reads only the metadata sidecar.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			col, embedder, err := openIndex(cmd.Context(), cfg)
			if err != nil && !errors.Is(err, store.ErrReindexRequired) {
				return err
			}
			defer closeIndex(col, embedder)

			if write || outFile != "" {
				path := outFile
				if path == "" {
					path = filepath.Join(cfg.IndexDir(), "catalog.txt")
				}
				if err := catalog.WriteFile(path, col); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Catalog written to %s\n", path)
				return nil
			}
			return catalog.Render(cmd.OutOrStdout(), col)
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Write catalog.txt into the index directory")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Write the catalog to this file instead of stdout")

	return cmd
}

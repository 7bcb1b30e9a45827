package cmd

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/librarian-ai/librarian/internal/output"
	"github.com/librarian-ai/librarian/internal/retrieve"
	"github.com/librarian-ai/librarian/internal/store"
)

// newQueryCmd creates the query command.
func newQueryCmd() *cobra.Command {
	var (
		categories []string
		topK       int
		threshold  float64
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the index with a natural-language query",
		Long: `Embed the query and return the best-matching chunks, ranked by
similarity. Results can be restricted to category tags.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			query := strings.Join(args, " ")
			printer := output.NewPrinter(cmd.OutOrStdout(), flagJSON)

			col, embedder, err := openIndex(ctx, cfg)
			if err != nil {
				if errors.Is(err, store.ErrReindexRequired) {
					printer.Errorf("The index was corrupt and has been reset. Run 'librarian ingest' to rebuild it.")
					return err
				}
				return err
			}
			defer closeIndex(col, embedder)

			if topK <= 0 {
				topK = cfg.Retrieval.TopK
			}
			threshold = resolveThreshold(cmd.Flags().Changed("threshold"), threshold, cfg.Retrieval.ScoreThreshold)
			retriever := retrieve.NewRetriever(embedder, col, retrieve.Options{
				TopK:           topK,
				ScoreThreshold: threshold,
				SmartTopN:      cfg.Retrieval.SmartTopN,
				SmartThreshold: cfg.Retrieval.SmartThreshold,
				Logger:         slog.Default(),
			})

			results, err := retriever.Retrieve(ctx, query, categories)
			if errors.Is(err, retrieve.ErrNoResults) {
				return printer.NoResults(query)
			}
			if err != nil {
				return err
			}
			return printer.Results(query, results)
		},
	}

	cmd.Flags().StringSliceVar(&categories, "category", nil, "Restrict results to these category tags (repeatable)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity score, 0 disables the floor (default from config)")

	return cmd
}

// resolveThreshold picks the score floor for a query. An explicit flag
// wins over config, and setting it to zero turns the floor off rather
// than falling back to the configured value.
func resolveThreshold(set bool, flag, configured float64) float64 {
	if !set {
		return configured
	}
	if flag <= 0 {
		return -1
	}
	return flag
}

package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/librarian-ai/librarian/internal/ingest"
	"github.com/librarian-ai/librarian/internal/output"
	"github.com/librarian-ai/librarian/internal/store"
	"github.com/librarian-ai/librarian/internal/watcher"
)

// newWatchCmd creates the watch command.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Watch a directory and reindex on changes",
		Long: `Run an initial ingest, then keep watching the directory. Change
events are debounced into batches; each batch triggers one incremental
pipeline run. Stops on interrupt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			dir := args[0]
			printer := output.NewPrinter(cmd.OutOrStdout(), flagJSON)

			col, embedder, err := openIndex(ctx, cfg)
			if err != nil && !errors.Is(err, store.ErrReindexRequired) {
				return err
			}
			defer closeIndex(col, embedder)

			pipeline := ingest.NewPipeline(cfg, col, embedder, nil)
			summary, err := pipeline.Run(ctx, dir, false)
			if err != nil {
				return err
			}
			if err := printer.Summary(summary); err != nil {
				return err
			}

			batches, watchErrs, err := watcher.Watch(ctx, dir, watcher.Options{
				Debounce:   cfg.WatchDebounce(),
				Extensions: cfg.Ingest.Extensions,
				Logger:     slog.Default(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", dir)

			for {
				select {
				case <-ctx.Done():
					return nil

				case batch, ok := <-batches:
					if !ok {
						return nil
					}
					slog.Info("change batch received", slog.Int("events", len(batch)))
					summary, err := pipeline.Run(ctx, dir, false)
					if err != nil {
						if errors.Is(err, store.ErrLocked) {
							slog.Warn("skipping run, index locked by another process")
							continue
						}
						slog.Error("watch run failed", slog.String("error", err.Error()))
						printer.Errorf("reindex failed: %v", err)
						continue
					}
					if summary.Processed > 0 || summary.Removed > 0 {
						if err := printer.Summary(summary); err != nil {
							return err
						}
					}

				case werr, ok := <-watchErrs:
					if ok && werr != nil {
						slog.Warn("watcher error", slog.String("error", werr.Error()))
					}
				}
			}
		},
	}

	return cmd
}

package cmd

import (
	"context"
	"log/slog"

	"github.com/librarian-ai/librarian/internal/config"
	"github.com/librarian-ai/librarian/internal/embed"
	"github.com/librarian-ai/librarian/internal/store"
)

// loadConfig loads configuration and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(".", flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.Paths.DataDir = flagDataDir
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}
	return cfg, nil
}

// openIndex builds the embedder and loads the collection from disk.
// A load that ends in store.ErrReindexRequired is passed through to the
// caller; the collection is usable but empty.
func openIndex(ctx context.Context, cfg *config.Config) (*store.Collection, embed.Embedder, error) {
	embedder, err := embed.New(cfg, slog.Default())
	if err != nil {
		return nil, nil, err
	}

	col := store.NewCollection(store.Config{
		Dir:        cfg.IndexDir(),
		Dimensions: cfg.Embeddings.Dimensions,
		Logger:     slog.Default(),
	})
	if err := col.Load(ctx, embedder); err != nil {
		return col, embedder, err
	}
	return col, embedder, nil
}

func closeIndex(col *store.Collection, embedder embed.Embedder) {
	if col != nil {
		_ = col.Close()
	}
	if embedder != nil {
		_ = embedder.Close()
	}
}

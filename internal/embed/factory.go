package embed

import (
	"log/slog"
	"strings"

	"github.com/librarian-ai/librarian/internal/config"
)

// New builds the embedder stack from configuration: the selected provider
// wrapped in an LRU cache. With no explicit provider, the OpenAI client is
// used when an API key is present and the static embedder otherwise.
func New(cfg *config.Config, logger *slog.Logger) (Embedder, error) {
	provider := strings.ToLower(cfg.Embeddings.Provider)
	if provider == "" {
		if cfg.Embeddings.APIKey != "" {
			provider = "openai"
		} else {
			provider = "static"
		}
	}

	var (
		inner Embedder
		err   error
	)
	switch provider {
	case "static":
		inner = NewStaticEmbedder()
	default:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:   cfg.Embeddings.BaseURL,
			APIKey:    cfg.Embeddings.APIKey,
			Model:     cfg.Embeddings.Model,
			BatchSize: cfg.Embeddings.BatchSize,
			Timeout:   cfg.Embeddings.Timeout,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Info("embedder ready",
		slog.String("provider", provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	return NewCachedEmbedder(inner, cfg.Embeddings.CacheSize), nil
}

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	liberrors "github.com/librarian-ai/librarian/internal/errors"
)

// knownModelDimensions maps well-known embedding models to their output
// dimensions, used before the first response confirms the real value.
var knownModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI-compatible embedding client.
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	BatchSize int
	// Timeout bounds each HTTP request; the client itself carries no
	// timeout so retries control overall latency.
	Timeout time.Duration
	Retry   liberrors.RetryConfig
	Logger  *slog.Logger
}

// withDefaults fills unset fields.
func (c OpenAIConfig) withDefaults() OpenAIConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.BatchSize < MinBatchSize {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry = liberrors.EmbeddingRetryConfig()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
// Requests are retried with exponential backoff; exhaustion surfaces a
// retryable embedding error for the caller to attribute to its file.
type OpenAIEmbedder struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *slog.Logger

	mu         sync.RWMutex
	dimensions int
	closed     bool
}

// NewOpenAIEmbedder creates a client for an OpenAI-compatible embedding API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, liberrors.New(liberrors.ErrCodeConfigInvalid,
			"embedding API key is not set", nil).
			WithSuggestion("set LIBRARIAN_API_KEY or OPENAI_API_KEY, or use the static provider")
	}

	return &OpenAIEmbedder{
		cfg:        cfg,
		client:     &http.Client{},
		logger:     cfg.Logger,
		dimensions: knownModelDimensions[cfg.Model],
	}, nil
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts, splitting the input into
// API-sized batches. Order is preserved.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := liberrors.RetryWithResult(ctx, e.cfg.Retry, func() ([][]float32, error) {
			return e.embedOnce(ctx, texts[start:end])
		})
		if err != nil {
			return nil, liberrors.New(liberrors.ErrCodeEmbedUnavailable,
				fmt.Sprintf("embedding batch %d-%d failed", start, end-1), err)
		}
		results = append(results, vecs...)
	}

	return results, nil
}

// embedOnce performs a single API call for one batch.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, batch []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(embeddingRequest{
		Input:          batch,
		Model:          e.cfg.Model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(e.cfg.BaseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var parsed embeddingResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		e.logger.Warn("embedding API error",
			slog.Int("status", resp.StatusCode),
			slog.String("message", msg))
		return nil, fmt.Errorf("embedding API returned %d: %s", resp.StatusCode, msg)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(parsed.Data), len(batch))
	}

	vecs := make([][]float32, len(batch))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}

	e.recordDimensions(vecs[0])
	return vecs, nil
}

// recordDimensions captures the observed dimension from the first response.
func (e *OpenAIEmbedder) recordDimensions(vec []float32) {
	if len(vec) == 0 {
		return
	}
	e.mu.Lock()
	if e.dimensions == 0 {
		e.dimensions = len(vec)
	}
	e.mu.Unlock()
}

// Dimensions returns the embedding dimension. Zero means the dimension is
// not yet known for an unrecognized model; the first successful call fixes it.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.cfg.Model
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

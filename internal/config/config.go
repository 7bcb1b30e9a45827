package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete librarian configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Categories []string         `yaml:"categories" json:"categories"`
}

// PathsConfig configures where index artifacts live.
type PathsConfig struct {
	// DataDir is the root directory for index artifacts and logs.
	// Defaults to ~/.librarian.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ChunkingConfig configures the sliding-window chunker.
// Sizes are in characters, not bytes.
type ChunkingConfig struct {
	Size      int `yaml:"size" json:"size"`
	Overlap   int `yaml:"overlap" json:"overlap"`
	MinLength int `yaml:"min_length" json:"min_length"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "openai" or "static".
	// Empty defaults to "openai" when an API key is present, "static" otherwise.
	Provider  string `yaml:"provider" json:"provider"`
	Model     string `yaml:"model" json:"model"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	// Dimensions is 0 for auto-detection from the first response.
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
}

// RetrievalConfig configures search and the result filter chain.
type RetrievalConfig struct {
	// TopK is the number of nearest neighbors carried into filtering.
	TopK int `yaml:"top_k" json:"top_k"`
	// ScoreThreshold drops results scoring below it, subject to the
	// best-3 fallback when every candidate is below.
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold"`
	// SmartTopN and SmartThreshold control the high-confidence early exit:
	// when the top N results all score at or above the threshold, only
	// those N are returned.
	SmartTopN      int     `yaml:"smart_top_n" json:"smart_top_n"`
	SmartThreshold float64 `yaml:"smart_threshold" json:"smart_threshold"`
}

// IngestConfig configures the indexing pipeline.
type IngestConfig struct {
	// Extensions is the allowlist of ingestable file extensions.
	Extensions []string `yaml:"extensions" json:"extensions"`
	// MaxFileSizeMB caps individual source files; larger files are skipped.
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	Workers       int `yaml:"workers" json:"workers"`
	// WatchDebounce is how long the watcher coalesces change events
	// before triggering an incremental run.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format" json:"format"`
	// File is the log destination; empty logs to stderr only.
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
}

// defaultExtensions are the formats ingested without extra configuration.
var defaultExtensions = []string{".txt", ".md", ".markdown", ".rst", ".html"}

// defaultCategories is the fixed tag vocabulary. Tags outside this list
// are dropped at ingest time with a warning.
var defaultCategories = []string{
	"science", "history", "philosophy", "fiction",
	"technology", "reference", "biography",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Chunking: ChunkingConfig{
			Size:      1500,
			Overlap:   200,
			MinLength: 200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "",
			Model:      "text-embedding-3-small",
			BaseURL:    "https://api.openai.com/v1",
			BatchSize:  128,
			Dimensions: 0,
			Timeout:    60 * time.Second,
			CacheSize:  4096,
		},
		Retrieval: RetrievalConfig{
			TopK:           10,
			ScoreThreshold: 0.2,
			SmartTopN:      5,
			SmartThreshold: 0.4,
		},
		Ingest: IngestConfig{
			Extensions:    defaultExtensions,
			MaxFileSizeMB: 20,
			Workers:       runtime.NumCPU(),
			WatchDebounce: "2s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			MaxSizeMB: 10,
		},
		Categories: defaultCategories,
	}
}

// defaultDataDir returns the default artifact directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".librarian")
	}
	return filepath.Join(home, ".librarian")
}

// Load loads configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (explicit path, or .librarian.yaml / .librarian.yml in dir)
//  3. Environment variables (LIBRARIAN_*)
func Load(dir, explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if explicitPath != "" {
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromDir attempts to load .librarian.yaml or .librarian.yml from dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".librarian.yaml", ".librarian.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	// No config file is fine, defaults apply.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}
	if other.Chunking.MinLength != 0 {
		c.Chunking.MinLength = other.Chunking.MinLength
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.APIKey != "" {
		c.Embeddings.APIKey = other.Embeddings.APIKey
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.ScoreThreshold != 0 {
		c.Retrieval.ScoreThreshold = other.Retrieval.ScoreThreshold
	}
	if other.Retrieval.SmartTopN != 0 {
		c.Retrieval.SmartTopN = other.Retrieval.SmartTopN
	}
	if other.Retrieval.SmartThreshold != 0 {
		c.Retrieval.SmartThreshold = other.Retrieval.SmartThreshold
	}

	if len(other.Ingest.Extensions) > 0 {
		c.Ingest.Extensions = other.Ingest.Extensions
	}
	if other.Ingest.MaxFileSizeMB != 0 {
		c.Ingest.MaxFileSizeMB = other.Ingest.MaxFileSizeMB
	}
	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}
	if other.Ingest.WatchDebounce != "" {
		c.Ingest.WatchDebounce = other.Ingest.WatchDebounce
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}

	if len(other.Categories) > 0 {
		c.Categories = other.Categories
	}
}

// applyEnvOverrides applies LIBRARIAN_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LIBRARIAN_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("LIBRARIAN_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("LIBRARIAN_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("LIBRARIAN_EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("LIBRARIAN_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embeddings.APIKey == "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("LIBRARIAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LIBRARIAN_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("LIBRARIAN_SCORE_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && t >= 0 && t <= 1 {
			c.Retrieval.ScoreThreshold = t
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	if c.Chunking.MinLength < 0 {
		return fmt.Errorf("chunking.min_length must be non-negative, got %d", c.Chunking.MinLength)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval.score_threshold must be between 0 and 1, got %f", c.Retrieval.ScoreThreshold)
	}
	if c.Retrieval.SmartThreshold < 0 || c.Retrieval.SmartThreshold > 1 {
		return fmt.Errorf("retrieval.smart_threshold must be between 0 and 1, got %f", c.Retrieval.SmartThreshold)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"openai": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'openai', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if c.Ingest.MaxFileSizeMB <= 0 {
		return fmt.Errorf("ingest.max_file_size_mb must be positive, got %d", c.Ingest.MaxFileSizeMB)
	}
	if _, err := time.ParseDuration(c.Ingest.WatchDebounce); err != nil {
		return fmt.Errorf("ingest.watch_debounce is not a duration: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'text', got %s", c.Logging.Format)
	}

	return nil
}

// IndexDir returns the directory holding the vector index artifacts.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Paths.DataDir, "index")
}

// LogPath returns the log file path, honoring an explicit override.
func (c *Config) LogPath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.Paths.DataDir, "logs", "librarian.log")
}

// KnownCategory reports whether tag is part of the configured vocabulary.
// Comparison is case-insensitive.
func (c *Config) KnownCategory(tag string) bool {
	for _, known := range c.Categories {
		if strings.EqualFold(known, tag) {
			return true
		}
	}
	return false
}

// WatchDebounce returns the parsed debounce window.
// Validate guarantees the string parses.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Ingest.WatchDebounce)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// MaxFileSizeBytes returns the source-file size cap in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Ingest.MaxFileSizeMB) * 1024 * 1024
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

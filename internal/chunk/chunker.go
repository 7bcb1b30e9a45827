// Package chunk splits document text into overlapping fixed-size windows.
//
// The chunker is deliberately character-based: boundaries ignore sentence
// and paragraph structure so that the chunk sequence for a given text is a
// pure function of the text and the window parameters. Chunk ordinals must
// stay stable across reprocessing of unchanged files, and any smarter
// boundary heuristic would break that.
package chunk

import "strings"

// Config controls the sliding window. All sizes are in characters (runes).
type Config struct {
	// Size is the window width.
	Size int
	// Overlap is how many characters consecutive windows share.
	// Must be smaller than Size.
	Overlap int
	// MinLength drops windows whose trimmed content is shorter.
	MinLength int
}

// DefaultConfig returns the standard window parameters.
func DefaultConfig() Config {
	return Config{Size: 1500, Overlap: 200, MinLength: 200}
}

// Chunker produces overlapping text chunks from raw document text.
type Chunker struct {
	cfg Config
}

// New creates a Chunker. Zero or negative fields fall back to defaults,
// and an overlap that is not smaller than the size is clamped.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = def.Overlap
	}
	if cfg.Overlap >= cfg.Size {
		cfg.Overlap = cfg.Size - 1
	}
	if cfg.MinLength < 0 {
		cfg.MinLength = def.MinLength
	}
	return &Chunker{cfg: cfg}
}

// Split divides text into overlapping windows of cfg.Size characters,
// each advancing by Size-Overlap. Windows whose space-trimmed content is
// shorter than cfg.MinLength are dropped; the trimmed form is what gets
// kept. A short document can legitimately yield zero chunks, which callers
// must treat as nothing to index rather than an error.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	step := c.cfg.Size - c.cfg.Overlap
	for start := 0; start < len(runes); start += step {
		end := start + c.cfg.Size
		if end > len(runes) {
			end = len(runes)
		}

		window := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(window)) >= c.cfg.MinLength {
			chunks = append(chunks, window)
		}
	}
	return chunks
}

// Count returns how many chunks Split would produce without allocating them.
func (c *Chunker) Count(text string) int {
	return len(c.Split(text))
}

// Package track classifies source files as new, changed, unchanged, or
// removed by comparing content hashes against the persisted file entries.
// Classification is pure: it never mutates the entry map.
package track

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/librarian-ai/librarian/internal/store"
)

// State is the classification of one source file.
type State int

const (
	// StateNew means the file is present with no prior entry.
	StateNew State = iota
	// StateChanged means the content hash differs from the stored one,
	// or hashing failed, or a forced reindex was requested.
	StateChanged
	// StateUnchanged means the stored hash matches the file's content.
	StateUnchanged
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateChanged:
		return "changed"
	case StateUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Classification pairs the state with the file's current hash and the
// prior entry when one exists.
type Classification struct {
	State State
	// Hash is the current content hash. Empty when hashing failed;
	// the state is then conservatively StateChanged.
	Hash  string
	Size  int64
	Entry store.FileEntry
	// HasEntry reports whether Entry is populated from the index.
	HasEntry bool
}

// Classify decides whether path needs reindexing. force always reports
// changed for already-indexed files. On hashing failure it reports
// changed rather than silently skipping a file that might need indexing.
func Classify(path string, entries map[string]store.FileEntry, force bool) Classification {
	entry, hasEntry := entries[path]

	hash, size, err := HashFile(path)
	if err != nil {
		return Classification{State: StateChanged, Entry: entry, HasEntry: hasEntry}
	}

	c := Classification{Hash: hash, Size: size, Entry: entry, HasEntry: hasEntry}
	switch {
	case !hasEntry:
		c.State = StateNew
	case force:
		c.State = StateChanged
	case entry.ContentHash == hash:
		c.State = StateUnchanged
	default:
		c.State = StateChanged
	}
	return c
}

// Removed sweeps the entry map for files absent from the present set and
// returns their paths sorted for deterministic processing. Removal is
// only meaningful as a sweep over the index, never over the input
// directory.
func Removed(entries map[string]store.FileEntry, present map[string]bool) []string {
	var removed []string
	for path := range entries {
		if !present[path] {
			removed = append(removed, path)
		}
	}
	sort.Strings(removed)
	return removed
}

// HashFile returns the SHA-256 hex digest of the file's bytes and its size.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// HashBytes returns the SHA-256 hex digest of content already in memory.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Package store owns the on-disk vector index and its positionally
// aligned sidecars. The vector graph, the per-chunk metadata list, and
// the per-file bookkeeping map are one logical entity (a Collection)
// that always mutates together behind a single interface; the two
// sidecars are never independently writable.
package store

import (
	"errors"
	"fmt"
	"time"
)

// ChunkMetadata describes one vector. The metadata list is kept in strict
// positional correspondence with the graph: entry i describes vector i.
// Text is the literal chunk content, retained so the index can be rebuilt
// without re-reading source files.
type ChunkMetadata struct {
	Text          string
	SourceFile    string
	SourceTitle   string
	Categories    []string
	ChunkSequence int
}

// FileEntry is the per-source-file bookkeeping record, keyed by absolute
// path. FirstChunk and LastChunk are the contiguous position range the
// file currently occupies; across all entries the ranges partition
// [0, N-1] exactly, with renumbering re-establishing this after removal.
type FileEntry struct {
	ContentHash string
	FileSize    int64
	FileType    string
	IndexedAt   time.Time
	ChunkCount  int
	FirstChunk  int
	LastChunk   int
}

// FileInfo carries the change-detection fields for an upsert.
type FileInfo struct {
	ContentHash string
	FileSize    int64
	FileType    string
}

// SearchResult is one nearest-neighbor hit.
type SearchResult struct {
	Position int
	Distance float32
	// Score is 1/(1+distance): monotonically decreasing in distance,
	// in (0, 1], higher is better.
	Score float64
	Meta  ChunkMetadata
}

var (
	// ErrClosed is returned by operations on a closed collection.
	ErrClosed = errors.New("collection is closed")

	// ErrReindexRequired signals that the index could not be recovered
	// and was reset empty: prior work is lost and a full reindex is
	// needed. Callers must surface this loudly, never swallow it.
	ErrReindexRequired = errors.New("vector index unrecoverable: full reindex required")

	// ErrLocked is returned when another process holds the writer lock.
	ErrLocked = errors.New("index is locked by another process")
)

// ErrDimensionMismatch reports a vector of the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Artifact file names inside the index directory.
const (
	graphFile = "vectors.hnsw"
	chunkFile = "chunks.meta"
	filesFile = "files.meta"
	lockFile  = ".lock"
)

package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/hnsw"

	liberrors "github.com/librarian-ai/librarian/internal/errors"
)

// Config configures a Collection.
type Config struct {
	// Dir is the directory holding the index artifacts.
	Dir string
	// Dimensions fixes the vector dimension. Zero adopts the dimension
	// of the first added vector.
	Dimensions int
	// M is the HNSW connectivity parameter.
	M int
	// EfSearch is the HNSW search breadth.
	EfSearch int
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfSearch == 0 {
		c.EfSearch = 40
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Collection couples the vector graph, the chunk metadata list, and the
// file-entry map behind one mutex. Graph keys are positions 0..N-1; the
// graph's native delete is never used because removal renumbers positions
// and therefore requires a rebuild anyway.
type Collection struct {
	mu     sync.RWMutex
	cfg    Config
	logger *slog.Logger

	graph    *hnsw.Graph[uint64]
	metadata []ChunkMetadata
	files    map[string]FileEntry
	dims     int
	closed   bool
}

// NewCollection creates an empty in-memory collection. Use Load to read
// persisted artifacts from cfg.Dir.
func NewCollection(cfg Config) *Collection {
	cfg = cfg.withDefaults()
	return &Collection{
		cfg:    cfg,
		logger: cfg.Logger,
		graph:  newGraph(cfg),
		files:  make(map[string]FileEntry),
		dims:   cfg.Dimensions,
	}
}

// newGraph builds an HNSW graph with Euclidean distance, matching the
// 1/(1+distance) scoring used at query time.
func newGraph(cfg Config) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// AddFile appends the file's vectors and metadata as a pure append and
// records its FileEntry over the assigned contiguous position range.
// The file must not currently be indexed; changed files are removed first
// so old and new chunks never coexist.
func (c *Collection) AddFile(path string, info FileInfo, vectors [][]float32, metas []ChunkMetadata) (first, last int, err error) {
	if len(vectors) == 0 {
		return 0, 0, fmt.Errorf("no vectors to add for %s", path)
	}
	if len(vectors) != len(metas) {
		return 0, 0, liberrors.InvariantError(
			fmt.Sprintf("vectors and metadata length mismatch: %d vs %d", len(vectors), len(metas)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, 0, ErrClosed
	}
	if _, exists := c.files[path]; exists {
		return 0, 0, fmt.Errorf("file already indexed, remove it first: %s", path)
	}

	if c.dims == 0 {
		c.dims = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != c.dims {
			return 0, 0, ErrDimensionMismatch{Expected: c.dims, Got: len(v)}
		}
	}

	first = len(c.metadata)
	for i, vec := range vectors {
		metas[i].SourceFile = path
		c.graph.Add(hnsw.MakeNode(uint64(first+i), vec))
	}
	c.metadata = append(c.metadata, metas...)
	last = len(c.metadata) - 1

	c.files[path] = FileEntry{
		ContentHash: info.ContentHash,
		FileSize:    info.FileSize,
		FileType:    info.FileType,
		IndexedAt:   time.Now(),
		ChunkCount:  len(metas),
		FirstChunk:  first,
		LastChunk:   last,
	}

	if err := c.checkInvariantsLocked(); err != nil {
		return 0, 0, err
	}
	return first, last, nil
}

// RemoveFiles removes every vector and metadata pair belonging to the
// given paths. The underlying index has no delete, so this reconstructs
// every surviving vector by position, rebuilds a fresh graph in original
// relative order, and renumbers every remaining FileEntry range. Cost is
// O(N) in total vectors regardless of how many are removed, which is why
// callers batch removals into one call.
func (c *Collection) RemoveFiles(paths ...string) (removed int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	target := make(map[string]bool, len(paths))
	for _, p := range paths {
		if _, exists := c.files[p]; exists {
			target[p] = true
		}
	}
	if len(target) == 0 {
		// Removing files that were never indexed is a no-op.
		return 0, nil
	}

	rebuilt := newGraph(c.cfg)
	survivors := make([]ChunkMetadata, 0, len(c.metadata))
	for pos, meta := range c.metadata {
		if target[meta.SourceFile] {
			removed++
			continue
		}
		vec, ok := c.graph.Lookup(uint64(pos))
		if !ok {
			return 0, liberrors.InvariantError(
				fmt.Sprintf("vector missing at position %d during rebuild", pos))
		}
		rebuilt.Add(hnsw.MakeNode(uint64(len(survivors)), vec))
		survivors = append(survivors, meta)
	}

	files, err := renumberEntries(survivors, c.files, target)
	if err != nil {
		return 0, err
	}

	c.graph = rebuilt
	c.metadata = survivors
	c.files = files

	if err := c.checkInvariantsLocked(); err != nil {
		return 0, err
	}

	c.logger.Info("removed files from index",
		slog.Int("files", len(target)),
		slog.Int("vectors_removed", removed),
		slog.Int("vectors_remaining", len(c.metadata)))
	return removed, nil
}

// renumberEntries recomputes position ranges from the surviving metadata
// order and drops entries for removed paths. Surviving files keep their
// hash and timestamps; only the range fields change.
func renumberEntries(metadata []ChunkMetadata, old map[string]FileEntry, removed map[string]bool) (map[string]FileEntry, error) {
	files := make(map[string]FileEntry, len(old))

	for pos := 0; pos < len(metadata); {
		path := metadata[pos].SourceFile
		end := pos
		for end < len(metadata) && metadata[end].SourceFile == path {
			end++
		}

		if _, dup := files[path]; dup {
			return nil, liberrors.InvariantError(
				fmt.Sprintf("chunks for %s are not contiguous", path))
		}

		entry, ok := old[path]
		if !ok {
			return nil, liberrors.InvariantError(
				fmt.Sprintf("metadata references unknown file %s", path))
		}
		entry.FirstChunk = pos
		entry.LastChunk = end - 1
		entry.ChunkCount = end - pos
		files[path] = entry
		pos = end
	}

	for path := range old {
		if !removed[path] {
			if _, ok := files[path]; !ok {
				return nil, liberrors.InvariantError(
					fmt.Sprintf("file %s lost all chunks without being removed", path))
			}
		}
	}
	return files, nil
}

// Search returns the k nearest chunks to the query vector, best first.
func (c *Collection) Search(query []float32, k int) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	if len(c.metadata) == 0 {
		return []SearchResult{}, nil
	}
	if len(query) != c.dims {
		return nil, ErrDimensionMismatch{Expected: c.dims, Got: len(query)}
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	nodes := c.graph.Search(query, k)
	results := make([]SearchResult, 0, len(nodes))
	for _, node := range nodes {
		pos := int(node.Key)
		if pos < 0 || pos >= len(c.metadata) {
			return nil, liberrors.InvariantError(
				fmt.Sprintf("search returned position %d beyond metadata length %d", pos, len(c.metadata)))
		}
		distance := c.graph.Distance(query, node.Value)
		results = append(results, SearchResult{
			Position: pos,
			Distance: distance,
			Score:    1.0 / (1.0 + float64(distance)),
			Meta:     c.metadata[pos],
		})
	}
	return results, nil
}

// Len returns the current vector count.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.metadata)
}

// Dimensions returns the vector dimension, or 0 if nothing was added yet.
func (c *Collection) Dimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dims
}

// Entry returns the FileEntry for path.
func (c *Collection) Entry(path string) (FileEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.files[path]
	return entry, ok
}

// Files returns a copy of the file-entry map.
func (c *Collection) Files() map[string]FileEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]FileEntry, len(c.files))
	for path, entry := range c.files {
		out[path] = entry
	}
	return out
}

// MetadataAt returns the chunk metadata at a position.
func (c *Collection) MetadataAt(pos int) (ChunkMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if pos < 0 || pos >= len(c.metadata) {
		return ChunkMetadata{}, false
	}
	return c.metadata[pos], true
}

// AllMetadata returns a copy of the metadata list in position order.
// The catalog renderer consumes this read-only.
func (c *Collection) AllMetadata() []ChunkMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ChunkMetadata, len(c.metadata))
	copy(out, c.metadata)
	return out
}

// Stats summarizes the collection for status reporting.
type Stats struct {
	Vectors    int
	Files      int
	Dimensions int
}

// CollectionStats returns current counts.
func (c *Collection) CollectionStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Vectors: len(c.metadata), Files: len(c.files), Dimensions: c.dims}
}

// Close releases the collection. Pending state is not persisted.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.graph = nil
	return nil
}

// VerifyInvariants re-checks structural consistency: metadata length
// equals vector count and file ranges partition [0, N-1] exactly.
func (c *Collection) VerifyInvariants() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkInvariantsLocked()
}

func (c *Collection) checkInvariantsLocked() error {
	if c.graph.Len() != len(c.metadata) {
		return liberrors.InvariantError(
			fmt.Sprintf("metadata length %d != vector count %d", len(c.metadata), c.graph.Len()))
	}

	covered := 0
	for path, entry := range c.files {
		if entry.FirstChunk < 0 || entry.LastChunk >= len(c.metadata) || entry.FirstChunk > entry.LastChunk {
			return liberrors.InvariantError(
				fmt.Sprintf("file %s has invalid range [%d, %d] for %d vectors",
					path, entry.FirstChunk, entry.LastChunk, len(c.metadata)))
		}
		if entry.ChunkCount != entry.LastChunk-entry.FirstChunk+1 {
			return liberrors.InvariantError(
				fmt.Sprintf("file %s chunk count %d does not match range [%d, %d]",
					path, entry.ChunkCount, entry.FirstChunk, entry.LastChunk))
		}
		for pos := entry.FirstChunk; pos <= entry.LastChunk; pos++ {
			if c.metadata[pos].SourceFile != path {
				return liberrors.InvariantError(
					fmt.Sprintf("position %d claimed by %s but metadata says %s",
						pos, path, c.metadata[pos].SourceFile))
			}
		}
		covered += entry.ChunkCount
	}
	if covered != len(c.metadata) {
		return liberrors.InvariantError(
			fmt.Sprintf("file ranges cover %d positions but %d vectors exist", covered, len(c.metadata)))
	}
	return nil
}

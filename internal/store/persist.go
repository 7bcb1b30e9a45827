package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coder/hnsw"

	liberrors "github.com/librarian-ai/librarian/internal/errors"
)

// Reembedder is the slice of the embedding collaborator the recovery path
// needs: batched re-embedding of stored chunk text.
type Reembedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// fileState is the gob payload of the file-entry sidecar.
type fileState struct {
	Files      map[string]FileEntry
	Dimensions int
	Count      int
}

// Save persists the graph and both sidecars together. Each artifact is
// written to a temp file and renamed into place; Save is not complete
// until all three are durably written.
func (c *Collection) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClosed
	}
	return c.saveLocked()
}

func (c *Collection) saveLocked() error {
	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return liberrors.New(liberrors.ErrCodePersistFailed, "create index directory", err)
	}

	graphPath := filepath.Join(c.cfg.Dir, graphFile)
	if err := writeAtomic(graphPath, func(f *os.File) error {
		return c.graph.Export(f)
	}); err != nil {
		return liberrors.New(liberrors.ErrCodePersistFailed, "write vector graph", err)
	}

	chunkPath := filepath.Join(c.cfg.Dir, chunkFile)
	if err := writeAtomic(chunkPath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(c.metadata)
	}); err != nil {
		return liberrors.New(liberrors.ErrCodePersistFailed, "write chunk metadata", err)
	}

	filesPath := filepath.Join(c.cfg.Dir, filesFile)
	state := fileState{Files: c.files, Dimensions: c.dims, Count: len(c.metadata)}
	if err := writeAtomic(filesPath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(state)
	}); err != nil {
		return liberrors.New(liberrors.ErrCodePersistFailed, "write file entries", err)
	}

	c.logger.Debug("index persisted",
		slog.Int("vectors", len(c.metadata)),
		slog.Int("files", len(c.files)),
		slog.String("dir", c.cfg.Dir))
	return nil
}

// writeAtomic writes via a temp file and renames into place.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Load reads the persisted artifacts from the collection directory.
//
// A missing index with no metadata is a fresh start. Anything else that
// prevents loading the graph is treated as corruption, not silently
// replaced: the corrupt artifact is backed up, then recovery is attempted
// via RebuildFromMetadata. Only when that also fails does Load fall back
// to an empty collection, returning ErrReindexRequired so the caller
// knows prior work is lost.
//
// Queries load without holding the index lock, so the recovery branch
// takes it itself before renaming or rewriting anything on disk. The
// caller must not already hold the lock when calling Load.
func (c *Collection) Load(ctx context.Context, embedder Reembedder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	metadata, metaErr := loadChunkMetadata(filepath.Join(c.cfg.Dir, chunkFile))
	state, stateErr := loadFileState(filepath.Join(c.cfg.Dir, filesFile))

	if metaErr != nil {
		// Without the metadata sidecar there is nothing to recover from.
		c.logger.Error("chunk metadata sidecar unreadable, index is lost",
			slog.String("error", metaErr.Error()))
		c.metadata = nil
		return c.recoverWithLock(ctx, embedder,
			filepath.Join(c.cfg.Dir, chunkFile),
			filepath.Join(c.cfg.Dir, graphFile))
	}

	c.metadata = metadata
	if stateErr == nil {
		c.files = state.Files
		if c.files == nil {
			c.files = make(map[string]FileEntry)
		}
		if state.Dimensions > 0 {
			c.dims = state.Dimensions
		}
	} else {
		c.files = make(map[string]FileEntry)
	}

	graphPath := filepath.Join(c.cfg.Dir, graphFile)
	f, err := os.Open(graphPath)
	if os.IsNotExist(err) {
		if len(c.metadata) == 0 {
			// Fresh start.
			c.graph = newGraph(c.cfg)
			return nil
		}
		c.logger.Warn("vector graph missing but metadata survived, rebuilding",
			slog.Int("chunks", len(c.metadata)))
		return c.recoverWithLock(ctx, embedder)
	}
	if err != nil {
		return c.recoverWithLock(ctx, embedder, graphPath)
	}

	graph := newGraph(c.cfg)
	importErr := graph.Import(bufio.NewReader(f))
	f.Close()
	if importErr != nil {
		c.logger.Error("vector graph import failed, attempting recovery",
			slog.String("error", importErr.Error()))
		return c.recoverWithLock(ctx, embedder, graphPath)
	}

	if graph.Len() != len(c.metadata) {
		c.logger.Error("vector count disagrees with metadata sidecar",
			slog.Int("vectors", graph.Len()),
			slog.Int("chunks", len(c.metadata)))
		return c.recoverWithLock(ctx, embedder, graphPath)
	}

	c.graph = graph
	if err := c.checkInvariantsLocked(); err != nil {
		c.logger.Error("loaded index violates invariants, attempting recovery",
			slog.String("error", err.Error()))
		return c.recoverWithLock(ctx, embedder, graphPath)
	}

	c.logger.Info("index loaded",
		slog.Int("vectors", len(c.metadata)),
		slog.Int("files", len(c.files)))
	return nil
}

// RebuildFromMetadata regenerates the vector graph purely from stored
// chunk text. Entries whose text is missing are dropped with a warning
// rather than aborting the recovery. The rebuilt index is persisted
// before returning.
func (c *Collection) RebuildFromMetadata(ctx context.Context, embedder Reembedder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.rebuildLocked(ctx, embedder)
}

// recoverWithLock guards the destructive part of the recovery ladder
// with the writer lock. Recovery renames damaged artifacts aside and
// persists a rebuilt index, so it must not run while another process
// owns the index. When the lock is held the artifacts are left alone
// and the collection serves an empty in-memory view until the next
// locked command repairs them.
func (c *Collection) recoverWithLock(ctx context.Context, embedder Reembedder, damaged ...string) error {
	lock, err := NewIndexLock(c.cfg.Dir)
	if err == nil {
		err = lock.TryAcquire()
	}
	if err != nil {
		c.logger.Warn("index damaged but writer lock is unavailable, deferring recovery",
			slog.String("error", err.Error()))
		c.resetLocked()
		return ErrReindexRequired
	}
	defer lock.Release()

	for _, path := range damaged {
		backupCorrupt(c.logger, path)
	}
	return c.recoverLocked(ctx, embedder)
}

// recoverLocked runs the recovery ladder after the graph proved
// unloadable: rebuild from metadata, or reset empty with an explicit
// reindex-required signal.
func (c *Collection) recoverLocked(ctx context.Context, embedder Reembedder) error {
	if len(c.metadata) == 0 || embedder == nil {
		c.resetLocked()
		return ErrReindexRequired
	}

	if err := c.rebuildLocked(ctx, embedder); err != nil {
		c.logger.Error("rebuild from metadata failed, resetting index",
			slog.String("error", err.Error()))
		c.resetLocked()
		return ErrReindexRequired
	}

	c.logger.Warn("index recovered by re-embedding stored chunk text",
		slog.Int("vectors", len(c.metadata)))
	return nil
}

func (c *Collection) rebuildLocked(ctx context.Context, embedder Reembedder) error {
	survivors := make([]ChunkMetadata, 0, len(c.metadata))
	for pos, meta := range c.metadata {
		if strings.TrimSpace(meta.Text) == "" {
			c.logger.Warn("dropping chunk with no stored text",
				slog.Int("position", pos),
				slog.String("source", meta.SourceFile))
			continue
		}
		survivors = append(survivors, meta)
	}

	if len(survivors) == 0 {
		c.resetLocked()
		return c.saveLocked()
	}

	texts := make([]string, len(survivors))
	for i, meta := range survivors {
		texts[i] = meta.Text
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("re-embed stored chunks: %w", err)
	}
	if len(vectors) != len(survivors) {
		return liberrors.InvariantError(
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(survivors)))
	}

	graph := newGraph(c.cfg)
	for i, vec := range vectors {
		graph.Add(hnsw.MakeNode(uint64(i), vec))
	}

	files, err := entriesFromMetadata(c.logger, survivors, c.files)
	if err != nil {
		return err
	}

	c.graph = graph
	c.metadata = survivors
	c.files = files
	c.dims = len(vectors[0])

	if err := c.checkInvariantsLocked(); err != nil {
		return err
	}
	return c.saveLocked()
}

// entriesFromMetadata recomputes file entries from metadata order alone.
// Files whose prior entry is gone get a blank content hash, which the
// change tracker will report as changed on the next ingest run.
func entriesFromMetadata(logger *slog.Logger, metadata []ChunkMetadata, old map[string]FileEntry) (map[string]FileEntry, error) {
	files := make(map[string]FileEntry)

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
			logger.Warn("no file entry survived for rebuilt file", slog.String("path", path))
			entry = FileEntry{IndexedAt: time.Now()}
		}
		entry.FirstChunk = pos
		entry.LastChunk = end - 1
		entry.ChunkCount = end - pos
		files[path] = entry
		pos = end
	}
	return files, nil
}

func (c *Collection) resetLocked() {
	c.graph = newGraph(c.cfg)
	c.metadata = nil
	c.files = make(map[string]FileEntry)
}

func loadChunkMetadata(path string) ([]ChunkMetadata, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open chunk metadata: %w", err)
	}
	defer f.Close()

	var metadata []ChunkMetadata
	if err := gob.NewDecoder(f).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decode chunk metadata: %w", err)
	}
	return metadata, nil
}

func loadFileState(path string) (fileState, error) {
	var state fileState

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("open file entries: %w", err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return state, fmt.Errorf("decode file entries: %w", err)
	}
	return state, nil
}

// backupCorrupt moves a corrupt artifact aside so it survives for
// inspection instead of being overwritten by recovery.
func backupCorrupt(logger *slog.Logger, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	backup := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
	if err := os.Rename(path, backup); err != nil {
		logger.Warn("could not back up corrupt artifact",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	logger.Warn("backed up corrupt artifact", slog.String("backup", backup))
}

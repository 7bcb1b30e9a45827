// Package ingest drives incremental indexing: enumerate the ingest
// directory, classify each file against the stored hashes, remove stale
// vectors in one batch, then chunk and embed what is new or changed.
// Per-file failures are counted, never fatal to the run.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/librarian-ai/librarian/internal/chunk"
	"github.com/librarian-ai/librarian/internal/config"
	liberrors "github.com/librarian-ai/librarian/internal/errors"
	"github.com/librarian-ai/librarian/internal/store"
	"github.com/librarian-ai/librarian/internal/track"
)

// Embedder is the batch embedding dependency of the pipeline.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Summary reports the outcome of one pipeline run.
type Summary struct {
	// Processed counts files whose chunks were (re)indexed.
	Processed int
	// Skipped counts unchanged files.
	Skipped int
	// Removed counts files swept out of the index.
	Removed int
	// Errored counts files that failed to read, chunk, or embed.
	Errored int
	// Chunks is the total number of chunks added this run.
	Chunks int
}

// Pipeline owns one indexing run end to end. Safe for sequential reuse,
// not for concurrent Run calls; the index lock enforces single-writer
// across processes.
type Pipeline struct {
	cfg      *config.Config
	col      *store.Collection
	embedder Embedder
	chunker  *chunk.Chunker
	logger   *slog.Logger

	// NewResolver builds the per-run category resolver. Overridable in
	// tests; defaults to the categories.yaml file resolver.
	NewResolver func(dir string) (CategoryResolver, error)
}

// NewPipeline wires a pipeline around an open collection.
func NewPipeline(cfg *config.Config, col *store.Collection, embedder Embedder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cfg:      cfg,
		col:      col,
		embedder: embedder,
		chunker: chunk.New(chunk.Config{
			Size:      cfg.Chunking.Size,
			Overlap:   cfg.Chunking.Overlap,
			MinLength: cfg.Chunking.MinLength,
		}),
		logger: logger,
	}
	p.NewResolver = func(dir string) (CategoryResolver, error) {
		return NewFileResolver(dir, cfg.KnownCategory, logger)
	}
	return p
}

// prepared is one file that passed classification, read, and chunking,
// ready for the serialized embed-and-add stage.
type prepared struct {
	path   string
	info   store.FileInfo
	title  string
	tags   []string
	chunks []string
}

// Run indexes dir incrementally. force reindexes files whose hashes
// still match. Returns the summary even on partial failure; only lock
// contention, enumeration failure, or persistence failure abort the run.
func (p *Pipeline) Run(ctx context.Context, dir string, force bool) (Summary, error) {
	var summary Summary

	dir, err := filepath.Abs(dir)
	if err != nil {
		return summary, liberrors.New(liberrors.ErrCodeInvalidPath, "resolve ingest directory", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return summary, liberrors.New(liberrors.ErrCodeInvalidPath,
			fmt.Sprintf("not a directory: %s", dir), err).
			WithSuggestion("Pass a readable directory of documents")
	}

	lock, err := store.NewIndexLock(p.cfg.IndexDir())
	if err != nil {
		return summary, err
	}
	if err := lock.TryAcquire(); err != nil {
		return summary, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			p.logger.Warn("releasing index lock", slog.String("error", rerr.Error()))
		}
	}()

	paths, err := p.enumerate(dir)
	if err != nil {
		return summary, err
	}

	resolver, err := p.NewResolver(dir)
	if err != nil {
		p.logger.Warn("category mapping unusable, continuing untagged",
			slog.String("error", err.Error()))
		resolver = noCategories{}
	}

	entries := p.col.Files()
	present := make(map[string]bool, len(paths))
	for _, path := range paths {
		present[path] = true
	}

	work, skipped, errored := p.classifyAndChunk(ctx, paths, entries, resolver, force)
	summary.Skipped = skipped
	summary.Errored = errored

	// All removals in one batch: changed files being replaced plus files
	// that disappeared from the directory. One rebuild instead of many.
	stale := track.Removed(entries, present)
	summary.Removed = len(stale)
	for _, w := range work {
		if _, indexed := entries[w.path]; indexed {
			stale = append(stale, w.path)
		}
	}
	if len(stale) > 0 {
		if _, err := p.col.RemoveFiles(stale...); err != nil {
			return summary, fmt.Errorf("removing stale files: %w", err)
		}
	}

	for _, w := range work {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if len(w.chunks) == 0 {
			summary.Skipped++
			continue
		}
		if err := p.indexOne(ctx, w); err != nil {
			summary.Errored++
			p.logger.Error("indexing file failed",
				slog.String("path", w.path),
				slog.String("error", err.Error()))
			continue
		}
		summary.Processed++
		summary.Chunks += len(w.chunks)
	}

	if err := p.col.Save(); err != nil {
		return summary, fmt.Errorf("persisting index: %w", err)
	}

	p.logger.Info("ingest run complete",
		slog.String("dir", dir),
		slog.Int("processed", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("removed", summary.Removed),
		slog.Int("errored", summary.Errored),
		slog.Int("chunks", summary.Chunks))
	return summary, nil
}

// enumerate walks dir and returns the sorted absolute paths of
// ingestable files. Oversized files are skipped here with a warning;
// the binary sniff happens at read time to avoid a second open.
func (p *Pipeline) enumerate(dir string) ([]string, error) {
	allowed := make(map[string]bool, len(p.cfg.Ingest.Extensions))
	for _, ext := range p.cfg.Ingest.Extensions {
		allowed[strings.ToLower(ext)] = true
	}
	maxSize := p.cfg.MaxFileSizeBytes()

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			p.logger.Warn("skipping oversized file",
				slog.String("path", path),
				slog.Int64("size", info.Size()),
				slog.Int64("limit", maxSize))
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// classifyAndChunk runs the read/hash/chunk stage across a worker pool.
// Graph mutation stays out of this stage so the collection lock is
// never contended by file IO.
func (p *Pipeline) classifyAndChunk(
	ctx context.Context,
	paths []string,
	entries map[string]store.FileEntry,
	resolver CategoryResolver,
	force bool,
) (work []prepared, skipped, errored int) {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Ingest.Workers)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			w, state, err := p.prepareFile(path, entries, resolver, force)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errored++
				p.logger.Error("preparing file failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
			case state == track.StateUnchanged:
				skipped++
			default:
				// Zero-chunk entries (binary, empty, all-short) ride along
				// so a changed file still gets its stale vectors swept.
				work = append(work, w)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		p.logger.Error("classification pool failed", slog.String("error", err.Error()))
	}

	sort.Slice(work, func(i, j int) bool { return work[i].path < work[j].path })
	return work, skipped, errored
}

func (p *Pipeline) prepareFile(
	path string,
	entries map[string]store.FileEntry,
	resolver CategoryResolver,
	force bool,
) (prepared, track.State, error) {
	cls := track.Classify(path, entries, force)
	if cls.State == track.StateUnchanged {
		return prepared{}, cls.State, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return prepared{}, cls.State, liberrors.New(liberrors.ErrCodeFileUnread, "read file", err)
	}
	if isBinary(content) {
		p.logger.Debug("skipping binary file", slog.String("path", path))
		return prepared{path: path}, cls.State, nil
	}

	hash := cls.Hash
	if hash == "" {
		hash = track.HashBytes(content)
	}
	return prepared{
		path: path,
		info: store.FileInfo{
			ContentHash: hash,
			FileSize:    int64(len(content)),
			FileType:    strings.TrimPrefix(filepath.Ext(path), "."),
		},
		title:  titleFromPath(path),
		tags:   resolver.Resolve(path),
		chunks: p.chunker.Split(string(content)),
	}, cls.State, nil
}

// indexOne embeds one file's chunks and adds them to the collection.
// The prior entry has already been removed by the batch sweep.
func (p *Pipeline) indexOne(ctx context.Context, w prepared) error {
	vectors, err := p.embedder.EmbedBatch(ctx, w.chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(w.chunks), err)
	}

	metas := make([]store.ChunkMetadata, len(w.chunks))
	for i, text := range w.chunks {
		metas[i] = store.ChunkMetadata{
			Text:          text,
			SourceTitle:   w.title,
			Categories:    w.tags,
			ChunkSequence: i,
		}
	}
	if _, _, err := p.col.AddFile(w.path, w.info, vectors, metas); err != nil {
		return fmt.Errorf("adding to index: %w", err)
	}
	return nil
}

// isBinary applies the classic null-byte sniff to the first 512 bytes.
func isBinary(content []byte) bool {
	n := len(content)
	if n > 512 {
		n = 512
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

// titleFromPath derives a display title from the file name: extension
// stripped, separators spaced out.
func titleFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

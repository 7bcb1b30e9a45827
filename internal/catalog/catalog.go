// Package catalog renders a human-readable inventory of the index from
// the metadata sidecar. It is strictly read-only over the collection.
package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/librarian-ai/librarian/internal/store"
)

// Source is the slice of the collection the catalog reads.
type Source interface {
	Files() map[string]store.FileEntry
	MetadataAt(pos int) (store.ChunkMetadata, bool)
	Len() int
}

// Entry is one catalog line, derived from a file's first chunk metadata
// and its bookkeeping record.
type Entry struct {
	Path       string
	Title      string
	Categories []string
	ChunkCount int
	FileSize   int64
	IndexedAt  time.Time
}

// Build collects catalog entries sorted by path.
func Build(src Source) []Entry {
	files := src.Files()
	entries := make([]Entry, 0, len(files))
	for path, fe := range files {
		e := Entry{
			Path:       path,
			ChunkCount: fe.ChunkCount,
			FileSize:   fe.FileSize,
			IndexedAt:  fe.IndexedAt,
		}
		if meta, ok := src.MetadataAt(fe.FirstChunk); ok {
			e.Title = meta.SourceTitle
			e.Categories = meta.Categories
		}
		if e.Title == "" {
			e.Title = filepath.Base(path)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// Render writes the catalog as plain text.
func Render(w io.Writer, src Source) error {
	entries := Build(src)
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "The index is empty. Run ingest first.")
		return err
	}

	fmt.Fprintf(w, "Indexed documents: %d (%d chunks)\n\n", len(entries), src.Len())
	for _, e := range entries {
		fmt.Fprintf(w, "%s\n", e.Title)
		fmt.Fprintf(w, "  path:     %s\n", e.Path)
		if len(e.Categories) > 0 {
			fmt.Fprintf(w, "  tags:     %s\n", strings.Join(e.Categories, ", "))
		}
		fmt.Fprintf(w, "  chunks:   %d\n", e.ChunkCount)
		fmt.Fprintf(w, "  indexed:  %s\n\n", e.IndexedAt.Format(time.RFC3339))
	}
	return nil
}

// WriteFile renders the catalog to path via a temp file and rename, the
// same discipline the index artifacts use.
func WriteFile(path string, src Source) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	if err := Render(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename catalog: %w", err)
	}
	return nil
}

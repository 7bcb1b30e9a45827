package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CategoryResolver maps a source file to its category tags.
type CategoryResolver interface {
	Resolve(path string) []string
}

// noCategories is the resolver used when no mapping file exists.
type noCategories struct{}

func (noCategories) Resolve(string) []string { return nil }

// fileResolver resolves tags from a categories.yaml mapping shipped
// alongside the documents. Keys are paths relative to the ingest
// directory; a bare file name matches any file with that name.
type fileResolver struct {
	root   string
	byPath map[string][]string
	byName map[string][]string
}

// categoriesFileName is looked up in the ingest directory root.
const categoriesFileName = "categories.yaml"

// NewFileResolver loads dir/categories.yaml when present. Tags outside
// the known vocabulary are dropped with a warning rather than failing
// the run. A missing mapping file yields a resolver that tags nothing.
func NewFileResolver(dir string, known func(tag string) bool, logger *slog.Logger) (CategoryResolver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(filepath.Join(dir, categoriesFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return noCategories{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", categoriesFileName, err)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", categoriesFileName, err)
	}

	r := &fileResolver{
		root:   dir,
		byPath: make(map[string][]string),
		byName: make(map[string][]string),
	}
	for key, tags := range raw {
		var kept []string
		for _, tag := range tags {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag == "" {
				continue
			}
			if known != nil && !known(tag) {
				logger.Warn("dropping unknown category tag",
					slog.String("file", key),
					slog.String("tag", tag))
				continue
			}
			kept = append(kept, tag)
		}
		if len(kept) == 0 {
			continue
		}
		norm := filepath.ToSlash(filepath.Clean(key))
		r.byPath[norm] = kept
		if !strings.Contains(norm, "/") {
			r.byName[norm] = kept
		}
	}
	return r, nil
}

func (r *fileResolver) Resolve(path string) []string {
	rel, err := filepath.Rel(r.root, path)
	if err == nil {
		if tags, ok := r.byPath[filepath.ToSlash(rel)]; ok {
			return tags
		}
	}
	return r.byName[filepath.Base(path)]
}

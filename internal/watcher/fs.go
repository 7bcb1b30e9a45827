package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes dir recursively and returns a channel of debounced
// event batches plus a channel of non-fatal errors. Both channels close
// when ctx ends. Directories created while watching are picked up;
// hidden directories are skipped.
func Watch(ctx context.Context, dir string, opts Options) (<-chan []FileEvent, <-chan error, error) {
	opts = opts.withDefaults()

	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve watch directory: %w", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("not a watchable directory: %s", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := addRecursive(fsw, dir); err != nil {
		fsw.Close()
		return nil, nil, err
	}

	deb := NewDebouncer(opts.Debounce, opts.Logger)
	errs := make(chan error, opts.BufferSize)

	allowed := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		allowed[strings.ToLower(ext)] = true
	}

	go func() {
		defer fsw.Close()
		defer deb.Stop()
		defer close(errs)

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				handleEvent(fsw, deb, opts.Logger, dir, allowed, ev)

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				default:
					opts.Logger.Warn("dropping watcher error",
						slog.String("error", err.Error()))
				}
			}
		}
	}()

	return deb.Output(), errs, nil
}

func handleEvent(fsw *fsnotify.Watcher, deb *Debouncer, logger *slog.Logger, root string, allowed map[string]bool, ev fsnotify.Event) {
	// New directories must be watched before their contents settle.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !hidden(root, ev.Name) {
				if err := addRecursive(fsw, ev.Name); err != nil {
					logger.Warn("watching new directory failed",
						slog.String("path", ev.Name),
						slog.String("error", err.Error()))
				}
			}
			return
		}
	}

	op, relevant := mapOp(ev.Op)
	if !relevant || hidden(root, ev.Name) {
		return
	}
	if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(ev.Name))] {
		return
	}

	deb.Add(FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()})
}

func mapOp(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	default:
		// Chmod and friends do not affect index content.
		return 0, false
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// hidden reports whether any element of the path below root is a
// dot-file. The root itself may be hidden.
func hidden(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

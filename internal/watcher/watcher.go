// Package watcher observes an ingest directory and emits debounced
// batches of file events, so a change storm (editor save, rsync, git
// checkout) triggers one incremental pipeline run instead of dozens.
package watcher

import (
	"log/slog"
	"time"
)

// Operation is the kind of change observed on a path.
type Operation int

const (
	// OpCreate indicates a new file appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file disappeared.
	OpDelete
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change, absolute path.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// Debounce is how long to wait after the last event before emitting
	// the coalesced batch.
	Debounce time.Duration

	// Extensions restricts events to these file extensions (lowercase,
	// with dot). Empty watches everything.
	Extensions []string

	// BufferSize is the internal event channel buffer.
	BufferSize int

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 1024
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

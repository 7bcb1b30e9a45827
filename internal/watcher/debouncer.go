package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path before emitting them as one
// batch. Coalescing rules:
//   - CREATE then MODIFY keeps CREATE (the file is still new)
//   - CREATE then DELETE cancels out (the file never really existed)
//   - MODIFY then DELETE keeps DELETE
//   - DELETE then CREATE becomes MODIFY (the file was replaced)
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	logger  *slog.Logger
	pending map[string]pendingEvent
	timer   *time.Timer
	out     chan []FileEvent
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given quiet window. The
// window restarts on every Add, so a sustained burst flushes once when
// it ends.
func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:  window,
		logger:  logger,
		pending: make(map[string]pendingEvent),
		out:     make(chan []FileEvent, 8),
	}
}

// Add records an event, coalescing it with any pending one for the same
// path.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(existing, event)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			d.pending[event.Path] = merged
		}
	} else {
		d.pending[event.Path] = pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new event into the pending one. keep=false means
// the pair cancelled out.
func coalesce(existing pendingEvent, next FileEvent) (pendingEvent, bool) {
	switch {
	case existing.firstOp == OpCreate && next.Operation == OpModify:
		return existing, true
	case existing.firstOp == OpCreate && next.Operation == OpDelete:
		return pendingEvent{}, false
	case existing.firstOp == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
		return pendingEvent{event: next, firstOp: existing.firstOp}, true
	default:
		return pendingEvent{event: next, firstOp: existing.firstOp}, true
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		batch = append(batch, pe.event)
	}
	d.pending = make(map[string]pendingEvent)

	select {
	case d.out <- batch:
	default:
		d.logger.Warn("debounce output full, dropping batch",
			slog.Int("batch_size", len(batch)))
	}
}

// Output returns the batch channel. Closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.out
}

// Stop flushes nothing further and closes the output channel. Safe to
// call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}

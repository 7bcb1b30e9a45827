package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(path string, op Operation) FileEvent {
	return FileEvent{Path: path, Operation: op, Timestamp: time.Now()}
}

func waitBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted within deadline")
		return nil
	}
}

func TestDebouncerEmitsAfterQuietWindow(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	defer d.Stop()

	d.Add(event("/docs/a.txt", OpModify))
	d.Add(event("/docs/b.txt", OpCreate))

	batch := waitBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncerCoalescesSamePath(t *testing.T) {
	// Given many rapid modifications of one file
	d := NewDebouncer(20*time.Millisecond, nil)
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Add(event("/docs/a.txt", OpModify))
	}

	// Then a single event is emitted
	batch := waitBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerCreateThenModifyStaysCreate(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	defer d.Stop()

	d.Add(event("/docs/a.txt", OpCreate))
	d.Add(event("/docs/a.txt", OpModify))

	batch := waitBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncerCreateThenDeleteCancels(t *testing.T) {
	// Given a file created and deleted inside one window
	d := NewDebouncer(30*time.Millisecond, nil)
	defer d.Stop()

	d.Add(event("/docs/a.txt", OpCreate))
	d.Add(event("/docs/a.txt", OpDelete))
	d.Add(event("/docs/keep.txt", OpModify))

	// Then only the surviving path is emitted
	batch := waitBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "/docs/keep.txt", batch[0].Path)
}

func TestDebouncerDeleteThenCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	defer d.Stop()

	d.Add(event("/docs/a.txt", OpDelete))
	d.Add(event("/docs/a.txt", OpCreate))

	batch := waitBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerStopIsIdempotent(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, nil)

	d.Stop()
	d.Stop()
	d.Add(event("/docs/a.txt", OpCreate))

	_, open := <-d.Output()
	assert.False(t, open)
}

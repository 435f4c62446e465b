package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces bursts of changes so one editing session causes one
// rebuild. Changes to the same path within the window are merged:
//
//	CREATE + MODIFY = CREATE (file is still new)
//	CREATE + DELETE = nothing (file never really existed)
//	MODIFY + DELETE = DELETE (file is gone)
//	DELETE + CREATE = MODIFY (file was replaced)
//
// A batch is emitted once the tree has been quiet for the full window.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]*pendingChange
	timer   *time.Timer
	out     chan []Change
	stopped bool
}

type pendingChange struct {
	change  Change
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingChange),
		out:     make(chan []Change, 10),
	}
}

// Add records a change, merging it with any pending change for the same path.
func (d *Debouncer) Add(c Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[c.Path]; ok {
		merged := coalesce(existing, c)
		if merged == nil {
			delete(d.pending, c.Path)
		} else {
			existing.change = *merged
		}
	} else {
		d.pending[c.Path] = &pendingChange{change: c, firstOp: c.Operation}
	}

	d.scheduleFlush()
}

// coalesce merges a new change into a pending one. A nil result means the
// two cancelled each other out.
func coalesce(existing *pendingChange, next Change) *Change {
	switch existing.firstOp {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			return &existing.change
		case OpDelete:
			return nil
		default:
			return &next
		}
	case OpDelete:
		if next.Operation == OpCreate {
			replaced := next
			replaced.Operation = OpModify
			return &replaced
		}
		return &next
	default:
		return &next
	}
}

// scheduleFlush restarts the quiet-window timer. Every new change pushes
// the flush further out.
func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Change, 0, len(d.pending))
	for _, pc := range d.pending {
		batch = append(batch, pc.change)
	}
	d.pending = make(map[string]*pendingChange)

	select {
	case d.out <- batch:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []Change {
	return d.out
}

// Stop stops the debouncer and closes the output channel.
// Safe to call multiple times.
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

// Package watcher reacts to edits in the knowledge base tree and schedules
// index rebuilds. Events are debounced so that an editing session (save,
// save again, rename) triggers a single rebuild, and every trigger runs the
// normal full rebuild rather than an incremental update.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Change describes one observed change in the watched tree.
type Change struct {
	// Path is relative to the watched root.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// IsDir indicates if the change is for a directory.
	IsDir bool

	// Timestamp is when the change was detected.
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// Debounce is how long the tree must stay quiet before a batch of
	// changes is emitted. Default: 2s.
	Debounce time.Duration

	// BufferSize is the size of the batch channel buffer. Default: 64.
	BufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:   2 * time.Second,
		BufferSize: 64,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce == 0 {
		o.Debounce = defaults.Debounce
	}
	if o.BufferSize == 0 {
		o.BufferSize = defaults.BufferSize
	}
	return o
}

// Watcher observes a knowledge base directory recursively via fsnotify and
// emits debounced batches of changes. Dotfiles and dot-directories (the
// write lock, editor droppings) never produce changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce *Debouncer
	events   chan []Change
	errors   chan error
	stopCh   chan struct{}
	root     string
	mu       sync.RWMutex
	stopped  bool
}

// New creates a watcher with the given options.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsw:      fsw,
		debounce: NewDebouncer(opts.Debounce),
		events:   make(chan []Change, opts.BufferSize),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching root and all its subdirectories. It blocks until
// the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.root = absRoot

	if err := w.addRecursive(absRoot); err != nil {
		return err
	}

	go w.forwardBatches(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// addRecursive registers root and every visible subdirectory with fsnotify.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// handleEvent converts one fsnotify event into a debounced change.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	if hidden(rel) {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New department folders join the watch as they appear.
		if isDir {
			_ = w.fsw.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and anything else fsnotify grows is irrelevant here.
		return
	}

	w.debounce.Add(Change{
		Path:      rel,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// forwardBatches moves debounced batches to the output channel.
func (w *Watcher) forwardBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debounce.Output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			w.emitBatch(batch)
		}
	}
}

func (w *Watcher) emitBatch(batch []Change) {
	// The read lock spans the send so Stop cannot close the channel
	// between the stopped check and the send. The send never blocks.
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- batch:
	default:
		slog.Warn("watcher batch buffer full, dropping batch",
			slog.Int("batch_size", len(batch)))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)

	w.debounce.Stop()
	err := w.fsw.Close()

	close(w.events)
	close(w.errors)
	return err
}

// Events returns the channel of debounced change batches.
// The channel is closed when the watcher stops.
func (w *Watcher) Events() <-chan []Change {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
// The channel is closed when the watcher stops.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// hidden reports whether any segment of the relative path starts with a
// dot. The knowledge store's lock file lives inside the tree, so this
// filter is what keeps ingestion from retriggering the watcher.
func hidden(rel string) bool {
	if rel == "." || rel == "" {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// Run watches root and invokes rebuild after every debounced batch of
// changes. Rebuild failures are logged and watching continues; the registry
// keeps serving the prior snapshot. Run blocks until the context is
// cancelled or the watcher fails to start.
func Run(ctx context.Context, root string, opts Options, rebuild func(context.Context) error) error {
	w, err := New(opts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	startErr := make(chan error, 1)
	go func() {
		startErr <- w.Start(ctx, root)
	}()

	for {
		select {
		case err := <-startErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			slog.Info("knowledge tree changed, rebuilding indices",
				slog.Int("changes", len(batch)),
				slog.String("first", batch[0].Path))
			if err := rebuild(ctx); err != nil {
				slog.Warn("watch-triggered rebuild failed, keeping prior snapshot",
					slog.String("error", err.Error()))
			}
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

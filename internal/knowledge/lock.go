package knowledge

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName sits at the root of the knowledge tree. Hidden so artifact
// listings and watcher rebuild triggers never pick it up.
const lockFileName = ".crossdock.lock"

// FileLock serializes knowledge-tree writes across processes. Two ingest
// commands running at once would otherwise race the duplicate-name probe and
// one upload would overwrite the other. Works on Unix, macOS and Windows.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock for the knowledge tree rooted at dir.
func NewFileLock(dir string) *FileLock {
	p := filepath.Join(dir, lockFileName)
	return &FileLock{path: p, flock: flock.New(p)}
}

// Lock blocks until the exclusive lock is held, creating the tree root if
// it does not exist yet.
func (l *FileLock) Lock() error {
	_, err := l.acquire(false)
	return err
}

// TryLock attempts the lock without blocking. Returns false when another
// holder has it.
func (l *FileLock) TryLock() (bool, error) {
	return l.acquire(true)
}

// acquire takes the flock, blocking unless try is set. The tree root must
// exist before flock can create the lock file inside it.
func (l *FileLock) acquire(try bool) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	var held bool
	var err error
	if try {
		held, err = l.flock.TryLock()
	} else {
		err = l.flock.Lock()
		held = err == nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if held {
		l.locked = true
	}
	return held, nil
}

// Unlock releases the lock. Safe to call repeatedly or without a prior Lock.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

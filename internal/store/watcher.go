package store

import (
	"os"
	"time"
)

// DefaultMaxAge is the staleness threshold when none is configured.
const DefaultMaxAge = time.Minute

// Watcher reports when a snapshot file has gone stale: missing or older
// than the threshold.
type Watcher struct {
	path   string
	maxAge time.Duration
}

// NewWatcher creates a staleness watcher for the given file. A non-positive
// maxAge selects DefaultMaxAge.
func NewWatcher(path string, maxAge time.Duration) *Watcher {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Watcher{path: path, maxAge: maxAge}
}

// MaxAge returns the staleness threshold.
func (w *Watcher) MaxAge() time.Duration { return w.maxAge }

// Stale reports whether the file is missing or was last modified further
// back than the threshold.
func (w *Watcher) Stale() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return true
	}
	return clock.Since(info.ModTime()) > w.maxAge
}

// Age returns the time since the file's last modification, or zero when the
// file cannot be read.
func (w *Watcher) Age() time.Duration {
	info, err := os.Stat(w.path)
	if err != nil {
		return 0
	}
	return clock.Since(info.ModTime())
}

package watcher

import (
	"context"
	"os"
	"time"
)

// DefaultPollInterval is how often the file is checked for changes
const DefaultPollInterval = 5 * time.Second

// Watcher polls a file and reports modification time or size changes.
// The bot cannot reload credentials while connected, so the daemon uses
// this to tell the operator a restart is needed
type Watcher struct {
	path     string
	interval time.Duration

	lastModTime time.Time
	lastSize    int64
}

// New creates a watcher for the given file path
func New(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{path: path, interval: interval}
}

// Run blocks and invokes onChange every time the file changes on disk,
// until the context is cancelled. A file appearing or disappearing
// counts as a change
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	w.snapshot()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.changed() {
				w.snapshot()
				onChange()
			}
		}
	}
}

func (w *Watcher) snapshot() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.lastModTime = time.Time{}
		w.lastSize = 0
		return
	}
	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
}

func (w *Watcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		// Deleted counts as a change, never-existed does not
		return !w.lastModTime.IsZero()
	}
	if w.lastModTime.IsZero() {
		return true
	}
	return !info.ModTime().Equal(w.lastModTime) || info.Size() != w.lastSize
}

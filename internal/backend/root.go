package backend

import (
	"fmt"
	"path/filepath"
	"sync"
)

// WatchRoot is the directory currently being observed. The UI changes it with
// Set; the pipeline follows along by reading Changes.
type WatchRoot struct {
	mu      sync.RWMutex
	path    string
	changes chan string
}

// NewWatchRoot creates a root. An empty path means nothing is selected yet.
func NewWatchRoot(path string) (*WatchRoot, error) {
	r := &WatchRoot{changes: make(chan string, 1)}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", path, err)
		}
		r.path = abs
	}
	return r, nil
}

// Path returns the current root and whether one is set.
func (r *WatchRoot) Path() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path, r.path != ""
}

// Set switches to a new root and notifies the pipeline. Only the latest root
// matters, so an unread earlier change is replaced rather than queued behind.
func (r *WatchRoot) Set(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve root %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = abs
	for {
		select {
		case r.changes <- abs:
			return nil
		default:
		}
		select {
		case <-r.changes:
		default:
		}
	}
}

// Changes delivers each new root to the pipeline.
func (r *WatchRoot) Changes() <-chan string { return r.changes }

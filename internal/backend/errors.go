package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed means the update channel was closed while the UI was
	// still draining it. The pipeline only closes it on shutdown, so seeing
	// this is an invariant violation.
	ErrChannelClosed = errors.New("update channel closed")
	// ErrPipelineClosed is returned to tasks still sending after Close.
	ErrPipelineClosed = errors.New("pipeline closed")
)

// WatchError wraps a failure of the OS watch subscription.
type WatchError struct {
	Op   string
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("watch %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("watch %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WatchError) Unwrap() error { return e.Err }

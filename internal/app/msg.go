package app

import "github.com/olivoil/livewatch/internal/files"

// TickMsg drives the periodic drain of updates and loglets.
type TickMsg struct{}

// WatchListBuiltMsg carries a list built off the UI goroutine for Root.
type WatchListBuiltMsg struct {
	Root     string
	List     *files.WatchList
	Warnings []error
	Err      error
}

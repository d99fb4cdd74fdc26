package tui

import (
	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/offline"
)

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// SyncEventMsg carries engine progress
type SyncEventMsg struct {
	Event domain.SyncEvent
}

// SyncDoneMsg signals that a manual sync finished
type SyncDoneMsg struct {
	Result *domain.SyncResult
}

// RefreshedMsg signals that a refresh finished
type RefreshedMsg struct {
	Result offline.RefreshResult
}

// TickMsg updates connectivity and counters
type TickMsg struct{}

// ClearStatusMsg clears the status message
type ClearStatusMsg struct{}

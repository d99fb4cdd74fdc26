package tui

import "github.com/mmcdole/brewsync/internal/domain"

// ChannelObserver adapts domain.SyncObserver to a channel for Bubble Tea.
type ChannelObserver struct {
	ch chan<- domain.SyncEvent
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- domain.SyncEvent) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnSyncEvent forwards ev without blocking the engine.
func (o *ChannelObserver) OnSyncEvent(ev domain.SyncEvent) {
	select {
	case o.ch <- ev:
	default: // drop when the view is behind
	}
}

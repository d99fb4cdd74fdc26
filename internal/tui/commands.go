package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/brewsync/internal/domain"
)

// SyncCmd runs a manual sync pass
func SyncCmd(ctx context.Context, src RecipeSource) tea.Cmd {
	return func() tea.Msg {
		res, err := src.Sync(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "sync"}
		}
		return SyncDoneMsg{Result: res}
	}
}

// RefreshCmd pulls the server list, falling back to the cache
func RefreshCmd(ctx context.Context, src RecipeSource) tea.Cmd {
	return func() tea.Msg {
		res, err := src.Refresh(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "refresh"}
		}
		return RefreshedMsg{Result: res}
	}
}

// ListenCmd waits for the next engine event
func ListenCmd(events <-chan domain.SyncEvent) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return SyncEventMsg{Event: ev}
	}
}

// TickCmd returns a command that sends a tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

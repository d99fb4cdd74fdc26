package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/netstatus"
	"github.com/mmcdole/brewsync/internal/offline"
)

type fakeSource struct {
	items   []domain.CachedEntity[domain.Recipe]
	pending int
	synced  int
	result  *domain.SyncResult
	err     error
}

func (f *fakeSource) Items() []domain.CachedEntity[domain.Recipe] { return f.items }
func (f *fakeSource) PendingCount() int                           { return f.pending }
func (f *fakeSource) LastSync() (time.Time, bool)                 { return time.Time{}, false }

func (f *fakeSource) Sync(ctx context.Context) (*domain.SyncResult, error) {
	f.synced++
	return f.result, f.err
}

func (f *fakeSource) Refresh(ctx context.Context) (offline.RefreshResult, error) {
	return offline.RefreshResult{Count: len(f.items), FromCache: true, Cause: domain.ErrOffline}, nil
}

func recipeEntity(name string, status domain.SyncStatus) domain.CachedEntity[domain.Recipe] {
	return domain.CachedEntity[domain.Recipe]{
		ID:         name,
		Data:       domain.Recipe{ID: name, Name: name, BatchSize: 5},
		SyncStatus: status,
	}
}

func newTestModel(src *fakeSource) Model {
	return NewModel(context.Background(), src, netstatus.NewStatic(netstatus.Online()), nil)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModelLoadsItems(t *testing.T) {
	src := &fakeSource{
		items:   []domain.CachedEntity[domain.Recipe]{recipeEntity("Pale Ale", domain.SyncStatusSynced)},
		pending: 2,
	}
	m := newTestModel(src)

	view := m.View()
	assert.Contains(t, view, "Pale Ale")
	assert.Contains(t, view, "pending 2")
	assert.Contains(t, view, "online")

	src.items = append(src.items, recipeEntity("Stout", domain.SyncStatusPending))
	m, cmd := update(t, m, TickMsg{})
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Stout")
}

func TestModelFilter(t *testing.T) {
	src := &fakeSource{items: []domain.CachedEntity[domain.Recipe]{
		recipeEntity("Pale Ale", domain.SyncStatusSynced),
		recipeEntity("Oatmeal Stout", domain.SyncStatusSynced),
		recipeEntity("Porter", domain.SyncStatusSynced),
	}}
	m := newTestModel(src)

	m, _ = update(t, m, runes("/"))
	assert.True(t, m.filtering)
	m, _ = update(t, m, runes("stout"))
	require.Len(t, m.visible, 1)
	assert.Equal(t, 1, m.visible[0].index)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.filtering)
	assert.Len(t, m.visible, 1)

	// Sync key works again once the filter is closed.
	_, cmd := update(t, m, runes("s"))
	assert.NotNil(t, cmd)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Len(t, m.visible, 3)
}

func TestModelSync(t *testing.T) {
	src := &fakeSource{result: &domain.SyncResult{Success: true, Processed: 2}}
	m := newTestModel(src)

	m, cmd := update(t, m, runes("s"))
	require.NotNil(t, cmd)
	assert.True(t, m.syncing)

	// A second press while syncing does nothing.
	_, again := update(t, m, runes("s"))
	assert.Nil(t, again)

	msg := SyncCmd(context.Background(), src)()
	m, _ = update(t, m, msg)
	assert.False(t, m.syncing)
	assert.Equal(t, "2 sent", m.status)
	assert.Equal(t, 1, src.synced)
}

func TestModelErrors(t *testing.T) {
	src := &fakeSource{err: domain.ErrOffline}
	m := newTestModel(src)

	m, _ = update(t, m, SyncCmd(context.Background(), src)())
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "offline")

	m, _ = update(t, m, RefreshCmd(context.Background(), src)())
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, "cached")

	m, _ = update(t, m, ClearStatusMsg{})
	assert.Empty(t, m.status)
}

func TestModelBackgroundSyncEvents(t *testing.T) {
	src := &fakeSource{}
	m := newTestModel(src)

	m, _ = update(t, m, SyncEventMsg{Event: domain.SyncEvent{State: domain.SyncDraining, Trigger: domain.TriggerReconnect}})
	assert.True(t, m.syncing)

	res := &domain.SyncResult{Processed: 1, Failed: 1, Errors: []string{"boom"}}
	m, _ = update(t, m, SyncEventMsg{Event: domain.SyncEvent{State: domain.SyncIdle, Trigger: domain.TriggerReconnect, Result: res}})
	assert.False(t, m.syncing)
	assert.Equal(t, "reconnect sync: 1 sent, 1 failed", m.status)
	assert.True(t, m.statusErr)
}

func TestChannelObserverDoesNotBlock(t *testing.T) {
	ch := make(chan domain.SyncEvent, 1)
	o := NewChannelObserver(ch)
	o.OnSyncEvent(domain.SyncEvent{UserID: "a"})
	o.OnSyncEvent(domain.SyncEvent{UserID: "b"})

	ev := <-ch
	assert.Equal(t, "a", ev.UserID)

	cmd := ListenCmd(ch)
	ch <- domain.SyncEvent{UserID: "c", Err: errors.New("x")}
	msg, ok := cmd().(SyncEventMsg)
	require.True(t, ok)
	assert.Equal(t, "c", msg.Event.UserID)
}

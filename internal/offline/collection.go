// Package offline exposes recipes and brew sessions to the presentation
// layer. Reads come from the local cache; writes are staged locally and
// queued; the server is contacted opportunistically.
package offline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/brewsync/internal/cache"
	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/syncer"
)

// RefreshResult describes where the view came from after Refresh.
type RefreshResult struct {
	Count     int
	FromCache bool  // server unreachable, showing the local snapshot
	Cause     error // why the server copy was not used
}

// Options configures a Collection.
type Options struct {
	// WriteThrough starts a background sync after every local write when online.
	WriteThrough bool
}

// Collection is the cache-aware read/write surface for one entity type.
type Collection[T domain.Record[T], P domain.Patch[T]] struct {
	cache    *cache.Cache[T, P]
	api      domain.EntityAPI[T, P]
	engine   *syncer.Engine
	network  domain.NetworkMonitor
	sessions domain.NamespaceSource
	logger   *slog.Logger
	opts     Options

	mu         sync.RWMutex
	items      []domain.CachedEntity[T]
	generation uint64
	err        error
}

// New creates a collection and subscribes it to engine events so the view
// follows background syncs.
func New[T domain.Record[T], P domain.Patch[T]](
	c *cache.Cache[T, P],
	api domain.EntityAPI[T, P],
	engine *syncer.Engine,
	network domain.NetworkMonitor,
	sessions domain.NamespaceSource,
	opts Options,
	logger *slog.Logger,
) *Collection[T, P] {
	if logger == nil {
		logger = slog.Default()
	}
	col := &Collection[T, P]{
		cache:    c,
		api:      api,
		engine:   engine,
		network:  network,
		sessions: sessions,
		logger:   logger.With("entity", c.EntityType()),
		opts:     opts,
	}
	engine.AddObserver(col)
	return col
}

// SetWriteThrough toggles background sync after local writes.
func (c *Collection[T, P]) SetWriteThrough(on bool) {
	c.mu.Lock()
	c.opts.WriteThrough = on
	c.mu.Unlock()
}

// Items returns the current merged view. A view loaded for a namespace that
// has since been closed is never returned.
func (c *Collection[T, P]) Items() []domain.CachedEntity[T] {
	ns, err := c.sessions.Current()
	if err != nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.generation != ns.Generation {
		return nil
	}
	return append([]domain.CachedEntity[T](nil), c.items...)
}

// Err returns the error of the last directly initiated operation.
// Background sync and refresh failures never show up here.
func (c *Collection[T, P]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Get looks up one entity by server or temp id.
func (c *Collection[T, P]) Get(id string) (domain.CachedEntity[T], error) {
	ns, err := c.sessions.Current()
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	return c.cache.GetByID(ns.UserID, id)
}

// PendingCount returns how many operations still wait for the server.
func (c *Collection[T, P]) PendingCount() int {
	ns, err := c.sessions.Current()
	if err != nil {
		return 0
	}
	n, err := c.engine.PendingCount(ns.UserID)
	if err != nil {
		c.logger.Warn("failed to count pending operations", "error", err)
		return 0
	}
	return n
}

// LastSync returns when the last sync pass finished.
func (c *Collection[T, P]) LastSync() (time.Time, bool) {
	ns, err := c.sessions.Current()
	if err != nil {
		return time.Time{}, false
	}
	return c.engine.LastSync(ns.UserID)
}

// Reload recomputes the view from the cache.
func (c *Collection[T, P]) Reload() error {
	ns, err := c.sessions.Current()
	if err != nil {
		c.mu.Lock()
		c.items = nil
		c.mu.Unlock()
		return err
	}
	return c.reload(ns)
}

func (c *Collection[T, P]) reload(ns domain.Namespace) error {
	items, err := c.cache.GetAll(ns.UserID)
	if err != nil {
		return err
	}
	if !c.current(ns) {
		return nil
	}
	c.mu.Lock()
	c.items = items
	c.generation = ns.Generation
	c.mu.Unlock()
	return nil
}

// current reports whether ns is still the active namespace.
func (c *Collection[T, P]) current(ns domain.Namespace) bool {
	active, err := c.sessions.Current()
	return err == nil && active.Generation == ns.Generation
}

// Create stages data under a new temp id and returns it immediately with
// SyncStatus pending.
func (c *Collection[T, P]) Create(ctx context.Context, data T) (domain.CachedEntity[T], error) {
	ns, err := c.sessions.Current()
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}

	entity, err := c.cache.StageCreate(ns.UserID, data)
	c.setErr(err)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	c.logger.Info("created locally", "id", entity.ID)
	c.afterWrite(ns)
	return entity, nil
}

// Update overlays patch on id. id may be a server or temp id.
func (c *Collection[T, P]) Update(ctx context.Context, id string, patch P) (domain.CachedEntity[T], error) {
	ns, err := c.sessions.Current()
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}

	entity, err := c.cache.StageUpdate(ns.UserID, id, patch)
	c.setErr(err)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	c.afterWrite(ns)
	return entity, nil
}

// Delete hides id immediately and queues the server delete.
func (c *Collection[T, P]) Delete(ctx context.Context, id string) error {
	ns, err := c.sessions.Current()
	if err != nil {
		return err
	}

	err = c.cache.StageDelete(ns.UserID, id)
	c.setErr(err)
	if err != nil {
		return err
	}
	c.afterWrite(ns)
	return nil
}

func (c *Collection[T, P]) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Collection[T, P]) afterWrite(ns domain.Namespace) {
	if err := c.reload(ns); err != nil {
		c.logger.Warn("failed to reload after write", "error", err)
	}

	c.mu.RLock()
	writeThrough := c.opts.WriteThrough
	c.mu.RUnlock()
	if writeThrough && c.network.CurrentState().Online() {
		c.engine.Trigger(ns.Context(), ns.UserID, domain.TriggerWrite)
	}
}

// Sync runs a manual pass and reloads the view.
func (c *Collection[T, P]) Sync(ctx context.Context) (*domain.SyncResult, error) {
	ns, err := c.sessions.Current()
	if err != nil {
		return nil, err
	}

	res, err := c.engine.Sync(ctx, ns.UserID, domain.TriggerManual)
	if rerr := c.reload(ns); rerr != nil {
		c.logger.Warn("failed to reload after sync", "error", rerr)
	}
	return res, err
}

// Refresh replaces the snapshot with the server's list. When the server
// cannot be reached the existing snapshot is re-read instead: local data
// stays visible and Err is left alone. Results that arrive after the
// namespace changed are dropped.
func (c *Collection[T, P]) Refresh(ctx context.Context) (RefreshResult, error) {
	ns, err := c.sessions.Current()
	if err != nil {
		return RefreshResult{}, err
	}

	var cause error
	if !c.network.CurrentState().Online() {
		cause = domain.ErrOffline
	} else {
		records, err := c.api.List(ctx)
		switch {
		case err != nil:
			cause = err
		case !c.current(ns):
			c.logger.Debug("discarding refresh for closed namespace", "user", ns.UserID)
			return RefreshResult{}, domain.ErrNoSession
		default:
			if err := c.cache.ReplaceFromServer(ns.UserID, records); err != nil {
				cause = err
			}
		}
	}

	if cause != nil {
		if errors.Is(cause, context.Canceled) && !c.current(ns) {
			return RefreshResult{}, domain.ErrNoSession
		}
		c.logger.Warn("refresh failed, using cached data", "error", cause)
	}

	if err := c.reload(ns); err != nil {
		c.logger.Error("failed to read snapshot", "error", err)
	}
	return RefreshResult{
		Count:     len(c.Items()),
		FromCache: cause != nil,
		Cause:     cause,
	}, nil
}

// OnSyncEvent reloads the view when a pass for the active user finishes.
func (c *Collection[T, P]) OnSyncEvent(ev domain.SyncEvent) {
	if ev.State != domain.SyncIdle {
		return
	}
	ns, err := c.sessions.Current()
	if err != nil || ns.UserID != ev.UserID {
		return
	}
	if err := c.reload(ns); err != nil {
		c.logger.Warn("failed to reload after sync", "error", err)
	}
}

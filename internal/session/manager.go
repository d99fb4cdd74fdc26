// Package session owns the active user namespace: login, startup hydration
// and logout teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/queue"
	"github.com/mmcdole/brewsync/internal/store"
	"github.com/mmcdole/brewsync/internal/syncer"
)

const suffixHydrated = "hydrated"

// HydrateFunc pulls server data for ns into the local cache.
type HydrateFunc func(ctx context.Context, ns domain.Namespace) error

type hydrator struct {
	name string
	fn   HydrateFunc
}

// Manager is the single owner of the namespace lifecycle.
type Manager struct {
	kv        domain.KVStore
	queue     *queue.Queue
	reference domain.ReferenceAPI
	engine    *syncer.Engine
	network   domain.NetworkMonitor
	logger    *slog.Logger

	hydrators []hydrator
	hydration singleflight.Group

	mu         sync.RWMutex
	ns         domain.Namespace
	active     bool
	cancel     context.CancelFunc
	generation uint64
	hydrated   map[string]bool
}

// NewManager creates a manager with no active namespace.
func NewManager(kv domain.KVStore, q *queue.Queue, reference domain.ReferenceAPI, engine *syncer.Engine, network domain.NetworkMonitor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		kv:        kv,
		queue:     q,
		reference: reference,
		engine:    engine,
		network:   network,
		logger:    logger,
		hydrated:  make(map[string]bool),
	}
}

// AddHydrator registers a step run by every hydration after reference data.
func (m *Manager) AddHydrator(name string, fn HydrateFunc) {
	m.mu.Lock()
	m.hydrators = append(m.hydrators, hydrator{name: name, fn: fn})
	m.mu.Unlock()
}

// Current returns the active namespace.
func (m *Manager) Current() (domain.Namespace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.active {
		return domain.Namespace{}, domain.ErrNoSession
	}
	return m.ns, nil
}

// Activate makes userID the active namespace without hydrating. Activating
// the namespace that is already active is a no-op; anything else cancels the
// previous namespace's in-flight work.
func (m *Manager) Activate(userID, username string, unitSystem domain.UnitSystem) (domain.Namespace, error) {
	if userID == "" {
		return domain.Namespace{}, domain.ErrNoSession
	}
	if unitSystem == "" {
		unitSystem = domain.UnitSystemImperial
	}
	if !unitSystem.Valid() {
		return domain.Namespace{}, fmt.Errorf("%w: unknown unit system %q", domain.ErrValidation, unitSystem)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active && m.ns.UserID == userID && m.ns.UnitSystem == unitSystem {
		return m.ns, nil
	}
	if m.cancel != nil {
		m.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.generation++
	m.ns = domain.NewNamespace(ctx, userID, username, unitSystem, m.generation)
	m.cancel = cancel
	m.active = true

	m.logger.Info("namespace activated", "user", userID, "unit_system", unitSystem, "generation", m.generation)
	return m.ns, nil
}

// Login activates the namespace and runs startup hydration. Hydration is
// idempotent: repeated logins for the same user reuse the first result.
func (m *Manager) Login(ctx context.Context, userID, username string, unitSystem domain.UnitSystem) (domain.Namespace, error) {
	ns, err := m.Activate(userID, username, unitSystem)
	if err != nil {
		return domain.Namespace{}, err
	}
	return ns, m.Hydrate(ctx, false)
}

// Hydrated reports whether startup hydration completed for the active user.
func (m *Manager) Hydrated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active && m.hydrated[m.ns.UserID]
}

// Hydrate pulls reference data and runs the registered hydrators for the
// active namespace. Without force it does nothing once a hydration has
// completed. Concurrent calls share one run.
func (m *Manager) Hydrate(ctx context.Context, force bool) error {
	ns, err := m.Current()
	if err != nil {
		return err
	}

	m.mu.RLock()
	done := m.hydrated[ns.UserID]
	hydrators := append([]hydrator(nil), m.hydrators...)
	m.mu.RUnlock()
	if done && !force {
		m.logger.Debug("already hydrated", "user", ns.UserID)
		return nil
	}

	key := fmt.Sprintf("%s/%d", ns.UserID, ns.Generation)
	_, err, _ = m.hydration.Do(key, func() (interface{}, error) {
		return nil, m.hydrate(ctx, ns, hydrators)
	})
	return err
}

func (m *Manager) hydrate(ctx context.Context, ns domain.Namespace, hydrators []hydrator) error {
	// Abandon the run when either the caller or the namespace goes away.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ns.Context(), cancel)
	defer stop()

	start := time.Now()
	m.logger.Info("hydration started", "user", ns.UserID)

	var errs []error
	steps := append([]hydrator{
		{name: "ingredients", fn: m.primeIngredients},
		{name: "styles", fn: m.primeStyles},
	}, hydrators...)

	for _, step := range steps {
		if !m.isCurrent(ns) {
			m.logger.Info("hydration abandoned, namespace closed", "user", ns.UserID)
			return domain.ErrNoSession
		}
		if err := step.fn(ctx, ns); err != nil {
			m.logger.Warn("hydration step failed", "step", step.name, "user", ns.UserID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	if !m.isCurrent(ns) {
		return domain.ErrNoSession
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	m.mu.Lock()
	m.hydrated[ns.UserID] = true
	m.mu.Unlock()
	if err := m.kv.Set(store.Key(store.PrefixMeta, ns.UserID, suffixHydrated), time.Now().UTC().Format(time.RFC3339)); err != nil {
		m.logger.Warn("failed to persist hydration marker", "user", ns.UserID, "error", err)
	}

	m.logger.Info("hydration finished", "user", ns.UserID, "duration", time.Since(start))
	return nil
}

func (m *Manager) isCurrent(ns domain.Namespace) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active && m.ns.Generation == ns.Generation
}

// ResetHydration forgets that userID was hydrated.
func (m *Manager) ResetHydration(userID string) {
	m.mu.Lock()
	delete(m.hydrated, userID)
	m.mu.Unlock()
}

// Logout tears the active namespace down. In-flight hydration and refreshes
// are canceled first. With flush set, one last sync pass is attempted when
// online; its failure does not stop the logout. Any other running pass is
// stopped and waited for, then everything stored for the user is removed.
func (m *Manager) Logout(ctx context.Context, flush bool) (*domain.SyncResult, error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return nil, domain.ErrNoSession
	}
	ns := m.ns
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	var res *domain.SyncResult
	if flush && m.network.CurrentState().Online() {
		r, err := m.engine.Sync(ctx, ns.UserID, domain.TriggerManual)
		if err != nil {
			m.logger.Warn("final sync before logout failed", "user", ns.UserID, "error", err)
		} else {
			res = r
		}
	}

	// A pass still waiting on the server must finish before the user's keys
	// are removed, or its results would land in the cleared namespace.
	m.engine.Stop(ns.UserID)
	defer m.engine.Resume(ns.UserID)

	m.mu.Lock()
	m.active = false
	m.ns = domain.Namespace{}
	m.generation++
	delete(m.hydrated, ns.UserID)
	m.mu.Unlock()

	if n, err := m.queue.Count(ns.UserID); err == nil && n > 0 {
		m.logger.Warn("discarding unsynced operations", "user", ns.UserID, "count", n)
	}
	if err := m.queue.Clear(ns.UserID); err != nil {
		return res, fmt.Errorf("failed to clear queue: %w", err)
	}
	if err := store.ClearUser(m.kv, ns.UserID); err != nil {
		return res, fmt.Errorf("failed to clear user data: %w", err)
	}

	m.logger.Info("logged out", "user", ns.UserID)
	return res, nil
}

// Package app wires the offline core together from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmcdole/brewsync/internal/adapter"
	"github.com/mmcdole/brewsync/internal/api"
	"github.com/mmcdole/brewsync/internal/cache"
	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/netstatus"
	"github.com/mmcdole/brewsync/internal/offline"
	"github.com/mmcdole/brewsync/internal/queue"
	"github.com/mmcdole/brewsync/internal/session"
	"github.com/mmcdole/brewsync/internal/store"
	"github.com/mmcdole/brewsync/internal/syncer"
)

// Recipes and BrewSessions are the collections the presentation layer uses.
type (
	Recipes      = offline.Collection[domain.Recipe, domain.RecipePatch]
	BrewSessions = offline.Collection[domain.BrewSession, domain.BrewSessionPatch]
)

// App holds one instance of every component. Nothing is global.
type App struct {
	Config *adapter.Config
	Logger *slog.Logger

	Store        domain.KVStore
	Queue        *queue.Queue
	Client       *api.Client
	Network      domain.NetworkMonitor
	Engine       *syncer.Engine
	Sessions     *session.Manager
	Recipes      *Recipes
	BrewSessions *BrewSessions

	monitor *netstatus.Monitor // nil when the network is forced
	forced  *netstatus.Static  // set when force_offline built the monitor

	mu       sync.Mutex
	ctx      context.Context
	stopLoop context.CancelFunc
}

// Options overrides pieces New would otherwise build from the config.
type Options struct {
	Store   domain.KVStore
	Network domain.NetworkMonitor
}

// New builds the component graph described by cfg.
func New(cfg *adapter.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kv := opts.Store
	if kv == nil {
		var err error
		kv, err = store.Open(cfg.Store.Driver, cfg.Store.Path, cfg.Server.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  kv,
		Queue:  queue.New(kv, logger.With("component", "queue")),
		Client: api.NewClient(cfg.Server.URL, cfg.Server.Token, logger.With("component", "api")),
		ctx:    context.Background(),
	}

	a.Network = opts.Network
	if a.Network == nil {
		if cfg.Network.ForceOffline {
			a.forced = netstatus.NewStatic(netstatus.Offline())
			a.Network = a.forced
		} else {
			a.monitor = netstatus.NewMonitor(cfg.Server.URL, netstatus.Options{
				ProbePath:     cfg.Network.ProbePath,
				ProbeInterval: cfg.Network.ProbeInterval,
				ProbeTimeout:  cfg.Network.ProbeTimeout,
			}, logger.With("component", "netstatus"))
			a.Network = a.monitor
		}
	}

	recipeCache := cache.New[domain.Recipe, domain.RecipePatch](kv, a.Queue, logger.With("component", "cache"))
	sessionCache := cache.New[domain.BrewSession, domain.BrewSessionPatch](kv, a.Queue, logger.With("component", "cache"))

	a.Engine = syncer.New(a.Queue, kv, a.Network, SyncConfig(cfg.Sync), logger.With("component", "syncer"),
		syncer.Bind(recipeCache, a.Client.Recipes(), logger),
		syncer.Bind(sessionCache, a.Client.BrewSessions(), logger),
	)
	a.Sessions = session.NewManager(kv, a.Queue, a.Client, a.Engine, a.Network, logger.With("component", "session"))

	colOpts := offline.Options{WriteThrough: cfg.Sync.WriteThrough}
	a.Recipes = offline.New(recipeCache, a.Client.Recipes(), a.Engine, a.Network, a.Sessions, colOpts, logger)
	a.BrewSessions = offline.New(sessionCache, a.Client.BrewSessions(), a.Engine, a.Network, a.Sessions, colOpts, logger)

	// Recipes first so sessions referencing them resolve.
	a.Sessions.AddHydrator("recipes", refresher(a.Recipes))
	a.Sessions.AddHydrator("brew_sessions", refresher(a.BrewSessions))

	return a, nil
}

// refresher adapts a collection refresh to a hydration step. A refresh that
// fell back to the cache counts as a failed step.
func refresher[T domain.Record[T], P domain.Patch[T]](c *offline.Collection[T, P]) session.HydrateFunc {
	return func(ctx context.Context, _ domain.Namespace) error {
		res, err := c.Refresh(ctx)
		if err != nil {
			return err
		}
		if res.FromCache {
			return res.Cause
		}
		return nil
	}
}

// SyncConfig converts the config file section to engine policy.
func SyncConfig(cfg adapter.SyncConfig) syncer.Config {
	return syncer.Config{
		Cooldown:      cfg.Cooldown,
		CheckInterval: cfg.CheckInterval,
		MaxAttempts:   cfg.MaxAttempts,
		BackoffBase:   cfg.BackoffBase,
		BackoffMax:    cfg.BackoffMax,
	}
}

// Start begins network probing and, when the config names a user, resumes
// that user's namespace without hydrating. Work stops when ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	if a.monitor != nil {
		a.monitor.Check(ctx)
		go a.monitor.Start(ctx)
	}

	if a.Config.Session.UserID == "" {
		return nil
	}
	ns, err := a.Sessions.Activate(a.Config.Session.UserID, a.Config.Session.Username, domain.UnitSystem(a.Config.Session.UnitSystem))
	if err != nil {
		return err
	}
	a.startLoop(ns)
	if err := a.Recipes.Reload(); err != nil {
		a.Logger.Warn("failed to load recipes", "error", err)
	}
	if err := a.BrewSessions.Reload(); err != nil {
		a.Logger.Warn("failed to load brew sessions", "error", err)
	}
	return nil
}

// startLoop runs the background sync loop for ns until either the app or
// the namespace is done.
func (a *App) startLoop(ns domain.Namespace) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopLoop != nil {
		a.stopLoop()
	}

	ctx, cancel := context.WithCancel(ns.Context())
	stop := context.AfterFunc(a.ctx, cancel)
	a.stopLoop = func() {
		stop()
		cancel()
	}
	go a.Engine.Run(ctx, ns.UserID)
}

// Login authenticates against the API, activates the user's namespace and
// hydrates it. Hydration failures are returned but leave the user logged in
// with whatever the cache holds.
func (a *App) Login(ctx context.Context, username, password string) (*domain.AuthResult, error) {
	auth, err := a.Client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	a.Config.Server.Token = auth.Token
	a.Config.Session.UserID = auth.UserID
	a.Config.Session.Username = auth.Username

	unit := domain.UnitSystem(a.Config.Session.UnitSystem)
	ns, err := a.Sessions.Activate(auth.UserID, auth.Username, unit)
	if err != nil {
		return nil, err
	}
	a.startLoop(ns)

	if err := a.Sessions.Hydrate(ctx, false); err != nil {
		a.Logger.Warn("hydration incomplete", "user", auth.UserID, "error", err)
		return auth, fmt.Errorf("hydration incomplete: %w", err)
	}
	return auth, nil
}

// Logout tears the namespace down and forgets the token.
func (a *App) Logout(ctx context.Context, flush bool) (*domain.SyncResult, error) {
	res, err := a.Sessions.Logout(ctx, flush)
	a.mu.Lock()
	if a.stopLoop != nil {
		a.stopLoop()
		a.stopLoop = nil
	}
	a.mu.Unlock()

	a.Client.SetToken("")
	a.Config.Server.Token = ""
	a.Config.Session.UserID = ""
	a.Config.Session.Username = ""
	return res, err
}

// ApplyConfig pushes reloadable settings into running components.
func (a *App) ApplyConfig(cfg *adapter.Config) {
	a.Engine.SetConfig(SyncConfig(cfg.Sync))
	a.Recipes.SetWriteThrough(cfg.Sync.WriteThrough)
	a.BrewSessions.SetWriteThrough(cfg.Sync.WriteThrough)
	// Without a probe, lifting force_offline can only assume the API is up.
	if a.forced != nil {
		if cfg.Network.ForceOffline {
			a.forced.Set(netstatus.Offline())
		} else {
			a.forced.Set(netstatus.Online())
		}
	}
	a.Logger.Info("configuration applied",
		"cooldown", cfg.Sync.Cooldown,
		"max_attempts", cfg.Sync.MaxAttempts,
		"write_through", cfg.Sync.WriteThrough,
	)
}

// Close stops the sync loop and closes the store.
func (a *App) Close() error {
	a.mu.Lock()
	if a.stopLoop != nil {
		a.stopLoop()
		a.stopLoop = nil
	}
	a.mu.Unlock()
	return a.Store.Close()
}

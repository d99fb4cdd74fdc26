// Package syncer drains the pending operation queue against the remote API.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/queue"
	"github.com/mmcdole/brewsync/internal/store"
)

const suffixLastSync = "last_sync"

// Config is the engine's retry and scheduling policy.
type Config struct {
	Cooldown      time.Duration // minimum gap between periodic passes
	CheckInterval time.Duration // how often Run checks the cooldown
	MaxAttempts   int           // transient failures before an op is dropped
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

// DefaultConfig returns the default sync policy.
func DefaultConfig() Config {
	return Config{
		Cooldown:      5 * time.Minute,
		CheckInterval: time.Minute,
		MaxAttempts:   queue.DefaultMaxAttempts,
		BackoffBase:   queue.DefaultBackoffBase,
		BackoffMax:    queue.DefaultBackoffMax,
	}
}

// Engine replays queued operations in order. One pass runs per user at a
// time; concurrent callers share its result.
type Engine struct {
	queue   *queue.Queue
	kv      domain.KVStore
	network domain.NetworkMonitor
	logger  *slog.Logger
	targets map[domain.EntityType]Target

	mu        sync.RWMutex
	cfg       Config
	now       func() time.Time
	states    map[string]domain.SyncState
	lastPass  map[string]time.Time
	observers []domain.SyncObserver
	running   map[string]*pass
	stopped   map[string]bool

	passes singleflight.Group
}

// pass is a drain in progress for one user.
type pass struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an engine. Each target handles one entity type.
func New(q *queue.Queue, kv domain.KVStore, network domain.NetworkMonitor, cfg Config, logger *slog.Logger, targets ...Target) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		queue:    q,
		kv:       kv,
		network:  network,
		logger:   logger,
		targets:  make(map[domain.EntityType]Target, len(targets)),
		cfg:      normalize(cfg),
		now:      time.Now,
		states:   make(map[string]domain.SyncState),
		lastPass: make(map[string]time.Time),
		running:  make(map[string]*pass),
		stopped:  make(map[string]bool),
	}
	for _, t := range targets {
		e.targets[t.EntityType()] = t
	}
	return e
}

func normalize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	return cfg
}

// SetConfig replaces the policy. Running loops pick it up on their next tick.
func (e *Engine) SetConfig(cfg Config) {
	e.mu.Lock()
	e.cfg = normalize(cfg)
	e.mu.Unlock()
}

// Config returns the current policy.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetClock overrides the time source (tests).
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

func (e *Engine) clock() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now()
}

// AddObserver registers o for sync events.
func (e *Engine) AddObserver(o domain.SyncObserver) {
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

func (e *Engine) notify(ev domain.SyncEvent) {
	e.mu.RLock()
	observers := append([]domain.SyncObserver(nil), e.observers...)
	e.mu.RUnlock()
	for _, o := range observers {
		o.OnSyncEvent(ev)
	}
}

// State returns whether a pass is running for userID.
func (e *Engine) State(userID string) domain.SyncState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s, ok := e.states[userID]; ok {
		return s
	}
	return domain.SyncIdle
}

func (e *Engine) setState(userID string, s domain.SyncState) {
	e.mu.Lock()
	e.states[userID] = s
	e.mu.Unlock()
}

// PendingCount returns the number of queued operations for userID.
func (e *Engine) PendingCount(userID string) (int, error) {
	return e.queue.Count(userID)
}

// LastSync returns when the last completed pass for userID finished.
func (e *Engine) LastSync(userID string) (time.Time, bool) {
	raw, ok, err := e.kv.Get(store.Key(store.PrefixMeta, userID, suffixLastSync))
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		e.logger.Warn("invalid last sync timestamp", "user", userID, "value", raw)
		return time.Time{}, false
	}
	return t, true
}

// Sync runs one pass for userID and returns its summary. It fails with
// domain.ErrOffline without touching the queue when the network monitor
// reports no connectivity. Concurrent calls for the same user share one pass.
func (e *Engine) Sync(ctx context.Context, userID string, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	if userID == "" {
		return nil, domain.ErrNoSession
	}
	if !e.network.CurrentState().Online() {
		return nil, domain.ErrOffline
	}

	v, err, shared := e.passes.Do(userID, func() (interface{}, error) {
		ctx, finish, err := e.begin(ctx, userID)
		if err != nil {
			return nil, err
		}
		defer finish()
		return e.drain(ctx, userID, trigger)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.logger.Debug("joined running sync pass", "user", userID, "trigger", trigger)
	}
	res := *v.(*domain.SyncResult)
	res.Errors = append([]string(nil), res.Errors...)
	return &res, nil
}

// begin registers a pass for userID so Stop can cancel and wait for it.
func (e *Engine) begin(ctx context.Context, userID string) (context.Context, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped[userID] {
		return nil, nil, domain.ErrNoSession
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &pass{cancel: cancel, done: make(chan struct{})}
	e.running[userID] = p
	return ctx, func() {
		cancel()
		e.mu.Lock()
		delete(e.running, userID)
		e.mu.Unlock()
		close(p.done)
	}, nil
}

// Stop cancels userID's running pass, waits for it to return and refuses
// new passes until Resume. Nothing the pass learns from the server after
// Stop returns is written to the store.
func (e *Engine) Stop(userID string) {
	e.mu.Lock()
	e.stopped[userID] = true
	p := e.running[userID]
	e.mu.Unlock()

	if p == nil {
		return
	}
	e.logger.Info("stopping sync pass", "user", userID)
	p.cancel()
	<-p.done
}

// Resume allows passes for userID again after Stop.
func (e *Engine) Resume(userID string) {
	e.mu.Lock()
	delete(e.stopped, userID)
	e.mu.Unlock()
}

// Trigger starts a pass in the background. Errors are logged.
func (e *Engine) Trigger(ctx context.Context, userID string, trigger domain.SyncTrigger) {
	go func() {
		res, err := e.Sync(ctx, userID, trigger)
		if err != nil {
			e.logger.Debug("background sync skipped", "user", userID, "trigger", trigger, "error", err)
			return
		}
		e.logger.Debug("background sync finished",
			"user", userID,
			"trigger", trigger,
			"processed", res.Processed,
			"failed", res.Failed,
			"retried", res.Retried,
		)
	}()
}

// drain processes the queue once. The queue is re-read after every op so
// ids rewritten by a reconciliation are seen by the rest of the pass.
func (e *Engine) drain(ctx context.Context, userID string, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	cfg := e.Config()
	res := &domain.SyncResult{StartedAt: e.clock()}

	e.setState(userID, domain.SyncDraining)
	e.notify(domain.SyncEvent{UserID: userID, Trigger: trigger, State: domain.SyncDraining})
	e.logger.Info("sync started", "user", userID, "trigger", trigger)

	defer func() {
		res.FinishedAt = e.clock()
		res.Success = len(res.Errors) == 0
		e.mu.Lock()
		e.states[userID] = domain.SyncIdle
		e.lastPass[userID] = res.FinishedAt
		e.mu.Unlock()
		e.notify(domain.SyncEvent{UserID: userID, Trigger: trigger, State: domain.SyncIdle, Result: res})
	}()

	respectSchedule := trigger == domain.TriggerPeriodic || trigger == domain.TriggerWrite
	visited := make(map[string]bool)
	blocked := make(map[string]bool)

	for {
		if ctx.Err() != nil {
			e.logger.Info("sync canceled", "user", userID)
			return res, nil
		}

		ops, err := e.queue.List(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending operations: %w", err)
		}

		var op *domain.PendingOperation
		for i := range ops {
			if !visited[ops[i].ID] {
				op = &ops[i]
				break
			}
		}
		if op == nil {
			break
		}
		visited[op.ID] = true

		if reason := e.holdReason(*op, ops, blocked, respectSchedule); reason != "" {
			blocked[op.TargetID] = true
			res.Skipped++
			e.logger.Debug("operation held", "op", op.ID, "target", op.TargetID, "reason", reason)
			e.notify(domain.SyncEvent{UserID: userID, Trigger: trigger, State: domain.SyncDraining, Operation: op, Outcome: domain.OutcomeSkipped})
			continue
		}

		if orphan := e.orphanedBy(*op, ops); orphan != "" {
			err := fmt.Errorf("%s was never created on the server", orphan)
			e.fail(userID, *op, err, res)
			e.notify(domain.SyncEvent{UserID: userID, Trigger: trigger, State: domain.SyncDraining, Operation: op, Outcome: domain.OutcomePermanent, Err: err})
			continue
		}

		target, ok := e.targets[op.EntityType]
		if !ok {
			err := fmt.Errorf("no sync target for %s", op.EntityType)
			e.fail(userID, *op, err, res)
			continue
		}

		serverID, sendErr := target.Send(ctx, userID, *op)
		if sendErr == nil {
			e.applied(userID, *op, serverID, res)
			e.notify(domain.SyncEvent{UserID: userID, Trigger: trigger, State: domain.SyncDraining, Operation: op, Outcome: domain.OutcomeApplied})
			continue
		}

		kind := classify(sendErr)
		switch kind {
		case failCanceled:
			e.logger.Info("sync canceled", "user", userID)
			return res, nil

		case failAuth:
			res.Errors = append(res.Errors, "authentication failed: sign in again to sync")
			e.logger.Warn("sync halted, authentication rejected", "user", userID)
			e.notify(domain.SyncEvent{UserID: userID, Trigger: trigger, State: domain.SyncDraining, Operation: op, Outcome: domain.OutcomeRetryable, Err: sendErr})
			return res, nil

		case failTransient:
			attempts := op.Attempts + 1
			if attempts >= cfg.MaxAttempts {
				e.fail(userID, *op, fmt.Errorf("gave up after %d attempts: %w", attempts, sendErr), res)
				kind = failPermanent
				break
			}
			next := e.clock().Add(queue.Backoff(attempts, cfg.BackoffBase, cfg.BackoffMax))
			if _, err := e.queue.RecordFailure(userID, op.ID, sendErr, next); err != nil {
				e.logger.Error("failed to record retry", "op", op.ID, "error", err)
			}
			blocked[op.TargetID] = true
			res.Retried++
			e.logger.Warn("operation will be retried",
				"op", op.ID,
				"target", op.TargetID,
				"attempt", attempts,
				"next", next,
				"error", sendErr,
			)

		case failConflict:
			e.conflict(userID, *op, sendErr, res)

		case failPermanent:
			e.fail(userID, *op, sendErr, res)
		}

		e.notify(domain.SyncEvent{UserID: userID, Trigger: trigger, State: domain.SyncDraining, Operation: op, Outcome: kind.outcome(), Err: sendErr})
	}

	if err := e.kv.Set(store.Key(store.PrefixMeta, userID, suffixLastSync), e.clock().Format(time.RFC3339Nano)); err != nil {
		e.logger.Warn("failed to persist last sync time", "user", userID, "error", err)
	}

	e.logger.Info("sync finished",
		"user", userID,
		"processed", res.Processed,
		"failed", res.Failed,
		"conflicts", res.Conflicts,
		"retried", res.Retried,
		"skipped", res.Skipped,
	)
	return res, nil
}

// holdReason reports why op must wait for a later pass, or "" if it may be sent.
func (e *Engine) holdReason(op domain.PendingOperation, queued []domain.PendingOperation, blocked map[string]bool, respectSchedule bool) string {
	if blocked[op.TargetID] {
		return "earlier operation on target did not complete"
	}
	if respectSchedule && !op.NextAttemptAt.IsZero() && op.NextAttemptAt.After(e.clock()) {
		return "backing off"
	}
	refs, err := domain.References(op)
	if err != nil {
		return ""
	}
	for _, ref := range refs {
		if domain.IsTempID(ref) && hasCreate(queued, ref) {
			return "waiting for " + ref
		}
	}
	return ""
}

// orphanedBy returns the temp id op depends on when no queued create will
// ever produce it.
func (e *Engine) orphanedBy(op domain.PendingOperation, queued []domain.PendingOperation) string {
	if op.Kind != domain.OpCreate && domain.IsTempID(op.TargetID) && !hasCreate(queued, op.TargetID) {
		return op.TargetID
	}
	refs, _ := domain.References(op)
	for _, ref := range refs {
		if domain.IsTempID(ref) && !hasCreate(queued, ref) {
			return ref
		}
	}
	return ""
}

func hasCreate(queued []domain.PendingOperation, id string) bool {
	for _, q := range queued {
		if q.Kind == domain.OpCreate && q.TargetID == id {
			return true
		}
	}
	return false
}

func (e *Engine) applied(userID string, op domain.PendingOperation, serverID string, res *domain.SyncResult) {
	if err := e.queue.Dequeue(userID, op.ID); err != nil {
		e.logger.Error("failed to dequeue applied operation", "op", op.ID, "error", err)
	}
	res.Processed++

	if op.Kind == domain.OpCreate && serverID != "" && serverID != op.TargetID {
		for _, t := range e.targets {
			if t.EntityType() == op.EntityType {
				continue
			}
			if err := t.RewriteReferences(userID, op.TargetID, serverID); err != nil {
				e.logger.Error("failed to rewrite references",
					"entity", t.EntityType(), "from", op.TargetID, "to", serverID, "error", err)
			}
		}
	}
	e.logger.Debug("operation applied", "op", op.ID, "kind", op.Kind, "target", op.TargetID, "id", serverID)
}

func (e *Engine) fail(userID string, op domain.PendingOperation, cause error, res *domain.SyncResult) {
	msg := fmt.Sprintf("%s %s %s failed: %v", op.Kind, op.EntityType, op.TargetID, cause)
	if t, ok := e.targets[op.EntityType]; ok {
		if err := t.MarkStatus(userID, op.TargetID, domain.SyncStatusFailed, cause.Error()); err != nil {
			e.logger.Error("failed to mark entity failed", "id", op.TargetID, "error", err)
		}
	}
	if err := e.queue.Dequeue(userID, op.ID); err != nil {
		e.logger.Error("failed to dequeue failed operation", "op", op.ID, "error", err)
	}
	res.Failed++
	res.Errors = append(res.Errors, msg)
	e.logger.Warn("operation failed permanently", "op", op.ID, "target", op.TargetID, "error", cause)
}

func (e *Engine) conflict(userID string, op domain.PendingOperation, cause error, res *domain.SyncResult) {
	if t, ok := e.targets[op.EntityType]; ok {
		if err := t.MarkStatus(userID, op.TargetID, domain.SyncStatusConflict, cause.Error()); err != nil {
			e.logger.Error("failed to mark entity conflicted", "id", op.TargetID, "error", err)
		}
	}
	if err := e.queue.Dequeue(userID, op.ID); err != nil {
		e.logger.Error("failed to dequeue conflicted operation", "op", op.ID, "error", err)
	}
	res.Conflicts++
	res.Errors = append(res.Errors, fmt.Sprintf("%s %s %s conflicts with server: %v", op.Kind, op.EntityType, op.TargetID, cause))
	e.logger.Warn("operation conflicted", "op", op.ID, "target", op.TargetID, "error", cause)
}

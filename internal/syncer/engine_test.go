package syncer

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/brewsync/internal/adapter"
	"github.com/mmcdole/brewsync/internal/cache"
	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/netstatus"
	"github.com/mmcdole/brewsync/internal/queue"
	"github.com/mmcdole/brewsync/internal/store"
)

const user = "alice"

type harness struct {
	kv         domain.KVStore
	queue      *queue.Queue
	recipes    *cache.Cache[domain.Recipe, domain.RecipePatch]
	sessions   *cache.Cache[domain.BrewSession, domain.BrewSessionPatch]
	recipeAPI  *fakeAPI[domain.Recipe, domain.RecipePatch]
	sessionAPI *fakeAPI[domain.BrewSession, domain.BrewSessionPatch]
	network    *netstatus.Static
	engine     *Engine
	now        time.Time
	clockMu    sync.Mutex
}

func newHarness(t *testing.T, kv domain.KVStore, cfg Config) *harness {
	t.Helper()
	if kv == nil {
		var err error
		kv, err = store.NewBoltStore("", "")
		require.NoError(t, err)
	}
	logger := adapter.NullLogger()
	h := &harness{
		kv:         kv,
		queue:      queue.New(kv, logger),
		recipeAPI:  newFakeAPI[domain.Recipe, domain.RecipePatch]("recipe"),
		sessionAPI: newFakeAPI[domain.BrewSession, domain.BrewSessionPatch]("session"),
		network:    netstatus.NewStatic(netstatus.Online()),
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.recipes = cache.New[domain.Recipe, domain.RecipePatch](kv, h.queue, logger)
	h.sessions = cache.New[domain.BrewSession, domain.BrewSessionPatch](kv, h.queue, logger)
	h.engine = New(h.queue, kv, h.network, cfg, logger,
		Bind(h.recipes, h.recipeAPI, logger),
		Bind(h.sessions, h.sessionAPI, logger),
	)
	h.engine.SetClock(h.clock)
	return h
}

func (h *harness) clock() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.clockMu.Lock()
	h.now = h.now.Add(d)
	h.clockMu.Unlock()
}

func (h *harness) pending(t *testing.T) []domain.PendingOperation {
	t.Helper()
	ops, err := h.queue.List(user)
	require.NoError(t, err)
	return ops
}

func recipe(name string) domain.Recipe {
	return domain.Recipe{Name: name, Style: "IPA", BatchSize: 5}
}

func strPtr(s string) *string { return &s }

func TestSyncCreateThenUpdateKeepsOrder(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	h.network.Set(netstatus.Offline())

	e, err := h.recipes.StageCreate(user, recipe("A"))
	require.NoError(t, err)
	_, err = h.recipes.StageUpdate(user, e.ID, domain.RecipePatch{Name: strPtr("B")})
	require.NoError(t, err)

	h.network.Set(netstatus.Online())
	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Processed)
	assert.Empty(t, h.pending(t))

	server, ok := h.recipeAPI.get("recipe-1")
	require.True(t, ok)
	assert.Equal(t, "B", server.Name)
	assert.Equal(t, []string{"create " + e.ID, "update recipe-1"}, h.recipeAPI.callLog())

	got, err := h.recipes.GetByID(user, "recipe-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSynced, got.SyncStatus)
	assert.False(t, got.NeedsSync)
	assert.Equal(t, "B", got.Data.Name)

	_, err = h.recipes.GetByID(user, e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncReconcilesDependentBrewSession(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())

	r, err := h.recipes.StageCreate(user, recipe("Saison"))
	require.NoError(t, err)
	s, err := h.sessions.StageCreate(user, domain.BrewSession{RecipeID: r.ID, Name: "First brew"})
	require.NoError(t, err)

	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	server, ok := h.sessionAPI.get("session-1")
	require.True(t, ok)
	assert.Equal(t, "recipe-1", server.RecipeID)

	got, err := h.sessions.GetByID(user, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "recipe-1", got.Data.RecipeID)

	_, err = h.sessions.GetByID(user, s.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncDeleteNotFoundIsPermanent(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	require.NoError(t, h.recipes.ReplaceFromServer(user, []domain.Recipe{{ID: "recipe-404", Name: "Gone", BatchSize: 1}}))
	require.NoError(t, h.recipes.StageDelete(user, "recipe-404"))

	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "recipe-404")
	assert.Empty(t, h.pending(t))

	got, err := h.recipes.GetByID(user, "recipe-404")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, got.SyncStatus)

	// Not retried on the next pass.
	res, err = h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Zero(t, res.Processed+res.Failed)
}

func TestSyncTransientFailureBacksOff(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	e, err := h.recipes.StageCreate(user, recipe("Bock"))
	require.NoError(t, err)

	h.recipeAPI.failNext(&domain.APIError{StatusCode: http.StatusServiceUnavailable})
	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Retried)

	ops := h.pending(t)
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Attempts)
	assert.True(t, ops[0].NextAttemptAt.Equal(h.clock().Add(30*time.Second)))
	assert.NotEmpty(t, ops[0].LastError)

	got, err := h.recipes.GetByID(user, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)

	// A periodic pass respects the backoff window.
	res, err = h.engine.Sync(context.Background(), user, domain.TriggerPeriodic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, h.recipeAPI.callLog(), 1)

	h.advance(31 * time.Second)
	res, err = h.engine.Sync(context.Background(), user, domain.TriggerPeriodic)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Empty(t, h.pending(t))
}

func TestSyncManualIgnoresBackoff(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	_, err := h.recipes.StageCreate(user, recipe("Mild"))
	require.NoError(t, err)

	h.recipeAPI.failNext(domain.ErrServerOffline)
	_, err = h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)

	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

func TestSyncAttemptCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	h := newHarness(t, nil, cfg)
	e, err := h.recipes.StageCreate(user, recipe("Dunkel"))
	require.NoError(t, err)

	h.recipeAPI.failNext(domain.ErrServerOffline, domain.ErrServerOffline)

	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	res, err = h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "gave up after 2 attempts")
	assert.Empty(t, h.pending(t))

	got, err := h.recipes.GetByID(user, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, got.SyncStatus)
}

func TestSyncRetryBlocksOnlyThatTarget(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	require.NoError(t, h.recipes.ReplaceFromServer(user, nil))
	a, err := h.recipes.StageCreate(user, recipe("A"))
	require.NoError(t, err)
	_, err = h.recipes.StageUpdate(user, a.ID, domain.RecipePatch{Name: strPtr("A2")})
	require.NoError(t, err)
	_, err = h.recipes.StageCreate(user, recipe("B"))
	require.NoError(t, err)

	h.recipeAPI.failNext(&domain.APIError{StatusCode: http.StatusBadGateway})
	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Processed)

	ops := h.pending(t)
	require.Len(t, ops, 2)
	assert.Equal(t, a.ID, ops[0].TargetID)
	assert.Equal(t, domain.OpCreate, ops[0].Kind)
	assert.Equal(t, a.ID, ops[1].TargetID)
	assert.Equal(t, domain.OpUpdate, ops[1].Kind)
}

func TestSyncHoldsSessionUntilRecipeExists(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	r, err := h.recipes.StageCreate(user, recipe("Kolsch"))
	require.NoError(t, err)
	_, err = h.sessions.StageCreate(user, domain.BrewSession{RecipeID: r.ID, Name: "Brew"})
	require.NoError(t, err)

	h.recipeAPI.failNext(domain.ErrServerOffline)
	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, h.sessionAPI.callLog())
	assert.Len(t, h.pending(t), 2)
}

func TestSyncOrphanedSessionFails(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	r, err := h.recipes.StageCreate(user, recipe("Lambic"))
	require.NoError(t, err)
	s, err := h.sessions.StageCreate(user, domain.BrewSession{RecipeID: r.ID, Name: "Brew"})
	require.NoError(t, err)

	h.recipeAPI.failNext(&domain.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "invalid"})
	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Empty(t, h.pending(t))

	got, err := h.sessions.GetByID(user, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, got.SyncStatus)
}

func TestSyncAuthFailureHalts(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	_, err := h.recipes.StageCreate(user, recipe("A"))
	require.NoError(t, err)
	_, err = h.recipes.StageCreate(user, recipe("B"))
	require.NoError(t, err)

	h.recipeAPI.failNext(domain.ErrAuthFailed)
	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Len(t, h.recipeAPI.callLog(), 1)

	ops := h.pending(t)
	require.Len(t, ops, 2)
	assert.Zero(t, ops[0].Attempts)
}

func TestSyncConflict(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	require.NoError(t, h.recipes.ReplaceFromServer(user, []domain.Recipe{{ID: "recipe-7", Name: "Old", BatchSize: 1}}))
	_, err := h.recipes.StageUpdate(user, "recipe-7", domain.RecipePatch{Name: strPtr("Mine")})
	require.NoError(t, err)

	h.recipeAPI.failNext(&domain.APIError{StatusCode: http.StatusConflict, Message: "version mismatch"})
	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Zero(t, res.Failed)
	assert.Empty(t, h.pending(t))

	got, err := h.recipes.GetByID(user, "recipe-7")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusConflict, got.SyncStatus)
}

func TestSyncOfflineLeavesQueue(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	h.network.Set(netstatus.Offline())
	_, err := h.recipes.StageCreate(user, recipe("A"))
	require.NoError(t, err)

	_, err = h.engine.Sync(context.Background(), user, domain.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrOffline)
	assert.Len(t, h.pending(t), 1)
	assert.Empty(t, h.recipeAPI.callLog())

	_, err = h.engine.Sync(context.Background(), "", domain.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestQueueSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	kv, err := store.NewBoltStore(dir, "")
	require.NoError(t, err)

	h := newHarness(t, kv, DefaultConfig())
	h.network.Set(netstatus.Offline())
	_, err = h.recipes.StageCreate(user, recipe("Restart Red"))
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	kv, err = store.NewBoltStore(dir, "")
	require.NoError(t, err)
	defer kv.Close()

	h = newHarness(t, kv, DefaultConfig())
	require.Len(t, h.pending(t), 1)

	res, err := h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	server, ok := h.recipeAPI.get("recipe-1")
	require.True(t, ok)
	assert.Equal(t, "Restart Red", server.Name)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []domain.SyncEvent
}

func (o *recordingObserver) OnSyncEvent(ev domain.SyncEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func TestObserverAndLastSync(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	obs := &recordingObserver{}
	h.engine.AddObserver(obs)

	_, ok := h.engine.LastSync(user)
	assert.False(t, ok)

	_, err := h.recipes.StageCreate(user, recipe("A"))
	require.NoError(t, err)
	_, err = h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)

	require.Len(t, obs.events, 3)
	assert.Equal(t, domain.SyncDraining, obs.events[0].State)
	assert.Equal(t, domain.OutcomeApplied, obs.events[1].Outcome)
	assert.Equal(t, domain.SyncIdle, obs.events[2].State)
	require.NotNil(t, obs.events[2].Result)
	assert.Equal(t, 1, obs.events[2].Result.Processed)

	last, ok := h.engine.LastSync(user)
	require.True(t, ok)
	assert.True(t, last.Equal(h.clock()))
	assert.Equal(t, domain.SyncIdle, h.engine.State(user))
}

func TestRunSyncsOnReconnect(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	h.network.Set(netstatus.Offline())
	_, err := h.recipes.StageCreate(user, recipe("Reconnect Rye"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		h.engine.Run(ctx, user)
		close(done)
	}()

	require.Eventually(t, func() bool {
		// Toggle until the loop has subscribed and seen the transition.
		h.network.Set(netstatus.Offline())
		h.network.Set(netstatus.Online())
		n, _ := h.queue.Count(user)
		return n == 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestDueForPeriodic(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())

	assert.False(t, h.engine.dueForPeriodic(user, 5*time.Minute), "nothing queued")

	_, err := h.recipes.StageCreate(user, recipe("A"))
	require.NoError(t, err)
	assert.True(t, h.engine.dueForPeriodic(user, 5*time.Minute))

	h.recipeAPI.failNext(domain.ErrServerOffline)
	_, err = h.engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.False(t, h.engine.dueForPeriodic(user, 5*time.Minute), "inside cooldown")

	h.advance(5 * time.Minute)
	assert.True(t, h.engine.dueForPeriodic(user, 5*time.Minute))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, failTransient, classify(domain.ErrServerOffline))
	assert.Equal(t, failTransient, classify(context.DeadlineExceeded))
	assert.Equal(t, failTransient, classify(&domain.APIError{StatusCode: 429}))
	assert.Equal(t, failTransient, classify(&domain.APIError{StatusCode: 500}))
	assert.Equal(t, failAuth, classify(domain.ErrAuthFailed))
	assert.Equal(t, failConflict, classify(&domain.APIError{StatusCode: 409}))
	assert.Equal(t, failPermanent, classify(&domain.APIError{StatusCode: 400}))
	assert.Equal(t, failPermanent, classify(permanent(assert.AnError)))
	assert.Equal(t, failCanceled, classify(context.Canceled))
	assert.True(t, strings.Contains(permanent(assert.AnError).Error(), "assert.AnError"))
}

// gatedAPI holds every Create until release is closed.
type gatedAPI struct {
	*fakeAPI[domain.Recipe, domain.RecipePatch]
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAPI) Create(ctx context.Context, r domain.Recipe) (domain.Recipe, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.fakeAPI.Create(ctx, r)
}

func TestStopWaitsAndDiscardsLateResult(t *testing.T) {
	h := newHarness(t, nil, DefaultConfig())
	api := &gatedAPI{fakeAPI: h.recipeAPI, entered: make(chan struct{}, 1), release: make(chan struct{})}
	logger := adapter.NullLogger()
	engine := New(h.queue, h.kv, h.network, DefaultConfig(), logger, Bind(h.recipes, api, logger))

	local, err := h.recipes.StageCreate(user, recipe("A"))
	require.NoError(t, err)

	go engine.Sync(context.Background(), user, domain.TriggerManual)
	<-api.entered

	stopped := make(chan struct{})
	go func() {
		engine.Stop(user)
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned before the pass finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(api.release)
	<-stopped

	// The server answered, but the local state is exactly as before the pass.
	ops := h.pending(t)
	require.Len(t, ops, 1)
	assert.Equal(t, local.ID, ops[0].TargetID)
	assert.Equal(t, domain.OpCreate, ops[0].Kind)
	got, err := h.recipes.GetByID(user, local.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)

	_, err = engine.Sync(context.Background(), user, domain.TriggerManual)
	assert.ErrorIs(t, err, domain.ErrNoSession)

	engine.Resume(user)
	res, err := engine.Sync(context.Background(), user, domain.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
}

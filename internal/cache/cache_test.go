package cache

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/brewsync/internal/adapter"
	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/queue"
	"github.com/mmcdole/brewsync/internal/store"
)

type fixture struct {
	kv       domain.KVStore
	queue    *queue.Queue
	recipes  *Cache[domain.Recipe, domain.RecipePatch]
	sessions *Cache[domain.BrewSession, domain.BrewSessionPatch]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv, err := store.NewBoltStore("", "")
	require.NoError(t, err)
	logger := adapter.NullLogger()
	q := queue.New(kv, logger)
	return &fixture{
		kv:       kv,
		queue:    q,
		recipes:  New[domain.Recipe, domain.RecipePatch](kv, q, logger),
		sessions: New[domain.BrewSession, domain.BrewSessionPatch](kv, q, logger),
	}
}

func testRecipe(name string) domain.Recipe {
	return domain.Recipe{Name: name, Style: "IPA", BatchSize: 5, UnitSystem: domain.UnitSystemImperial}
}

func strPtr(s string) *string { return &s }

func TestStageCreateReadYourWrites(t *testing.T) {
	f := newFixture(t)

	entity, err := f.recipes.StageCreate("alice", testRecipe("Test Recipe 1"))
	require.NoError(t, err)
	assert.True(t, domain.IsTempID(entity.ID))
	assert.Equal(t, entity.ID, entity.TempID)
	assert.Equal(t, entity.ID, entity.Data.ID)
	assert.Equal(t, domain.SyncStatusPending, entity.SyncStatus)
	assert.True(t, entity.NeedsSync)

	all, err := f.recipes.GetAll("alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Test Recipe 1", all[0].Data.Name)

	got, err := f.recipes.GetByID("alice", entity.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ID, got.ID)

	n, err := f.queue.Count("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStageCreateValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.recipes.StageCreate("alice", domain.Recipe{Name: "", BatchSize: 5})
	assert.ErrorIs(t, err, domain.ErrValidation)

	n, _ := f.queue.Count("alice")
	assert.Zero(t, n)
}

func TestMergeOverlaysPendingUpdateOnServerData(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.recipes.ReplaceFromServer("alice", []domain.Recipe{
		{ID: "recipe-1", Name: "Pale Ale", BatchSize: 5},
	}))

	_, err := f.recipes.StageUpdate("alice", "recipe-1", domain.RecipePatch{Name: strPtr("Amber Ale")})
	require.NoError(t, err)

	// A refresh that still carries the old name must not hide the pending edit.
	require.NoError(t, f.recipes.ReplaceFromServer("alice", []domain.Recipe{
		{ID: "recipe-1", Name: "Pale Ale", BatchSize: 5},
	}))

	got, err := f.recipes.GetByID("alice", "recipe-1")
	require.NoError(t, err)
	assert.Equal(t, "Amber Ale", got.Data.Name)
	assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)
	assert.True(t, got.NeedsSync)
}

func TestStageUpdateUnknownID(t *testing.T) {
	f := newFixture(t)
	_, err := f.recipes.StageUpdate("alice", "nope", domain.RecipePatch{Name: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStageUpdateRejectsInvalidResult(t *testing.T) {
	f := newFixture(t)
	e, err := f.recipes.StageCreate("alice", testRecipe("Stout"))
	require.NoError(t, err)

	zero := 0.0
	_, err = f.recipes.StageUpdate("alice", e.ID, domain.RecipePatch{BatchSize: &zero})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStageDeleteHidesButKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.recipes.ReplaceFromServer("alice", []domain.Recipe{
		{ID: "recipe-1", Name: "Pale Ale", BatchSize: 5},
	}))

	require.NoError(t, f.recipes.StageDelete("alice", "recipe-1"))

	all, err := f.recipes.GetAll("alice")
	require.NoError(t, err)
	assert.Empty(t, all)

	snap, err := f.recipes.Snapshot("alice")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, "recipe-1", snap[0].ID)

	ops, err := f.queue.List("alice")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.OpDelete, ops[0].Kind)

	// Dropping the delete brings the entity back.
	require.NoError(t, f.queue.Dequeue("alice", ops[0].ID))
	all, err = f.recipes.GetAll("alice")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStageDeleteOfLocalOnlyEntityDropsChain(t *testing.T) {
	f := newFixture(t)
	e, err := f.recipes.StageCreate("alice", testRecipe("Porter"))
	require.NoError(t, err)
	_, err = f.recipes.StageUpdate("alice", e.ID, domain.RecipePatch{Style: strPtr("Robust Porter")})
	require.NoError(t, err)

	require.NoError(t, f.recipes.StageDelete("alice", e.ID))

	n, err := f.queue.Count("alice")
	require.NoError(t, err)
	assert.Zero(t, n)

	snap, err := f.recipes.Snapshot("alice")
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestUpsertFromServerReconcilesTempID(t *testing.T) {
	f := newFixture(t)
	e, err := f.recipes.StageCreate("alice", testRecipe("Test Recipe 1"))
	require.NoError(t, err)
	_, err = f.recipes.StageUpdate("alice", e.ID, domain.RecipePatch{Name: strPtr("Renamed")})
	require.NoError(t, err)

	confirmed := testRecipe("Test Recipe 1")
	confirmed.ID = "recipe-1"
	_, err = f.recipes.UpsertFromServer("alice", e.ID, confirmed)
	require.NoError(t, err)

	_, err = f.recipes.GetByID("alice", e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := f.recipes.GetByID("alice", "recipe-1")
	require.NoError(t, err)
	assert.Empty(t, got.TempID)
	// The update is still queued, now against the server id.
	assert.Equal(t, "Renamed", got.Data.Name)
	assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)

	ops, err := f.queue.List("alice")
	require.NoError(t, err)
	for _, op := range ops {
		assert.Equal(t, "recipe-1", op.TargetID)
	}
}

func TestUpsertFromServerAfterLocalDeleteQueuesServerDelete(t *testing.T) {
	f := newFixture(t)
	e, err := f.recipes.StageCreate("alice", testRecipe("Gose"))
	require.NoError(t, err)
	require.NoError(t, f.recipes.StageDelete("alice", e.ID))

	confirmed := testRecipe("Gose")
	confirmed.ID = "recipe-9"
	_, err = f.recipes.UpsertFromServer("alice", e.ID, confirmed)
	require.NoError(t, err)

	all, err := f.recipes.GetAll("alice")
	require.NoError(t, err)
	assert.Empty(t, all)

	ops, err := f.queue.List("alice")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.OpDelete, ops[0].Kind)
	assert.Equal(t, "recipe-9", ops[0].TargetID)
}

func TestRewriteReferences(t *testing.T) {
	f := newFixture(t)
	_, err := f.sessions.WriteLocal("alice", "temp_s", domain.BrewSession{RecipeID: "temp_r", Name: "Brew day"})
	require.NoError(t, err)

	require.NoError(t, f.sessions.RewriteReferences("alice", "temp_r", "recipe-1"))

	got, err := f.sessions.GetByID("alice", "temp_s")
	require.NoError(t, err)
	assert.Equal(t, "recipe-1", got.Data.RecipeID)
}

func TestMarkStatus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.recipes.ReplaceFromServer("alice", []domain.Recipe{{ID: "recipe-1", Name: "A", BatchSize: 1}}))

	require.NoError(t, f.recipes.MarkStatus("alice", "recipe-1", domain.SyncStatusFailed, "api error: 422"))
	require.NoError(t, f.recipes.MarkStatus("alice", "missing", domain.SyncStatusFailed, "ignored"))

	got, err := f.recipes.GetByID("alice", "recipe-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusFailed, got.SyncStatus)
	assert.Equal(t, "api error: 422", got.LastError)
	assert.False(t, got.NeedsSync)
}

func TestReplaceFromServerKeepsLocalOnlyAndDropsRemoteDeletes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.recipes.ReplaceFromServer("alice", []domain.Recipe{
		{ID: "recipe-1", Name: "A", BatchSize: 1},
		{ID: "recipe-2", Name: "B", BatchSize: 1},
	}))
	local, err := f.recipes.StageCreate("alice", testRecipe("Local"))
	require.NoError(t, err)

	require.NoError(t, f.recipes.ReplaceFromServer("alice", []domain.Recipe{
		{ID: "recipe-1", Name: "A2", BatchSize: 1},
	}))

	all, err := f.recipes.GetAll("alice")
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"recipe-1", local.ID}, ids)
}

func TestCorruptSnapshotFailsSoft(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.kv.Set("cache_alice_recipe", "not json"))

	all, err := f.recipes.GetAll("alice")
	require.NoError(t, err)
	assert.Empty(t, all)

	backup, ok, err := f.kv.Get("cache_alice_recipe_corrupt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "not json", backup)

	_, err = f.recipes.StageCreate("alice", testRecipe("Fresh"))
	require.NoError(t, err)
	all, err = f.recipes.GetAll("alice")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMergeSynthesizesFromQueueOnly(t *testing.T) {
	f := newFixture(t)

	// A create that survived in the queue while the snapshot was lost.
	op, err := domain.NewCreateOp(domain.Recipe{ID: "temp_x", Name: "Queued", BatchSize: 2})
	require.NoError(t, err)
	_, err = f.queue.Enqueue("alice", op)
	require.NoError(t, err)

	got, err := f.recipes.GetByID("alice", "temp_x")
	require.NoError(t, err)
	assert.Equal(t, "Queued", got.Data.Name)
	assert.Equal(t, "temp_x", got.TempID)
	assert.Equal(t, domain.SyncStatusPending, got.SyncStatus)
}

func TestCachesIgnoreOtherEntityTypes(t *testing.T) {
	f := newFixture(t)
	_, err := f.recipes.StageCreate("alice", testRecipe("IPA"))
	require.NoError(t, err)

	sessions, err := f.sessions.GetAll("alice")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestNamespaceIsolation(t *testing.T) {
	f := newFixture(t)
	_, err := f.recipes.StageCreate("alice", testRecipe("Alice's IPA"))
	require.NoError(t, err)

	all, err := f.recipes.GetAll("bob")
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, f.recipes.Clear("alice"))
	snap, err := f.recipes.Snapshot("alice")
	require.NoError(t, err)
	assert.Empty(t, snap)
}

// flakyKV fails the next Get of a key with the given prefix.
type flakyKV struct {
	domain.KVStore
	failPrefix string
}

func (f *flakyKV) Get(key string) (string, bool, error) {
	if f.failPrefix != "" && strings.HasPrefix(key, f.failPrefix) {
		f.failPrefix = ""
		return "", false, errors.New("disk busy")
	}
	return f.KVStore.Get(key)
}

func TestReadErrorNeverOverwritesSnapshot(t *testing.T) {
	base, err := store.NewBoltStore("", "")
	require.NoError(t, err)
	kv := &flakyKV{KVStore: base}
	logger := adapter.NullLogger()
	recipes := New[domain.Recipe, domain.RecipePatch](kv, queue.New(kv, logger), logger)

	for _, id := range []string{"recipe-1", "recipe-2", "recipe-3"} {
		r := testRecipe(id)
		r.ID = id
		_, err := recipes.UpsertFromServer("alice", "", r)
		require.NoError(t, err)
	}

	kv.failPrefix = "cache_"
	_, err = recipes.WriteLocal("alice", "recipe-9", testRecipe("Nine"))
	require.Error(t, err)

	kv.failPrefix = "cache_"
	_, err = recipes.StageCreate("alice", testRecipe("Ten"))
	require.Error(t, err)

	kv.failPrefix = "cache_"
	require.Error(t, recipes.MarkStatus("alice", "recipe-1", domain.SyncStatusFailed, "boom"))

	snap, err := recipes.Snapshot("alice")
	require.NoError(t, err)
	assert.Len(t, snap, 3)

	// Reads still degrade to an empty view.
	kv.failPrefix = "cache_"
	all, err := recipes.GetAll("alice")
	require.NoError(t, err)
	assert.Empty(t, all)
}

// Package cache keeps the per-user snapshot of recipes and brew sessions and
// merges it with the pending operation queue to produce what readers see.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/queue"
	"github.com/mmcdole/brewsync/internal/store"
)

// Cache is the entity cache for one entity type.
//
// The snapshot describes what a reader should currently see; the queue
// describes what must still be sent. Reads merge the two on every call.
// mu covers every read-modify-write of the snapshot together with the queue
// writes that belong to it, so a reconciliation can never interleave with a
// staged local write.
type Cache[T domain.Record[T], P domain.Patch[T]] struct {
	entityType domain.EntityType
	kv         domain.KVStore
	queue      *queue.Queue
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
}

// New creates the cache for T's entity type.
func New[T domain.Record[T], P domain.Patch[T]](kv domain.KVStore, q *queue.Queue, logger *slog.Logger) *Cache[T, P] {
	if logger == nil {
		logger = slog.Default()
	}
	var zero T
	return &Cache[T, P]{
		entityType: zero.EntityType(),
		kv:         kv,
		queue:      q,
		logger:     logger.With("entity", zero.EntityType()),
		now:        time.Now,
	}
}

// EntityType returns the type of record this cache holds.
func (c *Cache[T, P]) EntityType() domain.EntityType { return c.entityType }

// SetClock overrides the time source (tests).
func (c *Cache[T, P]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Cache[T, P]) key(userID string) string {
	return store.CacheKey(userID, c.entityType)
}

// GetAll returns the merged view for userID.
func (c *Cache[T, P]) GetAll(userID string) ([]domain.CachedEntity[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlay(userID, c.loadForRead(userID))
}

// GetByID returns one entity from the merged view. Both server ids and
// unreconciled temp ids resolve.
func (c *Cache[T, P]) GetByID(userID, id string) (domain.CachedEntity[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entities, err := c.overlay(userID, c.loadForRead(userID))
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	for _, e := range entities {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.CachedEntity[T]{}, fmt.Errorf("%s %s: %w", c.entityType, id, domain.ErrNotFound)
}

// Snapshot returns the stored snapshot without pending operations applied.
func (c *Cache[T, P]) Snapshot(userID string) ([]domain.CachedEntity[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(userID)
}

// WriteLocal stages data for id in the snapshot so reads see it before the
// server confirms anything. The queue is not touched.
func (c *Cache[T, P]) WriteLocal(userID, id string, data T) (domain.CachedEntity[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocal(userID, id, data)
}

func (c *Cache[T, P]) writeLocal(userID, id string, data T) (domain.CachedEntity[T], error) {
	entities, err := c.load(userID)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}

	entity := domain.CachedEntity[T]{
		ID:           id,
		Data:         data.WithID(id),
		LastModified: c.now(),
		SyncStatus:   domain.SyncStatusPending,
		NeedsSync:    true,
	}
	if domain.IsTempID(id) {
		entity.TempID = id
	}

	if i := indexOf(entities, id); i >= 0 {
		entities[i] = entity
	} else {
		entities = append(entities, entity)
	}
	if err := c.save(userID, entities); err != nil {
		return domain.CachedEntity[T]{}, err
	}
	return entity, nil
}

// NewTempID returns a fresh local id.
func NewTempID() string {
	return domain.TempIDPrefix + uuid.NewString()
}

// StageCreate assigns record a temp id, writes it locally and enqueues its
// create operation.
func (c *Cache[T, P]) StageCreate(userID string, record T) (domain.CachedEntity[T], error) {
	if err := record.Validate(); err != nil {
		return domain.CachedEntity[T]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := NewTempID()
	record = record.WithID(id)

	op, err := domain.NewCreateOp(record)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	if _, err := c.queue.Enqueue(userID, op); err != nil {
		return domain.CachedEntity[T]{}, err
	}

	entity, err := c.writeLocal(userID, id, record)
	if err != nil {
		// Roll back so the queue never holds a create the snapshot lacks.
		if _, derr := c.queue.DropTarget(userID, id); derr != nil {
			c.logger.Error("failed to roll back create", "id", id, "error", derr)
		}
		return domain.CachedEntity[T]{}, err
	}
	return entity, nil
}

// StageUpdate overlays patch on the merged entity, writes the result locally
// and enqueues the update.
func (c *Cache[T, P]) StageUpdate(userID, id string, patch P) (domain.CachedEntity[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.find(userID, id)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	updated := patch.Apply(current.Data)
	if err := updated.Validate(); err != nil {
		return domain.CachedEntity[T]{}, err
	}

	op, err := domain.NewUpdateOp(c.entityType, id, patch)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	if _, err := c.queue.Enqueue(userID, op); err != nil {
		return domain.CachedEntity[T]{}, err
	}
	return c.writeLocal(userID, id, updated)
}

// StageDelete hides id from the merged view. An entity that never reached
// the server is dropped outright together with its queued chain; anything
// else gets a delete operation and stays in the snapshot until confirmed.
func (c *Cache[T, P]) StageDelete(userID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.find(userID, id); err != nil {
		return err
	}

	if domain.IsTempID(id) {
		dropped, err := c.queue.DropTarget(userID, id)
		if err != nil {
			return err
		}
		c.logger.Debug("dropped local-only entity", "id", id, "ops", dropped)
		return c.remove(userID, id)
	}

	_, err := c.queue.Enqueue(userID, domain.NewDeleteOp(c.entityType, id))
	return err
}

// UpsertFromServer stores record as confirmed server state. When localID is
// a temp id the snapshot entry is renamed to the server id and every queued
// reference is retargeted while the lock is held.
//
// If the temp entity was deleted locally while its create was in flight, the
// server copy is not resurrected; a delete for it is queued instead.
func (c *Cache[T, P]) UpsertFromServer(userID, localID string, record T) (domain.CachedEntity[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	serverID := record.RecordID()
	if serverID == "" {
		return domain.CachedEntity[T]{}, fmt.Errorf("server returned %s without id", c.entityType)
	}

	entities, err := c.load(userID)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}

	reconciling := localID != "" && localID != serverID
	if reconciling {
		i := indexOf(entities, localID)
		if i < 0 && domain.IsTempID(localID) {
			c.logger.Info("created entity was deleted locally, queueing server delete",
				"temp_id", localID, "id", serverID)
			_, err := c.queue.Enqueue(userID, domain.NewDeleteOp(c.entityType, serverID))
			return domain.CachedEntity[T]{}, err
		}
		if _, err := c.queue.Retarget(userID, localID, serverID); err != nil {
			return domain.CachedEntity[T]{}, err
		}
		if i >= 0 {
			entities = append(entities[:i], entities[i+1:]...)
		}
	}

	entity := domain.CachedEntity[T]{
		ID:           serverID,
		Data:         record,
		LastModified: c.now(),
		SyncStatus:   domain.SyncStatusSynced,
	}
	if i := indexOf(entities, serverID); i >= 0 {
		entities[i] = entity
	} else {
		entities = append(entities, entity)
	}
	if err := c.save(userID, entities); err != nil {
		return domain.CachedEntity[T]{}, err
	}

	if reconciling {
		c.logger.Debug("reconciled temp id", "temp_id", localID, "id", serverID)
	}
	return entity, nil
}

// Remove drops id from the snapshot.
func (c *Cache[T, P]) Remove(userID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remove(userID, id)
}

func (c *Cache[T, P]) remove(userID, id string) error {
	entities, err := c.load(userID)
	if err != nil {
		return err
	}
	i := indexOf(entities, id)
	if i < 0 {
		return nil
	}
	entities = append(entities[:i], entities[i+1:]...)
	return c.save(userID, entities)
}

// MarkStatus records a terminal sync outcome for id.
func (c *Cache[T, P]) MarkStatus(userID, id string, status domain.SyncStatus, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entities, err := c.load(userID)
	if err != nil {
		return err
	}
	i := indexOf(entities, id)
	if i < 0 {
		return nil
	}
	entities[i].SyncStatus = status
	entities[i].LastError = reason
	entities[i].NeedsSync = status == domain.SyncStatusPending
	return c.save(userID, entities)
}

// RewriteReferences points every record that references from at to.
// Used after another entity type reconciled a temp id.
func (c *Cache[T, P]) RewriteReferences(userID, from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entities, err := c.load(userID)
	if err != nil {
		return err
	}
	changed := false
	for i := range entities {
		for _, ref := range entities[i].Data.References() {
			if ref == from {
				entities[i].Data = entities[i].Data.WithReference(from, to)
				changed = true
				break
			}
		}
	}
	if !changed {
		return nil
	}
	return c.save(userID, entities)
}

// ReplaceFromServer makes records the new snapshot. Entries that still carry
// unsynced local state survive: local-only entities are kept as is and
// entities with pending changes keep their pending status on top of the
// fresh server data.
func (c *Cache[T, P]) ReplaceFromServer(userID string, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, err := c.load(userID)
	if err != nil {
		return err
	}

	now := c.now()
	byID := make(map[string]domain.CachedEntity[T], len(old))
	for _, e := range old {
		byID[e.ID] = e
	}

	seen := make(map[string]bool, len(records))
	entities := make([]domain.CachedEntity[T], 0, len(records)+len(old))
	for _, r := range records {
		id := r.RecordID()
		seen[id] = true
		entity := domain.CachedEntity[T]{
			ID:           id,
			Data:         r,
			LastModified: now,
			SyncStatus:   domain.SyncStatusSynced,
		}
		if prev, ok := byID[id]; ok && prev.NeedsSync {
			entity.SyncStatus = prev.SyncStatus
			entity.NeedsSync = true
			entity.LastModified = prev.LastModified
		}
		entities = append(entities, entity)
	}

	kept := 0
	for _, e := range old {
		if seen[e.ID] {
			continue
		}
		if e.NeedsSync || e.IsLocalOnly() {
			entities = append(entities, e)
			kept++
		}
	}

	c.logger.Debug("snapshot replaced", "user", userID, "server", len(records), "kept_local", kept)
	return c.save(userID, entities)
}

// Clear removes the user's snapshot.
func (c *Cache[T, P]) Clear(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Remove(c.key(userID))
}

// find returns id from the merged view for a write. Unlike the read path
// it fails when the snapshot cannot be read.
func (c *Cache[T, P]) find(userID, id string) (domain.CachedEntity[T], error) {
	entities, err := c.load(userID)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	entities, err = c.overlay(userID, entities)
	if err != nil {
		return domain.CachedEntity[T]{}, err
	}
	for _, e := range entities {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.CachedEntity[T]{}, fmt.Errorf("%s %s: %w", c.entityType, id, domain.ErrNotFound)
}

// loadForRead is load for callers that only display data: a snapshot that
// cannot be read is shown as empty.
func (c *Cache[T, P]) loadForRead(userID string) []domain.CachedEntity[T] {
	entities, err := c.load(userID)
	if err != nil {
		c.logger.Error("failed to read snapshot, showing it as empty", "user", userID, "error", err)
		return nil
	}
	return entities
}

// load reads the snapshot. A value that does not decode is logged and
// treated as empty; the raw bytes are kept under <key>_corrupt. A failed
// read is returned so writers never save over data they could not see.
func (c *Cache[T, P]) load(userID string) ([]domain.CachedEntity[T], error) {
	key := c.key(userID)
	raw, ok, err := c.kv.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s snapshot: %w", c.entityType, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var entities []domain.CachedEntity[T]
	if err := json.Unmarshal([]byte(raw), &entities); err != nil {
		c.logger.Error("corrupt snapshot, treating as empty", "user", userID, "error", err)
		if berr := c.kv.Set(key+"_corrupt", raw); berr != nil {
			c.logger.Error("failed to back up corrupt snapshot", "user", userID, "error", berr)
		}
		return nil, nil
	}
	return entities, nil
}

func (c *Cache[T, P]) save(userID string, entities []domain.CachedEntity[T]) error {
	data, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", c.entityType, err)
	}
	if err := c.kv.Set(c.key(userID), string(data)); err != nil {
		return fmt.Errorf("failed to persist %s snapshot: %w", c.entityType, err)
	}
	return nil
}

func indexOf[T any](entities []domain.CachedEntity[T], id string) int {
	for i := range entities {
		if entities[i].ID == id {
			return i
		}
	}
	return -1
}

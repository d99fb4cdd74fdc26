package cache

import (
	"github.com/mmcdole/brewsync/internal/domain"
)

// overlay applies the user's pending operations to entities in queue
// order. Creates synthesize missing entries, updates apply their patch and
// deletes hide the entry. The stored snapshot is never modified here.
func (c *Cache[T, P]) overlay(userID string, entities []domain.CachedEntity[T]) ([]domain.CachedEntity[T], error) {
	ops, err := c.queue.List(userID)
	if err != nil {
		return nil, err
	}

	hidden := make(map[string]bool)
	for _, op := range ops {
		if op.EntityType != c.entityType {
			continue
		}

		switch op.Kind {
		case domain.OpCreate:
			if i := indexOf(entities, op.TargetID); i >= 0 {
				markPending(&entities[i])
				continue
			}
			record, err := domain.DecodeCreate[T](op)
			if err != nil {
				c.logger.Error("skipping undecodable create", "op", op.ID, "error", err)
				continue
			}
			entity := domain.CachedEntity[T]{
				ID:           op.TargetID,
				Data:         record.WithID(op.TargetID),
				LastModified: op.CreatedAt,
				SyncStatus:   domain.SyncStatusPending,
				NeedsSync:    true,
			}
			if domain.IsTempID(op.TargetID) {
				entity.TempID = op.TargetID
			}
			entities = append(entities, entity)

		case domain.OpUpdate:
			i := indexOf(entities, op.TargetID)
			if i < 0 {
				continue
			}
			patch, err := domain.DecodeUpdate[P](op)
			if err != nil {
				c.logger.Error("skipping undecodable update", "op", op.ID, "error", err)
				continue
			}
			entities[i].Data = patch.Apply(entities[i].Data)
			if op.CreatedAt.After(entities[i].LastModified) {
				entities[i].LastModified = op.CreatedAt
			}
			markPending(&entities[i])

		case domain.OpDelete:
			hidden[op.TargetID] = true
		}
	}

	view := make([]domain.CachedEntity[T], 0, len(entities))
	for _, e := range entities {
		if !hidden[e.ID] {
			view = append(view, e)
		}
	}
	return view, nil
}

func markPending[T any](e *domain.CachedEntity[T]) {
	e.NeedsSync = true
	e.SyncStatus = domain.SyncStatusPending
	e.LastError = ""
}

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmcdole/brewsync/internal/cache"
	"github.com/mmcdole/brewsync/internal/domain"
)

// Target replays operations of one entity type against the API and writes
// confirmed results back into that type's cache.
type Target interface {
	EntityType() domain.EntityType
	// Send replays op. On success it returns the server id of the target,
	// which differs from op.TargetID when a create reconciled a temp id.
	Send(ctx context.Context, userID string, op domain.PendingOperation) (string, error)
	MarkStatus(userID, id string, status domain.SyncStatus, reason string) error
	RewriteReferences(userID, from, to string) error
}

// Bind pairs a cache with the API for the same entity type.
func Bind[T domain.Record[T], P domain.Patch[T]](c *cache.Cache[T, P], api domain.EntityAPI[T, P], logger *slog.Logger) Target {
	if logger == nil {
		logger = slog.Default()
	}
	return &binding[T, P]{cache: c, api: api, logger: logger}
}

type binding[T domain.Record[T], P domain.Patch[T]] struct {
	cache  *cache.Cache[T, P]
	api    domain.EntityAPI[T, P]
	logger *slog.Logger
}

func (b *binding[T, P]) EntityType() domain.EntityType { return b.cache.EntityType() }

func (b *binding[T, P]) Send(ctx context.Context, userID string, op domain.PendingOperation) (string, error) {
	switch op.Kind {
	case domain.OpCreate:
		record, err := domain.DecodeCreate[T](op)
		if err != nil {
			return "", permanent(err)
		}
		created, err := b.api.Create(ctx, record)
		if err != nil {
			return "", err
		}
		if err := abandoned(ctx); err != nil {
			return "", err
		}
		if _, err := b.cache.UpsertFromServer(userID, op.TargetID, created); err != nil {
			// The server has it; replaying the create would duplicate it.
			b.logger.Error("failed to store created entity", "temp_id", op.TargetID, "id", created.RecordID(), "error", err)
		}
		return created.RecordID(), nil

	case domain.OpUpdate:
		patch, err := domain.DecodeUpdate[P](op)
		if err != nil {
			return "", permanent(err)
		}
		updated, err := b.api.Update(ctx, op.TargetID, patch)
		if err != nil {
			return "", err
		}
		if err := abandoned(ctx); err != nil {
			return "", err
		}
		if _, err := b.cache.UpsertFromServer(userID, op.TargetID, updated); err != nil {
			b.logger.Error("failed to store updated entity", "id", op.TargetID, "error", err)
		}
		return op.TargetID, nil

	case domain.OpDelete:
		if err := b.api.Delete(ctx, op.TargetID); err != nil {
			return "", err
		}
		if err := abandoned(ctx); err != nil {
			return "", err
		}
		if err := b.cache.Remove(userID, op.TargetID); err != nil {
			b.logger.Error("failed to remove deleted entity", "id", op.TargetID, "error", err)
		}
		return op.TargetID, nil
	}
	return "", permanent(fmt.Errorf("unknown operation kind %q", op.Kind))
}

// abandoned reports a pass that was stopped while the request was in
// flight. Its response belongs to a namespace that may already be gone.
func abandoned(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return nil
}

func (b *binding[T, P]) MarkStatus(userID, id string, status domain.SyncStatus, reason string) error {
	return b.cache.MarkStatus(userID, id, status, reason)
}

func (b *binding[T, P]) RewriteReferences(userID, from, to string) error {
	return b.cache.RewriteReferences(userID, from, to)
}

// Package queue persists the ordered list of mutations the server has not
// confirmed yet. One list per user, stored as a JSON array in the KV store.
package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmcdole/brewsync/internal/domain"
	"github.com/mmcdole/brewsync/internal/store"
)

const (
	suffixPending = "pending"
	suffixSeq     = "seq"
	suffixAliases = "aliases"
)

// Queue is the durable pending operation log.
// Every mutating call rewrites the user's list in a single write.
type Queue struct {
	kv     domain.KVStore
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a queue over kv.
func New(kv domain.KVStore, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source (tests).
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	q.now = now
	q.mu.Unlock()
}

func pendingKey(userID string) string { return store.Key(store.PrefixQueue, userID, suffixPending) }
func seqKey(userID string) string     { return store.Key(store.PrefixQueue, userID, suffixSeq) }
func aliasKey(userID string) string   { return store.Key(store.PrefixQueue, userID, suffixAliases) }

// Enqueue assigns op an id, sequence number and creation time and appends it.
// The list is persisted before Enqueue returns.
func (q *Queue) Enqueue(userID string, op domain.PendingOperation) (domain.PendingOperation, error) {
	if userID == "" {
		return op, domain.ErrNoSession
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(userID)
	if err != nil {
		return op, err
	}

	seq, err := q.nextSeq(userID, ops)
	if err != nil {
		return op, err
	}

	// An op built from a stale view may still name a temp id that was
	// already reconciled.
	aliases, err := q.loadAliases(userID)
	if err != nil {
		return op, err
	}
	for from, to := range aliases {
		if _, err := domain.RewriteReferences(&op, from, to); err != nil {
			return op, fmt.Errorf("failed to resolve %s: %w", from, err)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return op, fmt.Errorf("failed to generate operation id: %w", err)
	}
	op.ID = id.String()
	op.Seq = seq
	op.CreatedAt = q.now()

	ops = append(ops, op)
	if err := q.save(userID, ops); err != nil {
		return op, err
	}
	if err := q.kv.Set(seqKey(userID), strconv.FormatUint(seq, 10)); err != nil {
		// The list is already durable; nextSeq also scans it, so this only
		// matters if the list is later emptied.
		q.logger.Warn("failed to persist queue sequence", "user", userID, "error", err)
	}

	q.logger.Debug("operation enqueued",
		"user", userID,
		"op", op.ID,
		"seq", op.Seq,
		"kind", op.Kind,
		"entity", op.EntityType,
		"target", op.TargetID,
	)
	return op, nil
}

// Dequeue removes the operation with opID. Removing a missing op is not an error.
func (q *Queue) Dequeue(userID, opID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(userID)
	if err != nil {
		return err
	}

	kept := ops[:0]
	found := false
	for _, op := range ops {
		if op.ID == opID {
			found = true
			continue
		}
		kept = append(kept, op)
	}
	if !found {
		return nil
	}
	return q.save(userID, kept)
}

// List returns the user's pending operations in apply order.
func (q *Queue) List(userID string) ([]domain.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(userID)
}

// Count returns the number of pending operations.
func (q *Queue) Count(userID string) (int, error) {
	ops, err := q.List(userID)
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

// Get returns a single pending operation.
func (q *Queue) Get(userID, opID string) (domain.PendingOperation, bool, error) {
	ops, err := q.List(userID)
	if err != nil {
		return domain.PendingOperation{}, false, err
	}
	for _, op := range ops {
		if op.ID == opID {
			return op, true, nil
		}
	}
	return domain.PendingOperation{}, false, nil
}

// RecordFailure bumps the attempt counter of a transiently failed operation
// and schedules its next attempt. The operation stays queued.
func (q *Queue) RecordFailure(userID, opID string, cause error, nextAttemptAt time.Time) (domain.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(userID)
	if err != nil {
		return domain.PendingOperation{}, err
	}
	for i := range ops {
		if ops[i].ID != opID {
			continue
		}
		ops[i].Attempts++
		ops[i].NextAttemptAt = nextAttemptAt
		if cause != nil {
			ops[i].LastError = cause.Error()
		}
		if err := q.save(userID, ops); err != nil {
			return domain.PendingOperation{}, err
		}
		return ops[i], nil
	}
	return domain.PendingOperation{}, fmt.Errorf("operation %s: %w", opID, domain.ErrNotFound)
}

// Retarget rewrites every reference to id from into to, both as a target and
// inside create payloads. The alias table and the rewritten list are
// persisted in one write. from is remembered so ops enqueued later are
// rewritten too. Returns the number of operations changed.
func (q *Queue) Retarget(userID, from, to string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(userID)
	if err != nil {
		return 0, err
	}

	aliases, err := q.loadAliases(userID)
	if err != nil {
		return 0, err
	}
	aliases[from] = to
	aliasData, err := json.Marshal(aliases)
	if err != nil {
		return 0, fmt.Errorf("failed to encode id aliases: %w", err)
	}
	writes := map[string]string{aliasKey(userID): string(aliasData)}

	changed := 0
	for i := range ops {
		ok, err := domain.RewriteReferences(&ops[i], from, to)
		if err != nil {
			// Leave the list untouched rather than persist a half rewrite.
			return 0, fmt.Errorf("failed to retarget operation %s: %w", ops[i].ID, err)
		}
		if ok {
			changed++
		}
	}
	if changed > 0 {
		data, err := json.Marshal(ops)
		if err != nil {
			return 0, fmt.Errorf("failed to encode queue: %w", err)
		}
		writes[pendingKey(userID)] = string(data)
	}

	if err := store.SetMany(q.kv, writes); err != nil {
		return 0, fmt.Errorf("failed to persist retarget: %w", err)
	}
	if changed > 0 {
		q.logger.Debug("operations retargeted", "user", userID, "from", from, "to", to, "count", changed)
	}
	return changed, nil
}

// DropTarget removes every operation targeting id. Used when an entity that
// never reached the server is deleted locally.
func (q *Queue) DropTarget(userID, id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(userID)
	if err != nil {
		return 0, err
	}

	kept := ops[:0]
	dropped := 0
	for _, op := range ops {
		if op.TargetID == id {
			dropped++
			continue
		}
		kept = append(kept, op)
	}
	if dropped == 0 {
		return 0, nil
	}
	return dropped, q.save(userID, kept)
}

// Clear removes the user's queue entirely.
func (q *Queue) Clear(userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, key := range []string{pendingKey(userID), seqKey(userID), aliasKey(userID)} {
		if err := q.kv.Remove(key); err != nil {
			return err
		}
	}
	return nil
}

// Alias returns the server id a retired temp id was reconciled to.
func (q *Queue) Alias(userID, tempID string) (string, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	aliases, err := q.loadAliases(userID)
	if err != nil {
		return "", false, err
	}
	to, ok := aliases[tempID]
	return to, ok, nil
}

// load reads the persisted list. A value that does not decode is moved
// aside to <key>_corrupt and the queue starts empty.
func (q *Queue) load(userID string) ([]domain.PendingOperation, error) {
	key := pendingKey(userID)
	raw, ok, err := q.kv.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var ops []domain.PendingOperation
	if err := json.Unmarshal([]byte(raw), &ops); err != nil {
		q.logger.Error("corrupt pending queue, starting empty", "user", userID, "error", err)
		if berr := q.kv.Set(key+"_corrupt", raw); berr != nil {
			q.logger.Error("failed to back up corrupt queue", "user", userID, "error", berr)
		}
		if rerr := q.kv.Remove(key); rerr != nil {
			q.logger.Error("failed to remove corrupt queue", "user", userID, "error", rerr)
		}
		return nil, nil
	}

	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Seq < ops[j].Seq })
	return ops, nil
}

func (q *Queue) save(userID string, ops []domain.PendingOperation) error {
	if len(ops) == 0 {
		return q.kv.Remove(pendingKey(userID))
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}
	if err := q.kv.Set(pendingKey(userID), string(data)); err != nil {
		return fmt.Errorf("failed to persist queue: %w", err)
	}
	return nil
}

func (q *Queue) loadAliases(userID string) (map[string]string, error) {
	aliases := make(map[string]string)
	raw, ok, err := q.kv.Get(aliasKey(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read id aliases: %w", err)
	}
	if !ok {
		return aliases, nil
	}
	if err := json.Unmarshal([]byte(raw), &aliases); err != nil {
		q.logger.Error("corrupt id aliases, ignoring", "user", userID, "error", err)
		return make(map[string]string), nil
	}
	return aliases, nil
}

// nextSeq returns a sequence number above both the persisted counter and
// everything already queued.
func (q *Queue) nextSeq(userID string, ops []domain.PendingOperation) (uint64, error) {
	var last uint64
	raw, ok, err := q.kv.Get(seqKey(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to read queue sequence: %w", err)
	}
	if ok {
		if n, perr := strconv.ParseUint(raw, 10, 64); perr == nil {
			last = n
		} else {
			q.logger.Warn("invalid queue sequence, rebuilding", "user", userID, "value", raw)
		}
	}
	for _, op := range ops {
		if op.Seq > last {
			last = op.Seq
		}
	}
	return last + 1, nil
}

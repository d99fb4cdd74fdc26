package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationKind is the mutation a pending operation replays against the API.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// PendingOperation is a mutation that has not been confirmed by the server.
// Payload holds the full record for creates, a typed patch for updates and
// nothing for deletes.
type PendingOperation struct {
	ID            string          `json:"id"`
	Seq           uint64          `json:"seq"`
	EntityType    EntityType      `json:"entity_type"`
	Kind          OperationKind   `json:"kind"`
	TargetID      string          `json:"target_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at,omitzero"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewCreateOp builds a create operation for record.
func NewCreateOp[T Record[T]](record T) (PendingOperation, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return PendingOperation{}, fmt.Errorf("failed to encode %s: %w", record.EntityType(), err)
	}
	return PendingOperation{
		EntityType: record.EntityType(),
		Kind:       OpCreate,
		TargetID:   record.RecordID(),
		Payload:    payload,
	}, nil
}

// NewUpdateOp builds an update operation carrying patch for targetID.
func NewUpdateOp[P any](entityType EntityType, targetID string, patch P) (PendingOperation, error) {
	payload, err := json.Marshal(patch)
	if err != nil {
		return PendingOperation{}, fmt.Errorf("failed to encode %s patch: %w", entityType, err)
	}
	return PendingOperation{
		EntityType: entityType,
		Kind:       OpUpdate,
		TargetID:   targetID,
		Payload:    payload,
	}, nil
}

// NewDeleteOp builds a delete operation for targetID.
func NewDeleteOp(entityType EntityType, targetID string) PendingOperation {
	return PendingOperation{
		EntityType: entityType,
		Kind:       OpDelete,
		TargetID:   targetID,
	}
}

// DecodeCreate returns the record carried by a create operation.
func DecodeCreate[T any](op PendingOperation) (T, error) {
	var record T
	if op.Kind != OpCreate {
		return record, fmt.Errorf("operation %s is %s, not create", op.ID, op.Kind)
	}
	if err := json.Unmarshal(op.Payload, &record); err != nil {
		return record, fmt.Errorf("failed to decode create payload for %s: %w", op.TargetID, err)
	}
	return record, nil
}

// DecodeUpdate returns the patch carried by an update operation.
func DecodeUpdate[P any](op PendingOperation) (P, error) {
	var patch P
	if op.Kind != OpUpdate {
		return patch, fmt.Errorf("operation %s is %s, not update", op.ID, op.Kind)
	}
	if err := json.Unmarshal(op.Payload, &patch); err != nil {
		return patch, fmt.Errorf("failed to decode update payload for %s: %w", op.TargetID, err)
	}
	return patch, nil
}

// References returns the ids of other entities op depends on. Only brew
// session creates carry a reference (their recipe).
func References(op PendingOperation) ([]string, error) {
	switch op.EntityType {
	case EntityRecipe:
		return nil, nil
	case EntityBrewSession:
		switch op.Kind {
		case OpCreate:
			s, err := DecodeCreate[BrewSession](op)
			if err != nil {
				return nil, err
			}
			return s.References(), nil
		case OpUpdate, OpDelete:
			return nil, nil
		}
	}
	return nil, fmt.Errorf("unknown operation %s/%s", op.EntityType, op.Kind)
}

// RewriteReferences replaces id from with to in op's target and payload.
// It reports whether op changed.
func RewriteReferences(op *PendingOperation, from, to string) (bool, error) {
	changed := false
	if op.TargetID == from {
		op.TargetID = to
		changed = true
	}

	switch op.Kind {
	case OpCreate:
		var payload []byte
		var err error
		switch op.EntityType {
		case EntityRecipe:
			payload, err = rewriteCreate[Recipe](*op, from, to)
		case EntityBrewSession:
			payload, err = rewriteCreate[BrewSession](*op, from, to)
		default:
			return changed, fmt.Errorf("unknown entity type %q", op.EntityType)
		}
		if err != nil {
			return changed, err
		}
		if payload != nil {
			op.Payload = payload
			changed = true
		}
	case OpUpdate, OpDelete:
	default:
		return changed, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return changed, nil
}

// rewriteCreate returns a new payload, or nil when nothing referenced from.
func rewriteCreate[T Record[T]](op PendingOperation, from, to string) ([]byte, error) {
	record, err := DecodeCreate[T](op)
	if err != nil {
		return nil, err
	}
	rewritten := record.WithReference(from, to)
	if record.RecordID() == from {
		rewritten = rewritten.WithID(to)
	} else if !containsID(record.References(), from) {
		return nil, nil
	}
	return json.Marshal(rewritten)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

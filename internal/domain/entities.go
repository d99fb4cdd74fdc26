package domain

import (
	"strings"
	"time"
)

// EntityType identifies which collection a record or operation belongs to.
type EntityType string

const (
	EntityRecipe      EntityType = "recipe"
	EntityBrewSession EntityType = "brew_session"
)

// EntityTypes lists every syncable entity type in apply order.
func EntityTypes() []EntityType {
	return []EntityType{EntityRecipe, EntityBrewSession}
}

// SyncStatus tracks where a cached entity stands relative to the server.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusFailed   SyncStatus = "failed"
)

// TempIDPrefix marks ids generated locally before the first successful sync.
const TempIDPrefix = "temp_"

// IsTempID reports whether id was generated locally and has never been
// confirmed by the server.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Record is implemented by every syncable payload type.
// T is the implementing type itself so WithID can return a concrete value.
type Record[T any] interface {
	EntityType() EntityType
	RecordID() string
	WithID(id string) T
	// WithReference rewrites references to another entity (e.g. a brew
	// session's recipe) after that entity's temp id was reconciled.
	WithReference(from, to string) T
	// References returns ids of other entities this record points at.
	References() []string
	Validate() error
}

// Patch is an explicit partial update for records of type T.
type Patch[T any] interface {
	Apply(record T) T
	IsEmpty() bool
}

// CachedEntity wraps a record with its local sync bookkeeping.
type CachedEntity[T any] struct {
	ID           string     `json:"id"`
	TempID       string     `json:"temp_id,omitempty"` // set only until the create is confirmed
	Data         T          `json:"data"`
	LastModified time.Time  `json:"last_modified"`
	SyncStatus   SyncStatus `json:"sync_status"`
	NeedsSync    bool       `json:"needs_sync"`
	LastError    string     `json:"last_error,omitempty"`
}

// IsLocalOnly reports whether the entity has never reached the server.
func (e CachedEntity[T]) IsLocalOnly() bool {
	return e.TempID != ""
}

package domain

import "time"

// SyncResult summarizes one drain of the pending operation queue.
type SyncResult struct {
	Success   bool     `json:"success"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Conflicts int      `json:"conflicts"`
	Errors    []string `json:"errors,omitempty"`

	Retried    int       `json:"retried"` // transient failures left queued
	Skipped    int       `json:"skipped"` // blocked behind a retrying op or a temp reference
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SyncTrigger records why a pass started.
type SyncTrigger string

const (
	TriggerManual    SyncTrigger = "manual"
	TriggerReconnect SyncTrigger = "reconnect"
	TriggerPeriodic  SyncTrigger = "periodic"
	TriggerWrite     SyncTrigger = "write"
)

// SyncState is the engine's pass-level state.
type SyncState string

const (
	SyncIdle     SyncState = "idle"
	SyncDraining SyncState = "draining"
)

// OpOutcome is the per-operation result of a send.
type OpOutcome string

const (
	OutcomeApplied   OpOutcome = "applied"
	OutcomeRetryable OpOutcome = "retryable"
	OutcomePermanent OpOutcome = "permanent_failure"
	OutcomeConflict  OpOutcome = "conflict"
	OutcomeSkipped   OpOutcome = "skipped"
)

// SyncEvent is emitted to observers as a pass progresses.
type SyncEvent struct {
	UserID    string
	Trigger   SyncTrigger
	State     SyncState
	Operation *PendingOperation // nil for pass start/finish events
	Outcome   OpOutcome
	Err       error
	Result    *SyncResult // set on the finishing event
}

// SyncObserver receives progress updates during sync passes.
type SyncObserver interface {
	OnSyncEvent(event SyncEvent)
}

// NoOpObserver discards sync events (for testing/batch operations).
type NoOpObserver struct{}

func (NoOpObserver) OnSyncEvent(SyncEvent) {}

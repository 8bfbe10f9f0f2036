package models

import "time"

// SessionStatus represents the state of an orchestration run.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// FallbackMode controls how the coordinator uses direct execution.
type FallbackMode string

const (
	// FallbackAuto falls back to direct execution only when no worker
	// can be acquired or worker startup fails.
	FallbackAuto FallbackMode = "auto"
	// FallbackForced runs every task via direct execution, bypassing
	// the worker pool entirely.
	FallbackForced FallbackMode = "forced"
)

// Valid returns true if the fallback mode is a known value.
func (m FallbackMode) Valid() bool {
	return m == FallbackAuto || m == FallbackForced
}

// Session identifies a single orchestration run. All coordinator state is
// carried explicitly through it rather than read from globals.
type Session struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`
	// MaxConcurrency bounds the worker pool for this run.
	MaxConcurrency int `json:"max_concurrency"`
	// FallbackMode controls direct-execution substitution.
	FallbackMode FallbackMode `json:"fallback_mode"`
	// DryRun computes and reports waves without dispatching anything.
	DryRun bool `json:"dry_run"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// Status is the current state of the run.
	Status SessionStatus `json:"status"`
}

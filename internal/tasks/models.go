package tasks

import "time"

// CallTask is a deferred unit of work: place a call for this contact at or
// after this time, for this reason.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
//
// Dedup invariant: at most one task per (workspace_id, contact_id, kind) may
// be pending or processing at a time. This is enforced by a partial unique
// constraint in storage, not by an application-level check; concurrent
// creators race safely through CreateIfAbsent.
type CallTask struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	ContactID   string `json:"contact_id" db:"contact_id"`

	// ContactNumber is E.164 where possible.
	ContactNumber string `json:"contact_number" db:"contact_number"`

	Kind   Kind   `json:"kind" db:"kind"`
	Status Status `json:"status" db:"status"`

	ScheduledFor time.Time `json:"scheduled_for" db:"scheduled_for"`

	Attempts      int        `json:"attempts" db:"attempts"`
	MaxAttempts   int        `json:"max_attempts" db:"max_attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	LastError     string     `json:"last_error,omitempty" db:"last_error"`

	// ScriptContext is opaque key/value context handed to the voice provider
	// (appointment time, patient name, ...), stored as JSON.
	ScriptContext string `json:"script_context,omitempty" db:"script_context"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Kind string

const (
	KindInitialReminder Kind = "initial_reminder"
	KindFollowUp        Kind = "follow_up"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusCancelled marks a follow-up made obsolete by a terminal outcome
	// before it ran.
	StatusCancelled Status = "cancelled"
)

package audit

import (
	"time"

	"callagent-platform/internal/outcome"
)

// Event is an immutable, append-only operational record. It backs the
// observability surface: per-transition events for external dashboards and
// alerts requiring operator attention.
//
// Invariants:
// - Events are never updated or deleted.
// - workspace_id is required for tenancy isolation.
// - Audit writes are best-effort; critical flows never block on them.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: partition by time for retention.
type Event struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	Type EventType `json:"type" db:"type"`

	// Target identifiers (optional, depending on the event type).
	SessionID      string `json:"session_id,omitempty" db:"session_id"`
	TaskID         string `json:"task_id,omitempty" db:"task_id"`
	ContactID      string `json:"contact_id,omitempty" db:"contact_id"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// Transition facts, set for outcome_transition events.
	OldOutcome outcome.Outcome `json:"old_outcome,omitempty" db:"old_outcome"`
	NewOutcome outcome.Outcome `json:"new_outcome,omitempty" db:"new_outcome"`
	Source     outcome.Source  `json:"source,omitempty" db:"source"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details (store as JSONB).
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeOutcomeTransition EventType = "outcome_transition"
	EventTypeDeadLetter        EventType = "dead_letter"
	EventTypeTaskExhausted     EventType = "task_exhausted"
)

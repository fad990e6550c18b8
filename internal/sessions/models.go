package sessions

import (
	"time"

	"callagent-platform/internal/outcome"
)

// CallSession is one attempt to reach a contact by voice.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
//
// Reconciliation invariants:
//   - Outcome is monotonic: it only ever moves to a strictly higher-ranked
//     value (see internal/outcome). Mutation goes through Store.Update so the
//     rank comparison is re-evaluated under the row lock.
//   - Once WebhookVerified is true or Outcome is terminal, NextPollAt is nil
//     and stays nil (polling stops).
//
// Sessions are never deleted; they are retained for audit and reporting.
type CallSession struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	ContactID   string `json:"contact_id" db:"contact_id"`

	// ContactNumber is E.164 where possible.
	ContactNumber string `json:"contact_number" db:"contact_number"`

	// ProviderCallID is empty until the provider accepts the placement request.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Status  Status          `json:"status" db:"status"`
	Outcome outcome.Outcome `json:"outcome" db:"outcome"`

	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`

	// Raw provider payloads kept for audit/debugging, one per channel.
	LastWebhookPayload string `json:"last_webhook_payload,omitempty" db:"last_webhook_payload"`
	LastPollPayload    string `json:"last_poll_payload,omitempty" db:"last_poll_payload"`

	// Transcript is opaque provider output; stored as-is.
	Transcript string `json:"transcript,omitempty" db:"transcript"`

	PollAttempts int `json:"poll_attempts" db:"poll_attempts"`
	// NextPollAt is nil when polling has stopped for this session.
	NextPollAt      *time.Time     `json:"next_poll_at,omitempty" db:"next_poll_at"`
	WebhookVerified bool           `json:"webhook_verified" db:"webhook_verified"`
	SourceOfTruth   outcome.Source `json:"source_of_truth,omitempty" db:"source_of_truth"`

	// NotifiedOutcome is the highest outcome that transition listeners have
	// acknowledged. It trails Outcome while a notification is undelivered;
	// the gap is closed on the next delivery of any event for this call.
	NotifiedOutcome outcome.Outcome `json:"notified_outcome,omitempty" db:"notified_outcome"`

	// DeadLetteredAt is set when the session exceeded the reconciliation
	// ceiling without an outcome and was flagged for operator attention.
	DeadLetteredAt *time.Time `json:"dead_lettered_at,omitempty" db:"dead_lettered_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusQueued    Status = "queued"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PollingStopped reports whether no further poll should ever be scheduled.
func (s CallSession) PollingStopped() bool {
	return s.WebhookVerified || outcome.IsTerminal(s.Outcome) || s.DeadLetteredAt != nil
}

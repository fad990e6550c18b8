package events

import (
	"time"

	"callagent-platform/internal/outcome"
)

// ProviderEvent is one raw, deduplicated provider notification from either
// delivery channel.
//
// Idempotency invariant: (provider_call_id, event_type, digest) is unique.
// A second event with identical content is a no-op, which makes redelivery
// cheap and lets everything downstream assume each distinct event is
// processed exactly once.
//
// Events are immutable once recorded; they are retained for audit.
type ProviderEvent struct {
	ID             string `json:"id" db:"id"`
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	Type Type `json:"event_type" db:"event_type"`

	// Digest is a stable hash of the normalized payload (volatile transport
	// metadata excluded), see Digest().
	Digest string `json:"digest" db:"digest"`

	// Payload is the raw provider JSON, stored as-is.
	Payload string `json:"payload" db:"payload"`

	Source outcome.Source `json:"source" db:"source"`

	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

type Type string

const (
	TypeStarted  Type = "started"
	TypeEnded    Type = "ended"
	TypeAnalyzed Type = "analyzed"
)

// TypeForPayload derives the event type for a poll result, which carries no
// explicit event name: the richest information present wins.
func TypeForPayload(p outcome.StatusPayload) Type {
	switch {
	case p.Analysis != nil:
		return TypeAnalyzed
	case p.Status == "ended":
		return TypeEnded
	default:
		return TypeStarted
	}
}

package events

import (
	"context"
	"errors"
)

var ErrInvalidEvent = errors.New("events: invalid event")

// Store is the append-only provider event log and the system's sole
// idempotency boundary.
//
// Record returns accepted=false when an event with the same
// (provider_call_id, event_type, digest) already exists. That is not an
// error: it means "already processed" and callers short-circuit the
// reconciliation pipeline.
type Store interface {
	Record(ctx context.Context, e ProviderEvent) (accepted bool, err error)
}

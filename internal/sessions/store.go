package sessions

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("sessions: not found")
	ErrInvalidArgument = errors.New("sessions: invalid argument")
	// ErrDuplicateProviderCall means a session already tracks this provider
	// call id; every provider call maps to exactly one session.
	ErrDuplicateProviderCall = errors.New("sessions: provider call id already tracked")
)

// UpdateFunc mutates a session in place. Returning false means "no change";
// the store then skips the write entirely. The function runs under the row
// lock, so rank comparisons inside it see the latest committed state.
type UpdateFunc func(s *CallSession) (changed bool, err error)

// Store is the persistence contract for call sessions.
//
// Every mutation after Create goes through Update, a single atomic
// read-modify-write. Two concurrent writers (webhook handler and polling
// worker) racing on the same session serialize on the row lock, and each
// re-evaluates its merge against the state the other one committed.
type Store interface {
	Create(ctx context.Context, s CallSession) error
	GetByID(ctx context.Context, workspaceID, id string) (CallSession, error)

	// GetByProviderCallID is not workspace-scoped: the webhook path resolves
	// the owning workspace from the session itself.
	GetByProviderCallID(ctx context.Context, providerCallID string) (CallSession, error)

	Update(ctx context.Context, id string, fn UpdateFunc) (CallSession, error)

	// ListDuePolls returns sessions with next_poll_at <= now that still lack
	// a verified terminal outcome, oldest due first. Ended sessions whose
	// outcome is still unknown are included; they either resolve through a
	// later poll or hit the dead-letter ceiling.
	ListDuePolls(ctx context.Context, now time.Time, limit int) ([]CallSession, error)

	List(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]CallSession, error)
}

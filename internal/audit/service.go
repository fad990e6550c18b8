package audit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"callagent-platform/internal/outcome"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records operational events.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogOutcomeTransition records one merged outcome change (old -> new, source).
func (s *Service) LogOutcomeTransition(ctx context.Context, workspaceID, sessionID, contactID, providerCallID string, from, to outcome.Outcome, src outcome.Source) error {
	return s.Append(ctx, Event{
		WorkspaceID:    workspaceID,
		Type:           EventTypeOutcomeTransition,
		SessionID:      sessionID,
		ContactID:      contactID,
		ProviderCallID: providerCallID,
		OldOutcome:     from,
		NewOutcome:     to,
		Source:         src,
		Message:        "outcome upgraded",
	})
}

// LogDeadLetter flags a session that exceeded the reconciliation ceiling
// without an outcome.
func (s *Service) LogDeadLetter(ctx context.Context, workspaceID, sessionID, contactID, providerCallID string, pollAttempts int) error {
	return s.Append(ctx, Event{
		WorkspaceID:    workspaceID,
		Type:           EventTypeDeadLetter,
		SessionID:      sessionID,
		ContactID:      contactID,
		ProviderCallID: providerCallID,
		Message:        "session stuck without outcome, polling stopped",
		Metadata:       `{"poll_attempts":` + strconv.Itoa(pollAttempts) + `}`,
	})
}

// LogTaskExhausted records a call task that ran out of placement attempts.
func (s *Service) LogTaskExhausted(ctx context.Context, workspaceID, taskID, contactID string, attempts int, lastError string) error {
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeTaskExhausted,
		TaskID:      taskID,
		ContactID:   contactID,
		Message:     "call task failed after exhausting attempts: " + lastError,
		Metadata:    `{"attempts":` + strconv.Itoa(attempts) + `}`,
	})
}

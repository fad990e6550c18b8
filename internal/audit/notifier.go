package audit

import (
	"context"

	"callagent-platform/internal/outcome"
	"callagent-platform/internal/sessions"
)

// TransitionLogger records every merged outcome change as an audit event.
// Idempotent in the sense that matters here: re-delivering a transition
// appends a duplicate line, it never corrupts state.
type TransitionLogger struct {
	svc *Service
}

func NewTransitionLogger(svc *Service) *TransitionLogger {
	return &TransitionLogger{svc: svc}
}

func (t *TransitionLogger) OnOutcomeTransition(ctx context.Context, from outcome.Outcome, s sessions.CallSession) error {
	return t.svc.LogOutcomeTransition(ctx, s.WorkspaceID, s.ID, s.ContactID, s.ProviderCallID, from, s.Outcome, s.SourceOfTruth)
}

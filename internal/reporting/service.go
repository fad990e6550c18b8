package reporting

import (
	"context"
	"errors"
	"time"

	"callagent-platform/internal/outcome"
	"callagent-platform/internal/sessions"
	"callagent-platform/internal/tasks"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce workspace filtering.
// - Implementations should query immutable sources when possible (sessions, audit).

type Repository interface {
	ListSessions(ctx context.Context, workspaceID string, from, to time.Time) ([]sessions.CallSession, error)
	ListTasks(ctx context.Context, workspaceID string) ([]tasks.CallTask, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) OutcomeSummary(ctx context.Context, req OutcomeSummaryRequest) (OutcomeSummary, error) {
	if req.WorkspaceID == "" {
		return OutcomeSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return OutcomeSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return OutcomeSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListSessions(ctx, req.WorkspaceID, req.Range.From, req.Range.To)
	if err != nil {
		return OutcomeSummary{}, err
	}

	out := OutcomeSummary{WorkspaceID: req.WorkspaceID, ByOutcome: map[string]int{}}
	for _, sess := range rows {
		out.TotalSessions++
		out.TotalDurationSeconds += sess.DurationSeconds
		out.ByOutcome[string(sess.Outcome)]++

		switch {
		case outcome.IsTerminal(sess.Outcome):
			out.TerminalSessions++
		case outcome.NeedsFollowUp(sess.Outcome):
			out.FollowUpEligible++
		}
		if sess.DeadLetteredAt != nil {
			out.DeadLetteredSessions++
		}
		switch sess.SourceOfTruth {
		case outcome.SourceWebhook:
			out.WebhookResolved++
		case outcome.SourcePoll:
			out.PollResolved++
		}
	}
	if out.TotalSessions > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalSessions
	}
	return out, nil
}

func (s *Service) TaskSummary(ctx context.Context, req TaskSummaryRequest) (TaskSummary, error) {
	if req.WorkspaceID == "" {
		return TaskSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return TaskSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListTasks(ctx, req.WorkspaceID)
	if err != nil {
		return TaskSummary{}, err
	}

	out := TaskSummary{WorkspaceID: req.WorkspaceID}
	for _, t := range rows {
		out.TotalTasks++
		if t.Kind == tasks.KindFollowUp {
			out.FollowUpTasks++
		}
		switch t.Status {
		case tasks.StatusPending:
			out.PendingTasks++
		case tasks.StatusProcessing:
			out.ProcessingTasks++
		case tasks.StatusCompleted:
			out.CompletedTasks++
		case tasks.StatusFailed:
			out.FailedTasks++
		case tasks.StatusCancelled:
			out.CancelledTasks++
		}
	}
	return out, nil
}

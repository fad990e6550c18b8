package tasks

import (
	"context"
	"log/slog"
	"time"

	"callagent-platform/internal/outcome"
	"callagent-platform/internal/sessions"
	"callagent-platform/pkg/logger"

	"github.com/google/uuid"
)

// Scheduler consumes reconciled outcome transitions and decides whether a
// call must be retried.
//
// Idempotency: re-delivery of the same transition (crash-retry of the
// notifier, duplicate merge calls) cannot create a second follow-up; the
// insert races against the active-task uniqueness constraint and loses
// silently.
type Scheduler struct {
	tasks Store

	// FollowUpDelay is how far in the future a retry call is scheduled.
	followUpDelay time.Duration
	maxAttempts   int

	clock func() time.Time
	log   *slog.Logger
}

type SchedulerConfig struct {
	FollowUpDelay time.Duration
	MaxAttempts   int
}

func NewScheduler(store Store, cfg SchedulerConfig) *Scheduler {
	delay := cfg.FollowUpDelay
	if delay <= 0 {
		delay = 30 * time.Minute
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Scheduler{
		tasks:         store,
		followUpDelay: delay,
		maxAttempts:   maxAttempts,
		clock:         time.Now,
		log:           logger.Component(slog.Default(), "scheduler"),
	}
}

// OnOutcomeTransition reacts to one merged outcome change.
func (s *Scheduler) OnOutcomeTransition(ctx context.Context, from outcome.Outcome, sess sessions.CallSession) error {
	switch {
	case outcome.NeedsFollowUp(sess.Outcome):
		now := s.clock().UTC()
		created, err := s.tasks.CreateIfAbsent(ctx, CallTask{
			ID:            uuid.NewString(),
			WorkspaceID:   sess.WorkspaceID,
			ContactID:     sess.ContactID,
			ContactNumber: sess.ContactNumber,
			Kind:          KindFollowUp,
			Status:        StatusPending,
			ScheduledFor:  now.Add(s.followUpDelay),
			MaxAttempts:   s.maxAttempts,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return err
		}
		if created {
			s.log.Info("follow-up scheduled",
				"workspace_id", sess.WorkspaceID,
				"contact_id", sess.ContactID,
				"session_id", sess.ID,
				"outcome", sess.Outcome,
				"at", now.Add(s.followUpDelay),
			)
		}
		return nil

	case outcome.IsTerminal(sess.Outcome):
		cancelled, err := s.tasks.CancelPending(ctx, sess.WorkspaceID, sess.ContactID, KindFollowUp)
		if err != nil {
			return err
		}
		if cancelled {
			s.log.Info("follow-up cancelled",
				"workspace_id", sess.WorkspaceID,
				"contact_id", sess.ContactID,
				"session_id", sess.ID,
				"outcome", sess.Outcome,
			)
		}
		return nil
	}
	return nil
}

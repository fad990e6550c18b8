package poller

import (
	"context"
	"log/slog"
	"time"

	"callagent-platform/internal/audit"
	"callagent-platform/internal/events"
	"callagent-platform/internal/outcome"
	"callagent-platform/internal/reconcile"
	"callagent-platform/internal/sessions"
	"callagent-platform/internal/voice"
	"callagent-platform/pkg/logger"
)

// Config tunes the polling fallback worker.
type Config struct {
	ScanInterval time.Duration
	BatchSize    int
	// QueryTimeout bounds one provider status query. A timed-out query is
	// "no new information", never a negative outcome.
	QueryTimeout time.Duration
	Backoff      Schedule
	// DeadLetterAfter is the ceiling past call creation after which a session
	// still lacking an outcome is flagged for operator attention instead of
	// being retried forever.
	DeadLetterAfter time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.ScanInterval <= 0 {
		out.ScanInterval = 10 * time.Second
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 50
	}
	if out.QueryTimeout <= 0 {
		out.QueryTimeout = 10 * time.Second
	}
	if out.Backoff.Initial <= 0 {
		out.Backoff = DefaultSchedule()
	}
	if out.DeadLetterAfter <= 0 {
		out.DeadLetterAfter = 30 * time.Minute
	}
	return out
}

// Worker is the pull half of outcome delivery: it scans for sessions whose
// next poll is due, queries the provider, and routes results through the
// same reconciliation pipeline the webhook path uses.
type Worker struct {
	sessions   sessions.Store
	provider   voice.Provider
	reconciler *reconcile.Service
	audit      *audit.Service
	cfg        Config
	clock      func() time.Time
	log        *slog.Logger
}

func NewWorker(sessionStore sessions.Store, provider voice.Provider, reconciler *reconcile.Service, auditSvc *audit.Service, cfg Config) *Worker {
	return &Worker{
		sessions:   sessionStore,
		provider:   provider,
		reconciler: reconciler,
		audit:      auditSvc,
		cfg:        cfg.withDefaults(),
		clock:      time.Now,
		log:        logger.Component(slog.Default(), "poller"),
	}
}

// Run scans until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()

	w.log.Info("poller started", "scan_interval", w.cfg.ScanInterval, "dead_letter_after", w.cfg.DeadLetterAfter)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("poller stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error("poll scan failed", "err", err)
			}
		}
	}
}

// RunOnce processes one batch of due sessions and returns how many it polled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.clock().UTC()
	due, err := w.sessions.ListDuePolls(ctx, now, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, s := range due {
		w.pollOne(ctx, s)
	}
	return len(due), nil
}

func (w *Worker) pollOne(ctx context.Context, s sessions.CallSession) {
	now := w.clock().UTC()

	if now.Sub(s.CreatedAt) >= w.cfg.DeadLetterAfter {
		w.deadLetter(ctx, s)
		return
	}

	queryCtx, cancel := context.WithTimeout(ctx, w.cfg.QueryTimeout)
	payload, err := w.provider.GetCallStatus(queryCtx, s.ProviderCallID)
	cancel()
	if err != nil {
		// Transient failure or timeout: no new information, reschedule.
		w.log.Warn("status query failed", "session_id", s.ID, "provider_call_id", s.ProviderCallID, "err", err)
		w.reschedule(ctx, s.ID, now)
		return
	}

	eventType := events.TypeStarted
	if parsed, perr := outcome.ParsePayload(payload); perr == nil {
		eventType = events.TypeForPayload(parsed)
	}

	if _, err := w.reconciler.Process(ctx, outcome.SourcePoll, s.ProviderCallID, eventType, payload); err != nil {
		w.log.Error("poll reconciliation failed", "session_id", s.ID, "err", err)
	}

	w.reschedule(ctx, s.ID, now)
}

// reschedule bumps the attempt counter and schedules the next poll, unless
// the merge (possibly a concurrent webhook's) already stopped polling. The
// stop condition is re-read under the row lock, not from our stale copy.
func (w *Worker) reschedule(ctx context.Context, sessionID string, now time.Time) {
	_, err := w.sessions.Update(ctx, sessionID, func(cur *sessions.CallSession) (bool, error) {
		cur.PollAttempts++
		if cur.PollingStopped() {
			cur.NextPollAt = nil
		} else {
			next := now.Add(w.cfg.Backoff.Delay(cur.PollAttempts))
			cur.NextPollAt = &next
		}
		cur.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		w.log.Error("poll reschedule failed", "session_id", sessionID, "err", err)
	}
}

func (w *Worker) deadLetter(ctx context.Context, s sessions.CallSession) {
	now := w.clock().UTC()
	updated, err := w.sessions.Update(ctx, s.ID, func(cur *sessions.CallSession) (bool, error) {
		if cur.PollingStopped() {
			// An outcome or webhook landed since the scan; nothing to flag.
			return false, nil
		}
		cur.DeadLetteredAt = &now
		cur.NextPollAt = nil
		cur.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		w.log.Error("dead-letter update failed", "session_id", s.ID, "err", err)
		return
	}
	if updated.DeadLetteredAt == nil || !updated.DeadLetteredAt.Equal(now) {
		return
	}

	w.log.Error("session dead-lettered",
		"session_id", s.ID,
		"provider_call_id", s.ProviderCallID,
		"poll_attempts", updated.PollAttempts,
		"age", now.Sub(s.CreatedAt),
	)
	if w.audit != nil {
		if err := w.audit.LogDeadLetter(ctx, s.WorkspaceID, s.ID, s.ContactID, s.ProviderCallID, updated.PollAttempts); err != nil {
			w.log.Error("dead-letter audit failed", "session_id", s.ID, "err", err)
		}
	}
}

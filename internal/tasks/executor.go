package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"callagent-platform/internal/audit"
	"callagent-platform/internal/outcome"
	"callagent-platform/internal/sessions"
	"callagent-platform/internal/voice"
	"callagent-platform/pkg/logger"

	"github.com/google/uuid"
)

// ExecutorConfig tunes the task execution worker.
type ExecutorConfig struct {
	ScanInterval time.Duration
	BatchSize    int
	// PlaceTimeout bounds one placement request to the provider.
	PlaceTimeout time.Duration
	// InitialPollDelay is how long after placement the first fallback poll
	// runs, leaving the webhook channel a head start.
	InitialPollDelay time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	out := c
	if out.ScanInterval <= 0 {
		out.ScanInterval = 5 * time.Second
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 20
	}
	if out.PlaceTimeout <= 0 {
		out.PlaceTimeout = 15 * time.Second
	}
	if out.InitialPollDelay <= 0 {
		out.InitialPollDelay = 45 * time.Second
	}
	return out
}

// Executor drains due call tasks: it claims a batch, asks the voice provider
// to place each call, and opens a session that the reconciliation pipeline
// tracks from there on.
//
// Claiming is the only coordination point between workers; a claimed task is
// invisible to other executors until it completes, fails, or is released.
type Executor struct {
	tasks    Store
	sessions sessions.Store
	provider voice.Provider
	// caps is optional; nil means no per-workspace placement limit.
	caps  CallCap
	audit *audit.Service
	cfg   ExecutorConfig
	clock func() time.Time
	log   *slog.Logger
}

func NewExecutor(taskStore Store, sessionStore sessions.Store, provider voice.Provider, caps CallCap, auditSvc *audit.Service, cfg ExecutorConfig) *Executor {
	return &Executor{
		tasks:    taskStore,
		sessions: sessionStore,
		provider: provider,
		caps:     caps,
		audit:    auditSvc,
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
		log:      logger.Component(slog.Default(), "executor"),
	}
}

// Run scans until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	e.log.Info("task executor started", "scan_interval", e.cfg.ScanInterval, "batch_size", e.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("task executor stopped")
			return
		case <-ticker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				e.log.Error("task scan failed", "err", err)
			}
		}
	}
}

// RunOnce claims and executes one batch of due tasks, returning how many it
// claimed.
func (e *Executor) RunOnce(ctx context.Context) (int, error) {
	now := e.clock().UTC()
	claimed, err := e.tasks.ClaimDue(ctx, now, e.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, t := range claimed {
		e.executeOne(ctx, t)
	}
	return len(claimed), nil
}

func (e *Executor) executeOne(ctx context.Context, t CallTask) {
	now := e.clock().UTC()

	if e.caps != nil {
		ok, err := e.caps.Acquire(ctx, t.WorkspaceID)
		if err != nil {
			e.log.Warn("call cap check failed", "task_id", t.ID, "err", err)
			// Fail open: a broken cap backend must not stall call delivery.
			ok = true
		}
		if !ok {
			// Capacity deferral, not a placement failure. The claim's
			// attempt bump is refunded so the budget only counts real tries.
			e.log.Info("call cap reached, deferring task", "task_id", t.ID, "workspace_id", t.WorkspaceID)
			if err := e.tasks.Release(ctx, t.ID, now, "workspace call cap reached", true); err != nil {
				e.log.Error("task release failed", "task_id", t.ID, "err", err)
			}
			return
		}
	}

	placeCtx, cancel := context.WithTimeout(ctx, e.cfg.PlaceTimeout)
	res, err := e.provider.PlaceCall(placeCtx, voice.PlaceCallRequest{
		WorkspaceID:   t.WorkspaceID,
		ContactID:     t.ContactID,
		ContactNumber: t.ContactNumber,
		ScriptContext: decodeScriptContext(t.ScriptContext),
	})
	cancel()
	if err != nil {
		// No call went out; hand the cap slot back. Slots held by placed
		// calls drain via the counter TTL instead, since call end is
		// observed by the reconciler, not here.
		e.releaseCap(ctx, t.WorkspaceID)
		e.failOrRetry(ctx, t, now, err)
		return
	}

	sess := sessions.CallSession{
		ID:              uuid.NewString(),
		WorkspaceID:     t.WorkspaceID,
		ContactID:       t.ContactID,
		ContactNumber:   t.ContactNumber,
		ProviderCallID:  res.ProviderCallID,
		Status:          sessions.StatusQueued,
		Outcome:         outcome.Unknown,
		NotifiedOutcome: outcome.Unknown,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	firstPoll := now.Add(e.cfg.InitialPollDelay)
	sess.NextPollAt = &firstPoll

	if err := e.sessions.Create(ctx, sess); err != nil {
		// The call is already ringing; losing the session row here would
		// orphan every webhook for it. Surface loudly and release the task
		// without burning the attempt, so the next scan can recover.
		e.log.Error("session create failed after placement",
			"task_id", t.ID,
			"provider_call_id", res.ProviderCallID,
			"err", err,
		)
		if rerr := e.tasks.Release(ctx, t.ID, now, "session create failed: "+err.Error(), true); rerr != nil {
			e.log.Error("task release failed", "task_id", t.ID, "err", rerr)
		}
		return
	}

	if err := e.tasks.MarkCompleted(ctx, t.ID, now); err != nil {
		e.log.Error("task completion failed", "task_id", t.ID, "err", err)
		return
	}
	e.log.Info("call placed",
		"task_id", t.ID,
		"kind", t.Kind,
		"workspace_id", t.WorkspaceID,
		"contact_id", t.ContactID,
		"session_id", sess.ID,
		"provider_call_id", res.ProviderCallID,
	)
}

// failOrRetry decides what a placement failure costs: release for a later
// scan while attempts remain, fail permanently once the budget is spent.
func (e *Executor) failOrRetry(ctx context.Context, t CallTask, now time.Time, cause error) {
	// ClaimDue already counted this attempt.
	if t.Attempts >= t.MaxAttempts {
		e.log.Error("task exhausted",
			"task_id", t.ID,
			"workspace_id", t.WorkspaceID,
			"contact_id", t.ContactID,
			"attempts", t.Attempts,
			"err", cause,
		)
		if err := e.tasks.MarkFailed(ctx, t.ID, now, cause.Error()); err != nil {
			e.log.Error("task fail-mark failed", "task_id", t.ID, "err", err)
		}
		if e.audit != nil {
			if err := e.audit.LogTaskExhausted(ctx, t.WorkspaceID, t.ID, t.ContactID, t.Attempts, cause.Error()); err != nil {
				e.log.Error("task exhaustion audit failed", "task_id", t.ID, "err", err)
			}
		}
		return
	}

	e.log.Warn("call placement failed, will retry",
		"task_id", t.ID,
		"attempts", t.Attempts,
		"max_attempts", t.MaxAttempts,
		"err", cause,
	)
	if err := e.tasks.Release(ctx, t.ID, now, cause.Error(), false); err != nil {
		e.log.Error("task release failed", "task_id", t.ID, "err", err)
	}
}

func (e *Executor) releaseCap(ctx context.Context, workspaceID string) {
	if e.caps == nil {
		return
	}
	if err := e.caps.Release(ctx, workspaceID); err != nil {
		e.log.Warn("call cap release failed", "workspace_id", workspaceID, "err", err)
	}
}

func decodeScriptContext(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

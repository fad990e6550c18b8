package reconcile

import (
	"time"

	"callagent-platform/internal/outcome"
	"callagent-platform/internal/sessions"
)

// applyMerge applies one extracted outcome report to a session. It runs
// inside sessions.Store.Update, i.e. under the row lock, so the rank
// comparison always sees the latest committed state.
//
// Rules:
//   - The outcome only moves to a strictly higher rank. A lower or equal
//     candidate mutates neither outcome nor source-of-truth.
//   - Bookkeeping (raw payload, evidence, lifecycle status) is recorded either
//     way so observability survives no-op merges.
//   - Whenever the resulting outcome is terminal or the webhook channel has
//     been verified, next_poll_at is cleared: polling stops.
//
// Returns whether the canonical outcome changed.
func applyMerge(s *sessions.CallSession, cand outcome.Outcome, ev outcome.Evidence, src outcome.Source, rawPayload string, now time.Time) bool {
	switch src {
	case outcome.SourceWebhook:
		s.LastWebhookPayload = rawPayload
	case outcome.SourcePoll:
		s.LastPollPayload = rawPayload
	}

	// Evidence merges prefer non-null over null and newest over oldest.
	if ev.StartedAt != nil {
		s.StartedAt = ev.StartedAt
	}
	if ev.EndedAt != nil {
		s.EndedAt = ev.EndedAt
	}
	if ev.DurationSeconds > 0 {
		s.DurationSeconds = ev.DurationSeconds
	}
	if ev.Transcript != "" {
		s.Transcript = ev.Transcript
	}

	upgraded := outcome.Rank(cand) > outcome.Rank(s.Outcome)
	if upgraded {
		s.Outcome = cand
		s.SourceOfTruth = src
		if src == outcome.SourceWebhook {
			s.WebhookVerified = true
		}
	}

	// Lifecycle status moves forward only; a stale "in progress" report must
	// not reopen a completed session.
	switch {
	case outcome.IsTerminal(s.Outcome):
		s.Status = sessions.StatusCompleted
	case ev.Ended:
		advanceStatus(s, sessions.StatusCompleted)
	case ev.Started:
		advanceStatus(s, sessions.StatusOngoing)
	}

	if outcome.IsTerminal(s.Outcome) || s.WebhookVerified {
		s.NextPollAt = nil
	}

	s.UpdatedAt = now
	return upgraded
}

var statusOrder = map[sessions.Status]int{
	sessions.StatusQueued:    0,
	sessions.StatusOngoing:   1,
	sessions.StatusCompleted: 2,
	sessions.StatusFailed:    2,
}

func advanceStatus(s *sessions.CallSession, to sessions.Status) {
	if statusOrder[to] > statusOrder[s.Status] {
		s.Status = to
	}
}

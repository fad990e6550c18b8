package poller

import (
	"context"
	"testing"
	"time"

	"callagent-platform/internal/audit"
	"callagent-platform/internal/events"
	"callagent-platform/internal/outcome"
	"callagent-platform/internal/reconcile"
	"callagent-platform/internal/sessions"
	"callagent-platform/internal/voice"
)

type fakeProvider struct {
	payload []byte
	err     error
	calls   int
}

func (f *fakeProvider) Name() string                          { return "fake" }
func (f *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeProvider) PlaceCall(ctx context.Context, req voice.PlaceCallRequest) (voice.PlaceCallResult, error) {
	return voice.PlaceCallResult{}, nil
}

func (f *fakeProvider) GetCallStatus(ctx context.Context, providerCallID string) ([]byte, error) {
	f.calls++
	return f.payload, f.err
}

var testNow = time.Unix(1700000100, 0).UTC()

func newTestWorker(t *testing.T, provider *fakeProvider) (*Worker, *sessions.MemoryStore, *audit.MemoryRepo) {
	t.Helper()
	ss := sessions.NewMemoryStore()
	es := events.NewMemoryStore()
	repo := audit.NewMemoryRepo()

	w := NewWorker(ss, provider, reconcile.NewService(ss, es), audit.NewService(repo), Config{
		Backoff: Schedule{
			Initial: 45 * time.Second,
			Steps:   []time.Duration{45 * time.Second, 90 * time.Second},
			Max:     10 * time.Minute,
		},
		DeadLetterAfter: 30 * time.Minute,
	})
	w.clock = func() time.Time { return testNow }
	return w, ss, repo
}

func seedDueSession(t *testing.T, ss *sessions.MemoryStore, createdAt time.Time) {
	t.Helper()
	due := testNow.Add(-time.Second)
	err := ss.Create(context.Background(), sessions.CallSession{
		ID:             "sess_1",
		WorkspaceID:    "w1",
		ContactID:      "contact1",
		ProviderCallID: "vc_1",
		Status:         sessions.StatusQueued,
		Outcome:        outcome.Unknown,
		NextPollAt:     &due,
		CreatedAt:      createdAt,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestScheduleDelays(t *testing.T) {
	s := Schedule{
		Initial: 45 * time.Second,
		Steps:   []time.Duration{45 * time.Second, 90 * time.Second, 20 * time.Minute},
		Max:     10 * time.Minute,
	}
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 45 * time.Second},
		{1, 45 * time.Second},
		{2, 90 * time.Second},
		{3, 10 * time.Minute}, // step above cap is capped
		{4, 10 * time.Minute}, // past the last step
		{100, 10 * time.Minute},
	}
	for _, c := range cases {
		if got := s.Delay(c.attempts); got != c.want {
			t.Fatalf("attempts %d: expected %s, got %s", c.attempts, c.want, got)
		}
	}
}

func TestPollTerminalOutcomeStopsPolling(t *testing.T) {
	p := &fakeProvider{payload: []byte(`{"call_id":"vc_1","status":"ended","ended_reason":"customer_ended_call","analysis":{"appointment_action":"confirmed"}}`)}
	w, ss, _ := newTestWorker(t, p)
	seedDueSession(t, ss, testNow.Add(-2*time.Minute))
	ctx := context.Background()

	n, err := w.RunOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 polled session, got %d %v", n, err)
	}

	s, _ := ss.GetByProviderCallID(ctx, "vc_1")
	if s.Outcome != outcome.Confirmed {
		t.Fatalf("expected confirmed, got %s", s.Outcome)
	}
	if s.NextPollAt != nil {
		t.Fatalf("terminal outcome must stop polling")
	}
	if s.PollAttempts != 1 {
		t.Fatalf("expected 1 poll attempt, got %d", s.PollAttempts)
	}

	// Nothing left to poll.
	if n, _ := w.RunOnce(ctx); n != 0 {
		t.Fatalf("expected no due sessions, got %d", n)
	}
}

func TestPollInFlightReschedulesWithBackoff(t *testing.T) {
	p := &fakeProvider{payload: []byte(`{"call_id":"vc_1","status":"in_progress"}`)}
	w, ss, _ := newTestWorker(t, p)
	seedDueSession(t, ss, testNow.Add(-2*time.Minute))
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	s, _ := ss.GetByProviderCallID(ctx, "vc_1")
	if s.Outcome != outcome.Unknown {
		t.Fatalf("in-flight call must not get an outcome, got %s", s.Outcome)
	}
	if s.Status != sessions.StatusOngoing {
		t.Fatalf("expected ongoing, got %s", s.Status)
	}
	if s.NextPollAt == nil {
		t.Fatalf("expected next poll scheduled")
	}
	if want := testNow.Add(45 * time.Second); !s.NextPollAt.Equal(want) {
		t.Fatalf("expected next poll at %s, got %s", want, s.NextPollAt)
	}
}

func TestTimedOutPollIsNotANegativeOutcome(t *testing.T) {
	p := &fakeProvider{err: context.DeadlineExceeded}
	w, ss, _ := newTestWorker(t, p)
	seedDueSession(t, ss, testNow.Add(-2*time.Minute))
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	s, _ := ss.GetByProviderCallID(ctx, "vc_1")
	if s.Outcome != outcome.Unknown {
		t.Fatalf("timeout must not produce an outcome, got %s", s.Outcome)
	}
	if s.PollAttempts != 1 || s.NextPollAt == nil {
		t.Fatalf("timeout must reschedule per backoff: %+v", s)
	}
}

func TestDeadLetterAfterCeiling(t *testing.T) {
	p := &fakeProvider{err: context.DeadlineExceeded}
	w, ss, repo := newTestWorker(t, p)
	seedDueSession(t, ss, testNow.Add(-31*time.Minute))
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	s, _ := ss.GetByProviderCallID(ctx, "vc_1")
	if s.DeadLetteredAt == nil {
		t.Fatalf("expected session flagged")
	}
	if s.NextPollAt != nil {
		t.Fatalf("dead-lettered session must not be polled again")
	}
	if p.calls != 0 {
		t.Fatalf("dead-letter check happens before the provider query")
	}

	alerts := repo.ByType(audit.EventTypeDeadLetter)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 dead-letter alert, got %d", len(alerts))
	}
	if alerts[0].SessionID != "sess_1" {
		t.Fatalf("alert should reference the session: %+v", alerts[0])
	}

	if n, _ := w.RunOnce(ctx); n != 0 {
		t.Fatalf("flagged session must not be retried, got %d due", n)
	}
}

func TestWebhookWinsRaceAgainstReschedule(t *testing.T) {
	p := &fakeProvider{payload: []byte(`{"call_id":"vc_1","status":"in_progress"}`)}
	w, ss, _ := newTestWorker(t, p)
	seedDueSession(t, ss, testNow.Add(-2*time.Minute))
	ctx := context.Background()

	// A webhook-verified terminal outcome lands; reschedule must observe the
	// stop condition under the lock and keep next_poll_at nil.
	_, err := ss.Update(ctx, "sess_1", func(cur *sessions.CallSession) (bool, error) {
		cur.Outcome = outcome.Confirmed
		cur.WebhookVerified = true
		cur.NextPollAt = nil
		cur.Status = sessions.StatusCompleted
		return true, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	w.reschedule(ctx, "sess_1", testNow)

	s, _ := ss.GetByProviderCallID(ctx, "vc_1")
	if s.NextPollAt != nil {
		t.Fatalf("reschedule must not resurrect polling on a verified session")
	}
}

// A call can end with a reason outside the known vocabulary: the session goes
// completed while the outcome stays unknown. It must remain in the poll scan
// rather than dangle outcome-less with polling silently abandoned.
func TestEndedWithoutOutcomeKeepsPolling(t *testing.T) {
	p := &fakeProvider{payload: []byte(`{"call_id":"vc_1","status":"ended","ended_reason":"pipeline_error_unclassified"}`)}
	w, ss, _ := newTestWorker(t, p)
	seedDueSession(t, ss, testNow.Add(-2*time.Minute))
	ctx := context.Background()

	if _, err := w.RunOnce(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	s, _ := ss.GetByProviderCallID(ctx, "vc_1")
	if s.Status != sessions.StatusCompleted || s.Outcome != outcome.Unknown {
		t.Fatalf("expected completed session with unknown outcome, got %s/%s", s.Status, s.Outcome)
	}
	if s.NextPollAt == nil {
		t.Fatalf("outcome-less session must stay scheduled for polling")
	}

	due, err := ss.ListDuePolls(ctx, s.NextPollAt.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("completed-without-outcome session must stay in the scan, got %d due", len(due))
	}
}

// Same shape past the ceiling: the operator gets a dead-letter flag, not a
// session stranded forever.
func TestEndedWithoutOutcomeDeadLettersAfterCeiling(t *testing.T) {
	p := &fakeProvider{}
	w, ss, repo := newTestWorker(t, p)
	seedDueSession(t, ss, testNow.Add(-31*time.Minute))
	ctx := context.Background()

	_, err := ss.Update(ctx, "sess_1", func(cur *sessions.CallSession) (bool, error) {
		cur.Status = sessions.StatusCompleted
		return true, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if n, _ := w.RunOnce(ctx); n != 1 {
		t.Fatalf("expected 1 due session, got %d", n)
	}

	s, _ := ss.GetByProviderCallID(ctx, "vc_1")
	if s.DeadLetteredAt == nil {
		t.Fatalf("expected session flagged")
	}
	if s.NextPollAt != nil {
		t.Fatalf("dead-lettered session must drop out of the scan")
	}
	if len(repo.ByType(audit.EventTypeDeadLetter)) != 1 {
		t.Fatalf("expected a dead-letter alert")
	}
}

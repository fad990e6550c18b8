package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"callagent-platform/internal/outcome"
	"callagent-platform/internal/sessions"
)

var testNow = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

func newTestScheduler(store Store) *Scheduler {
	s := NewScheduler(store, SchedulerConfig{FollowUpDelay: 30 * time.Minute, MaxAttempts: 3})
	s.clock = func() time.Time { return testNow }
	return s
}

func transitionSession(out outcome.Outcome) sessions.CallSession {
	return sessions.CallSession{
		ID:            "sess-1",
		WorkspaceID:   "ws-1",
		ContactID:     "contact-1",
		ContactNumber: "+15550100",
		Outcome:       out,
	}
}

func TestSchedulerCreatesFollowUpOnNoAnswer(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)

	if err := sched.OnOutcomeTransition(context.Background(), outcome.Unknown, transitionSession(outcome.NoAnswer)); err != nil {
		t.Fatalf("OnOutcomeTransition: %v", err)
	}

	tasks, err := store.List(context.Background(), "ws-1", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.Kind != KindFollowUp {
		t.Errorf("kind = %q, want %q", got.Kind, KindFollowUp)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if want := testNow.Add(30 * time.Minute); !got.ScheduledFor.Equal(want) {
		t.Errorf("scheduled_for = %v, want %v", got.ScheduledFor, want)
	}
	if got.MaxAttempts != 3 {
		t.Errorf("max_attempts = %d, want 3", got.MaxAttempts)
	}
}

// A second retryable outcome for the same contact must not stack a second
// follow-up while the first is still active.
func TestSchedulerDedupesActiveFollowUp(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)
	ctx := context.Background()

	if err := sched.OnOutcomeTransition(ctx, outcome.Unknown, transitionSession(outcome.NoAnswer)); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := sched.OnOutcomeTransition(ctx, outcome.NoAnswer, transitionSession(outcome.Voicemail)); err != nil {
		t.Fatalf("second transition: %v", err)
	}

	tasks, _ := store.List(ctx, "ws-1", 10)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 follow-up after duplicate transitions, got %d", len(tasks))
	}
}

func TestSchedulerCancelsFollowUpOnTerminalOutcome(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)
	ctx := context.Background()

	if err := sched.OnOutcomeTransition(ctx, outcome.Unknown, transitionSession(outcome.NoAnswer)); err != nil {
		t.Fatalf("follow-up transition: %v", err)
	}
	// The contact answers a later call and confirms before the retry runs.
	if err := sched.OnOutcomeTransition(ctx, outcome.NoAnswer, transitionSession(outcome.Confirmed)); err != nil {
		t.Fatalf("terminal transition: %v", err)
	}

	tasks, _ := store.List(ctx, "ws-1", 10)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Status != StatusCancelled {
		t.Errorf("status = %q, want cancelled", tasks[0].Status)
	}

	// With the old follow-up cancelled, a fresh retryable outcome may
	// schedule again.
	if err := sched.OnOutcomeTransition(ctx, outcome.Unknown, transitionSession(outcome.Busy)); err != nil {
		t.Fatalf("post-cancel transition: %v", err)
	}
	tasks, _ = store.List(ctx, "ws-1", 10)
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks after re-schedule, got %d", len(tasks))
	}
}

func TestSchedulerLeavesProcessingFollowUpAlone(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)
	ctx := context.Background()

	if err := sched.OnOutcomeTransition(ctx, outcome.Unknown, transitionSession(outcome.NoAnswer)); err != nil {
		t.Fatalf("follow-up transition: %v", err)
	}
	claimed, err := store.ClaimDue(ctx, testNow.Add(time.Hour), 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("ClaimDue: %v (claimed %d)", err, len(claimed))
	}

	if err := sched.OnOutcomeTransition(ctx, outcome.NoAnswer, transitionSession(outcome.Confirmed)); err != nil {
		t.Fatalf("terminal transition: %v", err)
	}

	got, err := store.GetByID(ctx, "ws-1", claimed[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusProcessing {
		t.Errorf("status = %q, want processing (in-flight placement is not recalled)", got.Status)
	}
}

func TestSchedulerIgnoresNonActionableOutcomes(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)

	for _, out := range []outcome.Outcome{outcome.Unknown, outcome.Answered} {
		if err := sched.OnOutcomeTransition(context.Background(), outcome.Unknown, transitionSession(out)); err != nil {
			t.Fatalf("OnOutcomeTransition(%q): %v", out, err)
		}
	}
	tasks, _ := store.List(context.Background(), "ws-1", 10)
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
}

// Crash-retry and duplicate merges can deliver the same transition from
// several goroutines at once; the active-task constraint must still admit
// exactly one follow-up.
func TestSchedulerConcurrentTransitionsCreateOneFollowUp(t *testing.T) {
	store := NewMemoryStore()
	sched := newTestScheduler(store)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.OnOutcomeTransition(context.Background(), outcome.Unknown, transitionSession(outcome.NoAnswer)); err != nil {
				t.Errorf("OnOutcomeTransition: %v", err)
			}
		}()
	}
	wg.Wait()

	tasks, err := store.List(context.Background(), "ws-1", 50)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected exactly 1 follow-up after racing transitions, got %d", len(tasks))
	}
	if tasks[0].Status != StatusPending || tasks[0].Kind != KindFollowUp {
		t.Fatalf("unexpected task %+v", tasks[0])
	}
}

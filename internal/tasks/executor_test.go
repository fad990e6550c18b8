package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"callagent-platform/internal/audit"
	"callagent-platform/internal/sessions"
	"callagent-platform/internal/voice"
)

type fakePlacer struct {
	calls   []voice.PlaceCallRequest
	nextID  string
	failErr error
}

func (f *fakePlacer) Name() string                          { return "fake" }
func (f *fakePlacer) HealthCheck(ctx context.Context) error { return nil }

func (f *fakePlacer) PlaceCall(ctx context.Context, req voice.PlaceCallRequest) (voice.PlaceCallResult, error) {
	f.calls = append(f.calls, req)
	if f.failErr != nil {
		return voice.PlaceCallResult{}, f.failErr
	}
	return voice.PlaceCallResult{ProviderCallID: f.nextID, AcceptedAt: testNow}, nil
}

func (f *fakePlacer) GetCallStatus(ctx context.Context, providerCallID string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

type fakeCap struct {
	allow    bool
	acquired int
	released int
}

func (c *fakeCap) Acquire(ctx context.Context, workspaceID string) (bool, error) {
	c.acquired++
	return c.allow, nil
}

func (c *fakeCap) Release(ctx context.Context, workspaceID string) error {
	c.released++
	return nil
}

type executorFixture struct {
	tasks     *MemoryStore
	sessions  *sessions.MemoryStore
	provider  *fakePlacer
	auditRepo *audit.MemoryRepo
	exec      *Executor
}

func newExecutorFixture(t *testing.T, caps CallCap) *executorFixture {
	t.Helper()
	f := &executorFixture{
		tasks:     NewMemoryStore(),
		sessions:  sessions.NewMemoryStore(),
		provider:  &fakePlacer{nextID: "prov-call-1"},
		auditRepo: audit.NewMemoryRepo(),
	}
	f.exec = NewExecutor(f.tasks, f.sessions, f.provider, caps, audit.NewService(f.auditRepo), ExecutorConfig{
		InitialPollDelay: 45 * time.Second,
	})
	f.exec.clock = func() time.Time { return testNow }
	return f
}

func (f *executorFixture) seedTask(t *testing.T, task CallTask) CallTask {
	t.Helper()
	if task.ID == "" {
		task.ID = "task-1"
	}
	if task.WorkspaceID == "" {
		task.WorkspaceID = "ws-1"
	}
	if task.ContactID == "" {
		task.ContactID = "contact-1"
	}
	if task.ContactNumber == "" {
		task.ContactNumber = "+15550100"
	}
	if task.Kind == "" {
		task.Kind = KindInitialReminder
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.ScheduledFor.IsZero() {
		task.ScheduledFor = testNow.Add(-time.Minute)
	}
	if task.MaxAttempts == 0 {
		task.MaxAttempts = 3
	}
	created, err := f.tasks.CreateIfAbsent(context.Background(), task)
	if err != nil || !created {
		t.Fatalf("seed task: created=%v err=%v", created, err)
	}
	return task
}

func TestExecutorPlacesCallAndOpensSession(t *testing.T) {
	f := newExecutorFixture(t, nil)
	task := f.seedTask(t, CallTask{ScriptContext: `{"patient":"Ada"}`})
	ctx := context.Background()

	n, err := f.exec.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("claimed %d tasks, want 1", n)
	}
	if len(f.provider.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(f.provider.calls))
	}
	if got := f.provider.calls[0].ScriptContext["patient"]; got != "Ada" {
		t.Errorf("script context not forwarded, got %q", got)
	}

	done, err := f.tasks.GetByID(ctx, "ws-1", task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("task status = %q, want completed", done.Status)
	}

	sess, err := f.sessions.GetByProviderCallID(ctx, "prov-call-1")
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if sess.Status != sessions.StatusQueued {
		t.Errorf("session status = %q, want queued", sess.Status)
	}
	if sess.NextPollAt == nil {
		t.Fatal("session has no next poll scheduled")
	}
	if want := testNow.Add(45 * time.Second); !sess.NextPollAt.Equal(want) {
		t.Errorf("next_poll_at = %v, want %v", sess.NextPollAt, want)
	}
	if sess.ContactNumber != "+15550100" {
		t.Errorf("contact number = %q", sess.ContactNumber)
	}
}

func TestExecutorSkipsFutureTasks(t *testing.T) {
	f := newExecutorFixture(t, nil)
	f.seedTask(t, CallTask{ScheduledFor: testNow.Add(time.Hour)})

	n, err := f.exec.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 {
		t.Fatalf("claimed %d tasks, want 0", n)
	}
	if len(f.provider.calls) != 0 {
		t.Fatalf("provider called for a future task")
	}
}

func TestExecutorRetriesPlacementFailure(t *testing.T) {
	f := newExecutorFixture(t, nil)
	f.provider.failErr = errors.New("provider 503")
	task := f.seedTask(t, CallTask{})
	ctx := context.Background()

	if _, err := f.exec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := f.tasks.GetByID(ctx, "ws-1", task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("task status = %q, want pending for retry", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (failure consumed the attempt)", got.Attempts)
	}
	if got.LastError == "" {
		t.Error("last_error not recorded")
	}
}

func TestExecutorExhaustsAttemptBudget(t *testing.T) {
	f := newExecutorFixture(t, nil)
	f.provider.failErr = errors.New("provider 503")
	task := f.seedTask(t, CallTask{MaxAttempts: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.exec.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
	}

	got, err := f.tasks.GetByID(ctx, "ws-1", task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("task status = %q, want failed", got.Status)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}

	alerts := f.auditRepo.ByType(audit.EventTypeTaskExhausted)
	if len(alerts) != 1 {
		t.Fatalf("exhaustion alerts = %d, want 1", len(alerts))
	}
	if alerts[0].TaskID != task.ID {
		t.Errorf("alert task id = %q, want %q", alerts[0].TaskID, task.ID)
	}

	// A failed task stays failed; the next scan must not resurrect it.
	if _, err := f.exec.RunOnce(ctx); err != nil {
		t.Fatalf("post-failure RunOnce: %v", err)
	}
	if len(f.provider.calls) != 2 {
		t.Errorf("provider calls = %d, want 2", len(f.provider.calls))
	}
}

func TestExecutorDefersOnCallCap(t *testing.T) {
	caps := &fakeCap{allow: false}
	f := newExecutorFixture(t, caps)
	task := f.seedTask(t, CallTask{})
	ctx := context.Background()

	if _, err := f.exec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(f.provider.calls) != 0 {
		t.Fatal("provider called despite cap rejection")
	}

	got, err := f.tasks.GetByID(ctx, "ws-1", task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("task status = %q, want pending", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0 (capacity deferral refunds the claim)", got.Attempts)
	}

	// Capacity frees up; the same task goes out on the next scan.
	caps.allow = true
	if _, err := f.exec.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(f.provider.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(f.provider.calls))
	}
}

func TestExecutorReleasesCapOnPlacementFailure(t *testing.T) {
	caps := &fakeCap{allow: true}
	f := newExecutorFixture(t, caps)
	f.provider.failErr = errors.New("provider 503")
	f.seedTask(t, CallTask{})

	if _, err := f.exec.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if caps.acquired != 1 || caps.released != 1 {
		t.Errorf("cap acquired=%d released=%d, want 1/1", caps.acquired, caps.released)
	}
}

package tasks

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory task store for tests and early development.
// It enforces the same active-task uniqueness the Postgres partial index
// provides.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]CallTask
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]CallTask{}}
}

func (m *MemoryStore) CreateIfAbsent(ctx context.Context, t CallTask) (bool, error) {
	if t.ID == "" || t.WorkspaceID == "" || t.ContactID == "" || t.Kind == "" {
		return false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.WorkspaceID == t.WorkspaceID &&
			existing.ContactID == t.ContactID &&
			existing.Kind == t.Kind &&
			(existing.Status == StatusPending || existing.Status == StatusProcessing) {
			return false, nil
		}
	}
	m.byID[t.ID] = t
	return true, nil
}

func (m *MemoryStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]CallTask, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]CallTask, 0)
	for _, t := range m.byID {
		if t.Status == StatusPending && !t.ScheduledFor.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]CallTask, 0, len(due))
	for _, t := range due {
		t.Status = StatusProcessing
		t.Attempts++
		at := now
		t.LastAttemptAt = &at
		t.UpdatedAt = now
		m.byID[t.ID] = t
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	return m.transition(id, StatusProcessing, StatusCompleted, now, "", false)
}

func (m *MemoryStore) MarkFailed(ctx context.Context, id string, now time.Time, lastError string) error {
	return m.transition(id, StatusProcessing, StatusFailed, now, lastError, false)
}

func (m *MemoryStore) Release(ctx context.Context, id string, now time.Time, lastError string, refundAttempt bool) error {
	return m.transition(id, StatusProcessing, StatusPending, now, lastError, refundAttempt)
}

func (m *MemoryStore) transition(id string, from, to Status, now time.Time, lastError string, refundAttempt bool) error {
	if id == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.Status != from {
		return ErrNotFound
	}
	t.Status = to
	if refundAttempt {
		t.Attempts--
	}
	if lastError != "" {
		t.LastError = lastError
	}
	t.UpdatedAt = now
	m.byID[id] = t
	return nil
}

func (m *MemoryStore) CancelPending(ctx context.Context, workspaceID, contactID string, kind Kind) (bool, error) {
	if workspaceID == "" || contactID == "" || kind == "" {
		return false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cancelled := false
	for id, t := range m.byID {
		if t.WorkspaceID == workspaceID && t.ContactID == contactID && t.Kind == kind && t.Status == StatusPending {
			t.Status = StatusCancelled
			m.byID[id] = t
			cancelled = true
		}
	}
	return cancelled, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, workspaceID, id string) (CallTask, error) {
	if workspaceID == "" || id == "" {
		return CallTask{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok || t.WorkspaceID != workspaceID {
		return CallTask{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) List(ctx context.Context, workspaceID string, limit int) ([]CallTask, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallTask, 0)
	for _, t := range m.byID {
		if t.WorkspaceID == workspaceID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

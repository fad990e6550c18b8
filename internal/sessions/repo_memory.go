package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"callagent-platform/internal/outcome"
)

// MemoryStore is an in-memory session store for tests and early development.
// Update holds the store lock for the duration of fn, giving the same
// serialization the Postgres row lock provides.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]CallSession
	byProvID map[string]string // provider_call_id -> id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     map[string]CallSession{},
		byProvID: map[string]string{},
	}
}

func (m *MemoryStore) Create(ctx context.Context, s CallSession) error {
	if s.ID == "" || s.WorkspaceID == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ProviderCallID != "" {
		if _, exists := m.byProvID[s.ProviderCallID]; exists {
			return ErrDuplicateProviderCall
		}
	}
	m.byID[s.ID] = s
	if s.ProviderCallID != "" {
		m.byProvID[s.ProviderCallID] = s.ID
	}
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, workspaceID, id string) (CallSession, error) {
	if workspaceID == "" || id == "" {
		return CallSession{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || s.WorkspaceID != workspaceID {
		return CallSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) GetByProviderCallID(ctx context.Context, providerCallID string) (CallSession, error) {
	if providerCallID == "" {
		return CallSession{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byProvID[providerCallID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (CallSession, error) {
	if id == "" {
		return CallSession{}, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	changed, err := fn(&s)
	if err != nil {
		return CallSession{}, err
	}
	if changed {
		m.byID[id] = s
		if s.ProviderCallID != "" {
			m.byProvID[s.ProviderCallID] = s.ID
		}
	}
	return s, nil
}

func (m *MemoryStore) ListDuePolls(ctx context.Context, now time.Time, limit int) ([]CallSession, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallSession, 0)
	for _, s := range m.byID {
		if s.NextPollAt == nil || s.NextPollAt.After(now) {
			continue
		}
		live := s.Status == StatusQueued || s.Status == StatusOngoing
		if !live && s.Outcome != outcome.Unknown {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextPollAt.Before(*out[j].NextPollAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) List(ctx context.Context, workspaceID string, from, to time.Time, limit int) ([]CallSession, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallSession, 0)
	for _, s := range m.byID {
		if s.WorkspaceID != workspaceID {
			continue
		}
		if !s.CreatedAt.IsZero() {
			if s.CreatedAt.Before(from) || !s.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

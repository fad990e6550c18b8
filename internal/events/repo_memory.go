package events

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory event store for tests and early development.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{} // provider_call_id|event_type|digest
	log  []ProviderEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: map[string]struct{}{}}
}

func (m *MemoryStore) Record(ctx context.Context, e ProviderEvent) (bool, error) {
	if e.ID == "" || e.ProviderCallID == "" || e.Type == "" || e.Digest == "" {
		return false, ErrInvalidEvent
	}
	key := e.ProviderCallID + "|" + string(e.Type) + "|" + e.Digest
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[key]; dup {
		return false, nil
	}
	m.seen[key] = struct{}{}
	m.log = append(m.log, e)
	return true, nil
}

// Events returns a copy of the recorded log.
func (m *MemoryStore) Events() []ProviderEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ProviderEvent, len(m.log))
	copy(out, m.log)
	return out
}

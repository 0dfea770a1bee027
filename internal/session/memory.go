package session

import (
	"sync"

	"alertsync/internal/alerts"
)

// MemoryStore keeps the session in memory only. Useful for tests and
// ephemeral runs. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	current *alerts.Session
}

var _ alerts.SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get() (*alerts.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.current), nil
}

func (m *MemoryStore) Replace(s *alerts.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = clone(s)
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

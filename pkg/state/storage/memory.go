package storage

import (
	"context"
	"sync"
	"time"

	"github.com/securecheckio/rules-engine/pkg/state"
)

// MemoryStore is an in-memory state.Provider for tests and single-process
// deployments. Expired records are dropped on read.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*state.ConversationState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*state.ConversationState)}
}

// Get returns the stored state for the tuple, or (nil, nil) when absent
// or expired.
func (m *MemoryStore) Get(_ context.Context, t state.Tuple) (*state.ConversationState, error) {
	m.mu.RLock()
	s, ok := m.states[t.Key()]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if s.Expired(time.Now()) {
		m.mu.Lock()
		delete(m.states, t.Key())
		m.mu.Unlock()
		return nil, nil
	}
	return s.Clone(), nil
}

// Save stores or replaces the state record.
func (m *MemoryStore) Save(_ context.Context, s *state.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.ID] = s.Clone()
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

package session

import (
	"context"
	"sync"

	"github.com/ayusman/asana/internal/game"
)

// MemoryStore keeps states in process memory. It only works when every frame of
// a connection is handled by the same process.
type MemoryStore struct {
	mu      sync.RWMutex
	states  map[string]game.State
	tracker *game.Tracker
}

// NewMemoryStore creates a MemoryStore; tracker supplies default states.
func NewMemoryStore(tracker *game.Tracker) *MemoryStore {
	return &MemoryStore{
		states:  make(map[string]game.State),
		tracker: tracker,
	}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, connID string) (game.State, error) {
	m.mu.RLock()
	s, ok := m.states[connID]
	m.mu.RUnlock()
	if !ok {
		return m.tracker.Start(), nil
	}
	return s, nil
}

// Set implements Store.
func (m *MemoryStore) Set(ctx context.Context, connID string, state game.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[connID] = state
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, connID)
	return nil
}

// Len returns the number of stored states.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

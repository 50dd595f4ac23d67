package taskqueue

import (
	"context"
	"encoding/json"
	"sync"
)

// Store persists finished task results by task key so identical
// computations are reused across restarts.
type Store interface {
	LoadResult(ctx context.Context, key string) (json.RawMessage, bool, error)
	SaveResult(ctx context.Context, key, name string, value json.RawMessage) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]json.RawMessage
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]json.RawMessage)}
}

// LoadResult returns a stored result.
func (m *MemoryStore) LoadResult(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.results[key]
	return v, ok, nil
}

// SaveResult stores a result.
func (m *MemoryStore) SaveResult(_ context.Context, key, _ string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = value
	return nil
}

// Len returns the number of stored results.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}

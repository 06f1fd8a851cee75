package session

import (
	"context"
	"sync"
)

// Storage is the browser-session scoped key/value area that backs a Token Store.
// One Storage value addresses exactly one browser session.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// SetAll overwrites every given key in one write.
	SetAll(ctx context.Context, values map[string]string) error
	// Clear removes every key of the scope in one operation.
	Clear(ctx context.Context) error
}

// Change describes a mutation made through another handle on the same scope.
type Change struct {
	Key     string `json:"key,omitempty"`
	Cleared bool   `json:"cleared,omitempty"`
}

// Watcher is implemented by storages that can report changes made by other
// handles. A handle is never notified of its own writes.
type Watcher interface {
	Watch(ctx context.Context, fn func(Change)) (stop func(), err error)
}

// MemoryStorage keeps one browser session's keys in process memory.
// It has no other handles, so it never reports changes.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) SetAll(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context) error {
	m.mu.Lock()
	m.values = make(map[string]string)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

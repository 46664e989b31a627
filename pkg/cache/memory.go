package cache

import (
	"sync"
	"time"
)

// Memory is an in-process Cache with the same lazy-expiry semantics as the
// sqlite store. It backs the "memory" storage type and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]byte
	closed  bool
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

// Save implements Cache.
func (m *Memory) Save(key string, value any) error {
	payload, err := seal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[key] = payload
	return nil
}

// Load implements Cache.
func (m *Memory) Load(key string, validity time.Duration, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	payload, found := m.entries[key]
	if !found {
		return false, nil
	}
	if !open(payload, validity, out) {
		delete(m.entries, key)
		return false, nil
	}
	return true, nil
}

// Delete implements Cache.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.entries, key)
	return nil
}

// Close implements Cache. Further operations return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

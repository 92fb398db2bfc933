package store

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Repository, used in tests and when
// STORE_BACKEND=memory.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	saves map[string]int
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string][]byte),
		saves: make(map[string]int),
	}
}

func (m *MemoryStore) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[name]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.docs[name] = buf
	m.saves[name]++
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, name)
	return nil
}

// SaveCount returns how many times name has been saved.
func (m *MemoryStore) SaveCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves[name]
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

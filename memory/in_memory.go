package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/hupe1980/rare/core"
)

// InMemoryStore is a naive process-local PersistenceStore keeping copies of
// the saved blobs in a map.
//
// Concurrency: protected by RWMutex.
// Durability: none; contents vanish with the process. Suitable for tests,
// demos and hosts that do not need memory to survive restarts.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	saves int
}

// NewInMemoryStore creates a new in-memory persistence store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string][]byte)}
}

// Load returns a copy of the blob stored under key, or (nil, nil) when the
// key does not exist.
func (m *InMemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(blob), nil
}

// Save stores a copy of blob under key, replacing any previous value.
func (m *InMemoryStore) Save(ctx context.Context, key string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = slices.Clone(blob)
	m.saves++
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (m *InMemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Keys returns the stored keys in lexical order.
func (m *InMemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Saves returns how many successful Save calls were made.
func (m *InMemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

var _ core.PersistenceStore = (*InMemoryStore)(nil)

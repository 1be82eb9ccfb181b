package assetcache

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store for tests and for embedding the engine
// without a disk cache. Safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string][]byte)}
}

// Get returns the cached bytes for url, or ErrMiss if absent.
func (s *MemStore) Get(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.entries[url]
	if !ok {
		return nil, ErrMiss
	}
	// Copy so callers cannot mutate the stored blob.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores data under url.
func (s *MemStore) Put(ctx context.Context, url string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.entries[url] = stored
	return nil
}

// Len returns the number of entries.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Verify interface implementation at compile time
var _ Store = (*MemStore)(nil)

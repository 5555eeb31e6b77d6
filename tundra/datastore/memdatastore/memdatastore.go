// Package memdatastore is an in-process tundra.Datastore backed by a
// plain map, for tests and single-process deployments.
package memdatastore

import (
	"context"
	"fmt"
	"sync"
)

// Store is an in-memory tundra.Datastore.
type Store struct {
	mu   sync.RWMutex
	blob map[string][]byte
}

// New constructs an empty Store.
func New() *Store {
	return &Store{blob: make(map[string][]byte)}
}

func (s *Store) Put(ctx context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.blob[key] = cp
	return nil
}

func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blob[key]
	if !ok {
		return nil, fmt.Errorf("memdatastore: key %q not found", key)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

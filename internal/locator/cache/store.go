// Package cache maps normalized locators to the local working copies they
// were cloned into. Mappings are kept in three partitions, one per
// locator partition, and each key may map to several paths.
package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/dshills/docsync/internal/locator"
)

// Store persists the locator to path mapping.
type Store interface {
	// Get returns the paths recorded for key, or nil.
	Get(ctx context.Context, p locator.Partition, key string) ([]string, error)

	// Put replaces the paths recorded for key. An empty list removes key.
	Put(ctx context.Context, p locator.Partition, key string, paths []string) error

	// Keys lists the keys of a partition in sorted order.
	Keys(ctx context.Context, p locator.Partition) ([]string, error)

	// Close releases the store.
	Close() error
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu   sync.RWMutex
	data map[locator.Partition]map[string][]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[locator.Partition]map[string][]string)}
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, p locator.Partition, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := s.data[p][key]
	if paths == nil {
		return nil, nil
	}
	return append([]string(nil), paths...), nil
}

// Put implements Store.
func (s *MemStore) Put(_ context.Context, p locator.Partition, key string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(paths) == 0 {
		delete(s.data[p], key)
		return nil
	}
	part, ok := s.data[p]
	if !ok {
		part = make(map[string][]string)
		s.data[p] = part
	}
	part[key] = append([]string(nil), paths...)
	return nil
}

// Keys implements Store.
func (s *MemStore) Keys(_ context.Context, p locator.Partition) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data[p]))
	for k := range s.data[p] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Store.
func (s *MemStore) Close() error {
	return nil
}

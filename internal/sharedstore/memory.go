package sharedstore

import (
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It is not shared with any other
// process; the extension falls back to it when no container is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]bool
	opts   options
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		values: make(map[string]bool),
		opts:   buildOptions(opts),
	}
}

func (s *MemoryStore) GetBool(key string) bool {
	v, _ := s.LookupBool(key)
	return v
}

func (s *MemoryStore) LookupBool(key string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) SetBool(key string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *MemoryStore) SetBools(values map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *MemoryStore) ClearAllSharedData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}

func (s *MemoryStore) Close() error {
	return nil
}

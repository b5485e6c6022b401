package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data       []byte
	generation int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Get returns the object's data and current generation.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return append([]byte{}, obj.data...), obj.generation, nil
}

// Put writes unconditionally.
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.objects[key].generation + 1
	s.objects[key] = memoryObject{data: append([]byte{}, data...), generation: gen}
	return gen, nil
}

// PutIfGenerationMatch writes only when the stored generation equals gen.
func (s *MemoryStore) PutIfGenerationMatch(ctx context.Context, key string, data []byte, gen int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[key]
	if gen == 0 {
		if exists {
			return 0, ErrGenerationMismatch
		}
	} else if !exists || obj.generation != gen {
		return 0, ErrGenerationMismatch
	}

	next := obj.generation + 1
	s.objects[key] = memoryObject{data: append([]byte{}, data...), generation: next}
	return next, nil
}

// Delete removes the object.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// List returns all keys with the given prefix, sorted.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := []string{}
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

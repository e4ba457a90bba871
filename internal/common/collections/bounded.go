// Package collections provides bounded insertion-ordered sets and maps used to
// remember recently finished work without unbounded growth.
//
// Both structures evict strictly by insertion order. Lookups never touch the
// eviction order: only Peek/Contains are used on the backing cache, and an
// existing key is never re-added.
package collections

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// BoundedSet remembers the most recently added N keys.
type BoundedSet[K comparable] struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewBoundedSet[K comparable](size int) *BoundedSet[K] {
	cache, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &BoundedSet[K]{cache: cache}
}

// Add inserts the key unless already present. Returns true if the key was added.
func (s *BoundedSet[K]) Add(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(key) {
		return false
	}
	s.cache.Add(key, struct{}{})
	return true
}

func (s *BoundedSet[K]) Contains(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Contains(key)
}

func (s *BoundedSet[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// BoundedMap remembers the most recently inserted N key/value pairs.
type BoundedMap[K comparable, V any] struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func NewBoundedMap[K comparable, V any](size int) *BoundedMap[K, V] {
	cache, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &BoundedMap[K, V]{cache: cache}
}

// PutIfAbsent stores the value unless the key is already present.
// Returns the value now associated with the key and whether it was already there.
func (m *BoundedMap[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.cache.Peek(key); ok {
		return existing.(V), true
	}
	m.cache.Add(key, value)
	return value, false
}

func (m *BoundedMap[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.cache.Peek(key); ok {
		return v.(V), true
	}
	var zero V
	return zero, false
}

func (m *BoundedMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

package collections

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundedSet_EvictsByInsertionOrder(t *testing.T) {
	s := NewBoundedSet[int](3)

	assert.True(t, s.Add(1))
	assert.True(t, s.Add(2))
	assert.True(t, s.Add(3))
	assert.True(t, s.Add(4))

	assert.False(t, s.Contains(1))
	assert.True(t, s.Contains(2))
	assert.True(t, s.Contains(3))
	assert.True(t, s.Contains(4))
	assert.Equal(t, 3, s.Len())
}

func TestBoundedSet_DuplicateAddDoesNotReorder(t *testing.T) {
	s := NewBoundedSet[int](3)
	s.Add(1)
	s.Add(2)
	s.Add(3)

	// Re-adding must not refresh key 1's position.
	assert.False(t, s.Add(1))
	s.Add(4)

	assert.False(t, s.Contains(1))
	assert.True(t, s.Contains(2))
}

func TestBoundedSet_LookupDoesNotReorder(t *testing.T) {
	s := NewBoundedSet[int](3)
	s.Add(1)
	s.Add(2)
	s.Add(3)

	// Reading key 1 must not save it from eviction.
	assert.True(t, s.Contains(1))
	s.Add(4)

	assert.False(t, s.Contains(1))
}

func TestBoundedMap_PutIfAbsent(t *testing.T) {
	m := NewBoundedMap[string, bool](2)

	v, existed := m.PutIfAbsent("a", true)
	assert.False(t, existed)
	assert.True(t, v)

	v, existed = m.PutIfAbsent("a", false)
	assert.True(t, existed)
	assert.True(t, v, "first value wins")

	m.PutIfAbsent("b", false)
	m.PutIfAbsent("c", false)

	_, ok := m.Get("a")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = m.Get("b")
	assert.True(t, ok)
}

func TestBoundedMap_ManyInsertions(t *testing.T) {
	m := NewBoundedMap[string, int](128)
	for i := 0; i < 1000; i++ {
		m.PutIfAbsent(fmt.Sprintf("key-%d", i), i)
	}
	assert.Equal(t, 128, m.Len())
	_, ok := m.Get("key-999")
	assert.True(t, ok)
	_, ok = m.Get("key-0")
	assert.False(t, ok)
}

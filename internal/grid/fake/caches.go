package fake

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/grid"
)

// Partition is an in-memory cache partition with a settable state.
type Partition struct {
	mu       sync.Mutex
	state    grid.PartitionState
	reserves atomic.Int64
}

func NewPartition(state grid.PartitionState) *Partition {
	return &Partition{state: state}
}

func (p *Partition) SetState(state grid.PartitionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func (p *Partition) State() grid.PartitionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Partition) Reserve() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != grid.PartitionOwning {
		return false
	}
	p.reserves.Add(1)
	return true
}

func (p *Partition) Release() {
	p.reserves.Add(-1)
}

// Reserves returns the current reservation count.
func (p *Partition) Reserves() int64 {
	return p.reserves.Load()
}

// Cache is an in-memory CacheContext.
type Cache struct {
	CacheName  string
	IsStarted  bool
	Rebalance  bool
	IsReplic   bool
	Primary    uuid.UUID
	Partitions map[int]*Partition
}

func NewCache(name string, primary uuid.UUID) *Cache {
	return &Cache{
		CacheName:  name,
		IsStarted:  true,
		Rebalance:  true,
		Primary:    primary,
		Partitions: map[int]*Partition{},
	}
}

func (c *Cache) Name() string { return c.CacheName }

func (c *Cache) Started() bool { return c.IsStarted }

func (c *Cache) RebalanceEnabled() bool { return c.Rebalance }

func (c *Cache) Replicated() bool { return c.IsReplic }

func (c *Cache) LocalPartition(partID int, _ int64) grid.Partition {
	if p, ok := c.Partitions[partID]; ok {
		return p
	}
	return nil
}

func (c *Cache) PrimaryByPartition(int, int64) uuid.UUID {
	return c.Primary
}

// CacheRegistry resolves fake caches by id.
type CacheRegistry struct {
	mu     sync.Mutex
	caches map[int]*Cache
}

func NewCacheRegistry() *CacheRegistry {
	return &CacheRegistry{caches: map[int]*Cache{}}
}

func (r *CacheRegistry) Add(cacheID int, cache *Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches[cacheID] = cache
}

func (r *CacheRegistry) CacheContext(cacheID int) grid.CacheContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.caches[cacheID]; ok {
		return c
	}
	return nil
}

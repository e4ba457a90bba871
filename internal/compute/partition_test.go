package compute

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embergridproject/embergrid/internal/grid"
	"github.com/embergridproject/embergrid/internal/grid/fake"
)

func TestPartitionsReservation_AllOwning(t *testing.T) {
	localID := uuid.New()
	caches := fake.NewCacheRegistry()

	parts := make([]*fake.Partition, 2)
	for i := range parts {
		parts[i] = fake.NewPartition(grid.PartitionOwning)
		cache := fake.NewCache("c", localID)
		cache.Partitions[5] = parts[i]
		caches.Add(i+1, cache)
	}

	res := NewPartitionsReservation(caches, localID, []int{1, 2}, 5, 1)

	ok, err := res.Reserve()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), parts[0].Reserves())
	assert.Equal(t, int64(1), parts[1].Reserves())

	res.Release()
	assert.Equal(t, int64(0), parts[0].Reserves())
	assert.Equal(t, int64(0), parts[1].Reserves())
}

func TestPartitionsReservation_CacheMissing(t *testing.T) {
	res := NewPartitionsReservation(fake.NewCacheRegistry(), uuid.New(), []int{1}, 5, 1)

	ok, err := res.Reserve()
	require.NoError(t, err, "a not yet deployed cache is a plain refusal")
	assert.False(t, ok)
}

func TestPartitionsReservation_CacheNotStarted(t *testing.T) {
	localID := uuid.New()
	caches := fake.NewCacheRegistry()
	cache := fake.NewCache("c", localID)
	cache.IsStarted = false
	caches.Add(1, cache)

	res := NewPartitionsReservation(caches, localID, []int{1}, 5, 1)

	ok, err := res.Reserve()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPartitionsReservation_LostPrimary(t *testing.T) {
	localID := uuid.New()
	caches := fake.NewCacheRegistry()
	cache := fake.NewCache("orders", uuid.New()) // primary is another node
	cache.Partitions[5] = fake.NewPartition(grid.PartitionMoving)
	caches.Add(1, cache)

	res := NewPartitionsReservation(caches, localID, []int{1}, 5, 1)

	ok, err := res.Reserve()
	assert.False(t, ok)

	var lost *PartitionsLostError
	require.ErrorAs(t, err, &lost)
	assert.Equal(t, "orders", lost.CacheName)
	assert.Equal(t, 5, lost.PartitionID)
}

func TestPartitionsReservation_StillPrimaryRefusal(t *testing.T) {
	localID := uuid.New()
	caches := fake.NewCacheRegistry()
	cache := fake.NewCache("orders", localID) // still primary here
	cache.Partitions[5] = fake.NewPartition(grid.PartitionMoving)
	caches.Add(1, cache)

	res := NewPartitionsReservation(caches, localID, []int{1}, 5, 1)

	ok, err := res.Reserve()
	require.NoError(t, err, "refusal without losing primary is not an error")
	assert.False(t, ok)
}

func TestPartitionsReservation_PartialRollback(t *testing.T) {
	localID := uuid.New()
	caches := fake.NewCacheRegistry()

	good := fake.NewPartition(grid.PartitionOwning)
	goodCache := fake.NewCache("a", localID)
	goodCache.Partitions[5] = good
	caches.Add(1, goodCache)

	badCache := fake.NewCache("b", localID)
	badCache.Partitions[5] = fake.NewPartition(grid.PartitionRenting)
	caches.Add(2, badCache)

	res := NewPartitionsReservation(caches, localID, []int{1, 2}, 5, 1)

	ok, err := res.Reserve()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), good.Reserves(), "earlier reservations rolled back")
}

func TestPartitionsReservation_RebalanceDisabledSkips(t *testing.T) {
	localID := uuid.New()
	caches := fake.NewCacheRegistry()
	cache := fake.NewCache("static", localID)
	cache.Rebalance = false
	caches.Add(1, cache)

	res := NewPartitionsReservation(caches, localID, []int{1}, 5, 1)

	ok, err := res.Reserve()
	require.NoError(t, err)
	assert.True(t, ok, "caches without rebalancing need no reservation")
}

package checkpoint

import "sync"

// PartitionDestroyRequest is one pending partition destruction, completed by
// the checkpointer once the partition data is gone.
type PartitionDestroyRequest struct {
	CacheID     int
	PartitionID int

	done *Future
}

// Done returns a future resolving when the destruction has been performed or
// the request was cancelled.
func (r *PartitionDestroyRequest) Done() *Future {
	return r.done
}

type destroyKey struct {
	cacheID     int
	partitionID int
}

// PartitionDestroyQueue collects partitions scheduled for destruction within
// one checkpoint. Requests drain in insertion order.
type PartitionDestroyQueue struct {
	mu      sync.Mutex
	pending map[destroyKey]*PartitionDestroyRequest
	order   []destroyKey
}

func NewPartitionDestroyQueue() *PartitionDestroyQueue {
	return &PartitionDestroyQueue{pending: map[destroyKey]*PartitionDestroyRequest{}}
}

// Add schedules a partition for destruction. Re-adding a pending pair returns
// the existing request.
func (q *PartitionDestroyQueue) Add(cacheID, partitionID int) *PartitionDestroyRequest {
	key := destroyKey{cacheID: cacheID, partitionID: partitionID}

	q.mu.Lock()
	defer q.mu.Unlock()
	if req, ok := q.pending[key]; ok {
		return req
	}
	req := &PartitionDestroyRequest{CacheID: cacheID, PartitionID: partitionID, done: newFuture()}
	q.pending[key] = req
	q.order = append(q.order, key)
	return req
}

// Cancel withdraws a pending destruction. Returns true if the request was
// still pending; its future completes successfully.
func (q *PartitionDestroyQueue) Cancel(cacheID, partitionID int) bool {
	key := destroyKey{cacheID: cacheID, partitionID: partitionID}

	q.mu.Lock()
	req, ok := q.pending[key]
	delete(q.pending, key)
	q.mu.Unlock()

	if ok {
		req.done.complete(nil)
	}
	return ok
}

// DrainAll removes and returns all pending requests in insertion order.
func (q *PartitionDestroyQueue) DrainAll() []*PartitionDestroyRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*PartitionDestroyRequest, 0, len(q.pending))
	for _, key := range q.order {
		if req, ok := q.pending[key]; ok {
			out = append(out, req)
			delete(q.pending, key)
		}
	}
	q.order = q.order[:0]
	return out
}

// Len returns the number of pending requests.
func (q *PartitionDestroyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

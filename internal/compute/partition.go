package compute

import (
	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/grid"
)

// PartitionsReservation pins the cache partitions a job depends on for the
// duration of its execution.
//
// Reserve walks the cache ids; every partition must be in OWNING state and
// reservable. On any failure already-taken reservations are released. A
// failure on a partition this node is no longer primary for is reported as a
// PartitionsLostError rather than a plain refusal, so the originator can fail
// the job over.
type PartitionsReservation struct {
	caches      grid.CacheRegistry
	localNodeID uuid.UUID

	cacheIDs []int
	partID   int
	topVer   int64

	partitions []grid.Partition
}

func NewPartitionsReservation(caches grid.CacheRegistry, localNodeID uuid.UUID,
	cacheIDs []int, partID int, topVer int64,
) *PartitionsReservation {
	return &PartitionsReservation{
		caches:      caches,
		localNodeID: localNodeID,
		cacheIDs:    cacheIDs,
		partID:      partID,
		topVer:      topVer,
		partitions:  make([]grid.Partition, len(cacheIDs)),
	}
}

func (r *PartitionsReservation) CacheIDs() []int { return r.cacheIDs }

func (r *PartitionsReservation) PartitionID() int { return r.partID }

// Reserve pins all partitions. Returns false when the job cannot run here;
// the error is non-nil when this node additionally lost primary ownership.
func (r *PartitionsReservation) Reserve() (bool, error) {
	for i, cacheID := range r.cacheIDs {
		cctx := r.caches.CacheContext(cacheID)

		// Cache not found or not started yet: refuse without an error.
		if cctx == nil || !cctx.Started() {
			r.Release()
			return false, nil
		}

		if !cctx.RebalanceEnabled() {
			continue
		}

		part := cctx.LocalPartition(r.partID, r.topVer)

		if cctx.Replicated() {
			// Replicated partitions are checked for OWNING state up front;
			// they are then reserved below like any other partition.
			if part == nil || part.State() != grid.PartitionOwning {
				return false, r.failed(cctx)
			}
		}

		if part == nil || part.State() != grid.PartitionOwning || !part.Reserve() {
			return false, r.failed(cctx)
		}

		r.partitions[i] = part

		// Double check the partition was not cleared between the state read
		// and the reservation.
		if part.State() != grid.PartitionOwning {
			return false, r.failed(cctx)
		}
	}

	return true, nil
}

// failed releases partial reservations and classifies the refusal: losing
// primary ownership of the partition is an error that must cascade out of the
// worker.
func (r *PartitionsReservation) failed(cctx grid.CacheContext) error {
	r.Release()

	if cctx.PrimaryByPartition(r.partID, r.topVer) != r.localNodeID {
		return &PartitionsLostError{
			CacheName:       cctx.Name(),
			PartitionID:     r.partID,
			NodeID:          r.localNodeID,
			TopologyVersion: r.topVer,
		}
	}
	return nil
}

// Release unpins all partitions reserved so far.
func (r *PartitionsReservation) Release() {
	for i, part := range r.partitions {
		if part == nil {
			// Slot of a skipped or not yet reserved cache.
			continue
		}
		part.Release()
		r.partitions[i] = nil
	}
}

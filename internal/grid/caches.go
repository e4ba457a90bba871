package grid

import "github.com/google/uuid"

// PartitionState is the lifecycle state of a local cache partition.
type PartitionState int

const (
	PartitionMoving PartitionState = iota
	PartitionOwning
	PartitionRenting
	PartitionEvicted
)

func (s PartitionState) String() string {
	switch s {
	case PartitionMoving:
		return "MOVING"
	case PartitionOwning:
		return "OWNING"
	case PartitionRenting:
		return "RENTING"
	case PartitionEvicted:
		return "EVICTED"
	default:
		return "UNKNOWN"
	}
}

// Partition is a locally held cache partition that can be pinned against
// eviction for the duration of a job.
type Partition interface {
	State() PartitionState
	// Reserve pins the partition. Returns false if the partition is being
	// evicted; every successful Reserve must be paired with one Release.
	Reserve() bool
	Release()
}

// CacheContext exposes the partition topology of one started cache.
type CacheContext interface {
	Name() string
	Started() bool
	RebalanceEnabled() bool
	Replicated() bool
	// LocalPartition returns the local partition for the given topology
	// version, or nil if this node does not hold it.
	LocalPartition(partID int, topVer int64) Partition
	// PrimaryByPartition returns the id of the primary node for the partition.
	PrimaryByPartition(partID int, topVer int64) uuid.UUID
}

// CacheRegistry resolves cache contexts by cache id. A nil context means the
// cache is not deployed on this node (yet).
type CacheRegistry interface {
	CacheContext(cacheID int) CacheContext
}

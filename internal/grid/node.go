// Package grid defines the collaborator surfaces the compute and persistence
// cores consume from the hosting data-grid node: cluster membership, messaging,
// code deployment, marshalling, timeouts and distributed configuration.
// Implementations are supplied by the host; the fake subpackage provides
// in-memory versions for tests and the single-node binary.
package grid

import "github.com/google/uuid"

// Node is a member of the grid as seen by local components.
type Node struct {
	ID uuid.UUID
	// Order is the topology join order, used to derive topology versions.
	Order int64
	// Addr is an opaque address string, informational only.
	Addr string
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.ID.String()
}

package grid

import "github.com/google/uuid"

type EventType int

const (
	EventNodeLeft EventType = iota
	EventNodeFailed
	EventNodeMetricsUpdated
)

func (t EventType) String() string {
	switch t {
	case EventNodeLeft:
		return "NODE_LEFT"
	case EventNodeFailed:
		return "NODE_FAILED"
	case EventNodeMetricsUpdated:
		return "NODE_METRICS_UPDATED"
	default:
		return "UNKNOWN"
	}
}

// Event is a local cluster event delivered to registered listeners.
type Event struct {
	Type EventType
	Node *Node
}

type EventListener interface {
	OnEvent(event Event)
}

// Cluster provides node presence and liveness as maintained by the host's
// discovery layer. Listeners are invoked on the discovery thread and must not
// block.
type Cluster interface {
	LocalNode() *Node
	// Node returns the node with the given id, or nil if it is not present.
	Node(id uuid.UUID) *Node
	// Alive reports whether the node is present in the current topology.
	Alive(id uuid.UUID) bool
	// Ping checks node liveness without returning an error.
	Ping(id uuid.UUID) bool
	// Size returns the number of nodes in the current topology.
	Size() int
	AddEventListener(listener EventListener, types ...EventType)
	RemoveEventListener(listener EventListener)
}

// Package fake provides in-memory implementations of the grid collaborator
// interfaces for tests and the single-node binary.
package fake

import (
	"sync"

	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/grid"
)

type Cluster struct {
	mu        sync.Mutex
	local     *grid.Node
	nodes     map[uuid.UUID]*grid.Node
	listeners map[grid.EventListener][]grid.EventType
	nextOrder int64
}

func NewCluster() *Cluster {
	c := &Cluster{
		nodes:     map[uuid.UUID]*grid.Node{},
		listeners: map[grid.EventListener][]grid.EventType{},
	}
	c.local = c.AddNode()
	return c
}

func (c *Cluster) AddNode() *grid.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextOrder++
	node := &grid.Node{ID: uuid.New(), Order: c.nextOrder}
	c.nodes[node.ID] = node
	return node
}

// RemoveNode drops the node from the topology and fires a leave or fail event.
func (c *Cluster) RemoveNode(id uuid.UUID, failed bool) {
	c.mu.Lock()
	node, ok := c.nodes[id]
	delete(c.nodes, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	eventType := grid.EventNodeLeft
	if failed {
		eventType = grid.EventNodeFailed
	}
	c.fire(grid.Event{Type: eventType, Node: node})
}

// TriggerMetricsUpdated fires a metrics-updated event for the given node.
func (c *Cluster) TriggerMetricsUpdated(id uuid.UUID) {
	c.mu.Lock()
	node := c.nodes[id]
	c.mu.Unlock()
	if node == nil {
		return
	}
	c.fire(grid.Event{Type: grid.EventNodeMetricsUpdated, Node: node})
}

func (c *Cluster) fire(event grid.Event) {
	c.mu.Lock()
	targets := make([]grid.EventListener, 0, len(c.listeners))
	for listener, types := range c.listeners {
		for _, t := range types {
			if t == event.Type {
				targets = append(targets, listener)
				break
			}
		}
	}
	c.mu.Unlock()
	for _, listener := range targets {
		listener.OnEvent(event)
	}
}

func (c *Cluster) LocalNode() *grid.Node {
	return c.local
}

func (c *Cluster) Node(id uuid.UUID) *grid.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[id]
}

func (c *Cluster) Alive(id uuid.UUID) bool {
	return c.Node(id) != nil
}

func (c *Cluster) Ping(id uuid.UUID) bool {
	return c.Alive(id)
}

func (c *Cluster) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

func (c *Cluster) AddEventListener(listener grid.EventListener, types ...grid.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[listener] = types
}

func (c *Cluster) RemoveEventListener(listener grid.EventListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, listener)
}

package grid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topic identifies a logical message channel between nodes.
type Topic string

// Well-known topics. Per-job and per-request topics are derived with Sub.
const (
	TopicJob         Topic = "JOB"
	TopicJobCancel   Topic = "JOB_CANCEL"
	TopicJobSiblings Topic = "JOB_SIBLINGS"
	TopicTask        Topic = "TASK"
)

// Sub derives a child topic scoped by the given parts.
func (t Topic) Sub(parts ...interface{}) Topic {
	sub := string(t)
	for _, p := range parts {
		sub += fmt.Sprintf("/%v", p)
	}
	return Topic(sub)
}

// Pools the messenger may process inbound messages on.
const (
	SystemPool     = "system"
	ManagementPool = "management"
)

type MessageListener interface {
	OnMessage(nodeID uuid.UUID, msg interface{})
}

// Messenger is the ordered point-to-point transport supplied by the host.
// SendOrdered guarantees per (source, destination, topic) delivery order.
type Messenger interface {
	AddListener(topic Topic, listener MessageListener)
	RemoveListener(topic Topic, listener MessageListener)

	SendUnordered(node *Node, topic Topic, msg interface{}, pool string) error
	SendOrdered(node *Node, topic Topic, msg interface{}, pool string, timeout time.Duration) error
	// SendToGridTopic sends an unordered message to a well-known topic.
	SendToGridTopic(node *Node, topic Topic, msg interface{}, pool string) error
}

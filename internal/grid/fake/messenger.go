package fake

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/grid"
)

// SentMessage records one outbound message for test assertions.
type SentMessage struct {
	Node    *grid.Node
	Topic   grid.Topic
	Msg     interface{}
	Pool    string
	Ordered bool
}

// Messenger is an in-process message bus. Sends are delivered synchronously to
// listeners registered on the destination topic and recorded for inspection.
// Ordered and unordered sends are equivalent in process.
type Messenger struct {
	mu        sync.Mutex
	localID   uuid.UUID
	listeners map[grid.Topic][]grid.MessageListener
	sent      []SentMessage
}

func NewMessenger(localID uuid.UUID) *Messenger {
	return &Messenger{
		localID:   localID,
		listeners: map[grid.Topic][]grid.MessageListener{},
	}
}

func (m *Messenger) AddListener(topic grid.Topic, listener grid.MessageListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[topic] = append(m.listeners[topic], listener)
}

func (m *Messenger) RemoveListener(topic grid.Topic, listener grid.MessageListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining := m.listeners[topic][:0]
	for _, l := range m.listeners[topic] {
		if l != listener {
			remaining = append(remaining, l)
		}
	}
	if len(remaining) == 0 {
		delete(m.listeners, topic)
	} else {
		m.listeners[topic] = remaining
	}
}

// Deliver injects a message as if it arrived from the given node.
func (m *Messenger) Deliver(fromID uuid.UUID, topic grid.Topic, msg interface{}) {
	m.mu.Lock()
	targets := append([]grid.MessageListener(nil), m.listeners[topic]...)
	m.mu.Unlock()
	for _, listener := range targets {
		listener.OnMessage(fromID, msg)
	}
}

func (m *Messenger) SendUnordered(node *grid.Node, topic grid.Topic, msg interface{}, pool string) error {
	m.record(SentMessage{Node: node, Topic: topic, Msg: msg, Pool: pool})
	m.Deliver(m.localID, topic, msg)
	return nil
}

func (m *Messenger) SendOrdered(node *grid.Node, topic grid.Topic, msg interface{}, pool string, _ time.Duration) error {
	m.record(SentMessage{Node: node, Topic: topic, Msg: msg, Pool: pool, Ordered: true})
	m.Deliver(m.localID, topic, msg)
	return nil
}

func (m *Messenger) SendToGridTopic(node *grid.Node, topic grid.Topic, msg interface{}, pool string) error {
	return m.SendUnordered(node, topic, msg, pool)
}

// Sent returns a copy of all recorded sends.
func (m *Messenger) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// SentTo returns all recorded sends on the given topic.
func (m *Messenger) SentTo(topic grid.Topic) []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentMessage
	for _, s := range m.sent {
		if s.Topic == topic {
			out = append(out, s)
		}
	}
	return out
}

func (m *Messenger) record(s SentMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, s)
}

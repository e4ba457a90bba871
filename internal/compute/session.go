package compute

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/grid"
)

// TaskSession is the shared context of one task on this node: attributes,
// deadline and siblings. Multiple jobs of the same task share one session.
type TaskSession struct {
	ID              uuid.UUID
	TaskNodeID      uuid.UUID
	TaskName        string
	ClassName       string
	TopologyVersion int64
	StartTime       time.Time
	// EndTime is the task deadline; the zero value means no deadline.
	EndTime      time.Time
	FullSupport  bool
	Internal     bool
	ExecutorName string

	deployment grid.Deployment
	topology   NodePredicate

	mu       sync.Mutex
	siblings []JobSibling
	attrs    map[string]interface{}
	closed   bool
}

// HasDeadline reports whether the session carries a finite deadline.
func (s *TaskSession) HasDeadline() bool {
	return !s.EndTime.IsZero()
}

func (s *TaskSession) Deployment() grid.Deployment {
	return s.deployment
}

func (s *TaskSession) Topology() NodePredicate {
	return s.topology
}

// Attribute returns one session attribute.
func (s *TaskSession) Attribute(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Attributes returns a copy of all session attributes.
func (s *TaskSession) Attributes() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// setAttributesLocal merges attributes received from the task originator.
func (s *TaskSession) setAttributesLocal(attrs map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attrs == nil {
		s.attrs = map[string]interface{}{}
	}
	for k, v := range attrs {
		s.attrs[k] = v
	}
}

// Siblings returns the sibling list known to this node.
func (s *TaskSession) Siblings() []JobSibling {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]JobSibling(nil), s.siblings...)
}

func (s *TaskSession) setSiblings(siblings []JobSibling) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.siblings = siblings
}

func (s *TaskSession) onClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// JobSession is a job's view of its task session.
type JobSession struct {
	*TaskSession
	JobID uuid.UUID

	sched *Scheduler
}

// SetAttributes pushes attribute changes back to the task originator. Only
// valid for sessions with full support.
func (s *JobSession) SetAttributes(attrs map[string]interface{}) error {
	s.setAttributesLocal(attrs)
	return s.sched.SetSessionAttributes(s, attrs)
}

// RequestSiblings fetches the current sibling list from the task originator.
func (s *JobSession) RequestSiblings() ([]JobSibling, error) {
	return s.sched.RequestJobSiblings(s.TaskSession)
}

// sessionRegistry tracks task sessions shared by the jobs of one task,
// reference counted so the session closes when its last job finishes.
type sessionRegistry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*sessionEntry
}

type sessionEntry struct {
	ses  *TaskSession
	uses int
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{entries: map[uuid.UUID]*sessionEntry{}}
}

// Acquire returns the session with the given id, creating it from the
// template on first use.
func (r *sessionRegistry) Acquire(template *TaskSession) *TaskSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[template.ID]; ok {
		entry.uses++
		return entry.ses
	}
	r.entries[template.ID] = &sessionEntry{ses: template, uses: 1}
	return template
}

func (r *sessionRegistry) Get(id uuid.UUID) *TaskSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		return entry.ses
	}
	return nil
}

// Release drops one use of the session. Returns true when it was the last use
// and the session has been removed.
func (r *sessionRegistry) Release(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return false
	}
	entry.uses--
	if entry.uses > 0 {
		return false
	}
	delete(r.entries, id)
	return true
}

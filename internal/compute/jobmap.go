package compute

import (
	"container/list"
	"sync"

	"github.com/google/uuid"
)

// jobMap is a concurrent map of workers keyed by job id that preserves
// insertion order, so collision views and FIFO policies see jobs in arrival
// order.
type jobMap struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*list.Element
	order *list.List
}

func newJobMap() *jobMap {
	return &jobMap{
		jobs:  map[uuid.UUID]*list.Element{},
		order: list.New(),
	}
}

// Put inserts the worker, returning any worker previously mapped to the id.
func (m *jobMap) Put(w *Worker) *Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	var old *Worker
	if elem, ok := m.jobs[w.JobID()]; ok {
		old = elem.Value.(*Worker)
		m.order.Remove(elem)
	}
	m.jobs[w.JobID()] = m.order.PushBack(w)
	return old
}

// PutIfAbsent inserts the worker unless the id is already mapped, in which
// case the existing worker is returned.
func (m *jobMap) PutIfAbsent(w *Worker) *Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.jobs[w.JobID()]; ok {
		return elem.Value.(*Worker)
	}
	m.jobs[w.JobID()] = m.order.PushBack(w)
	return nil
}

func (m *jobMap) Get(id uuid.UUID) *Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.jobs[id]; ok {
		return elem.Value.(*Worker)
	}
	return nil
}

// Remove deletes the mapping only if it still points at the given worker.
func (m *jobMap) Remove(w *Worker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	elem, ok := m.jobs[w.JobID()]
	if !ok || elem.Value.(*Worker) != w {
		return false
	}
	delete(m.jobs, w.JobID())
	m.order.Remove(elem)
	return true
}

// Values returns a snapshot of the workers in insertion order.
func (m *jobMap) Values() []*Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Worker, 0, m.order.Len())
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*Worker))
	}
	return out
}

func (m *jobMap) Contains(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[id]
	return ok
}

func (m *jobMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

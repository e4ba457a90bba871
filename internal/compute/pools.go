package compute

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/embergridproject/embergrid/internal/compute/configuration"
)

// errPoolRejected is raised when a pool's queue is full or the pool has been
// stopped; the scheduler turns it into an ExecutionRejected reply.
var errPoolRejected = errors.New("execution rejected by worker pool")

// workerPool runs submitted functions on a fixed set of goroutines behind a
// bounded queue.
type workerPool struct {
	name  string
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newWorkerPool(cfg configuration.PoolConfiguration) *workerPool {
	p := &workerPool{
		name:  cfg.Name,
		tasks: make(chan func(), cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit queues the task. Fails with errPoolRejected when the queue is full
// or the pool is stopped.
func (p *workerPool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPoolRejected
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return errPoolRejected
	}
}

func (p *workerPool) stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// PoolManager owns the default executor pool and any named custom pools.
type PoolManager struct {
	defaultPool *workerPool
	custom      map[string]*workerPool
}

func NewPoolManager(cfgs []configuration.PoolConfiguration) *PoolManager {
	m := &PoolManager{custom: map[string]*workerPool{}}
	for _, cfg := range cfgs {
		pool := newWorkerPool(cfg)
		if cfg.Name == "" {
			m.defaultPool = pool
		} else {
			m.custom[cfg.Name] = pool
		}
	}
	if m.defaultPool == nil {
		defaultCfg := configuration.PoolConfiguration{
			Workers:   configuration.DefaultPoolWorkers,
			QueueSize: configuration.DefaultPoolQueueSize,
		}
		m.defaultPool = newWorkerPool(defaultCfg)
	}
	return m
}

// Submit runs the task on the named pool, falling back to the default pool
// when no such pool is configured.
func (m *PoolManager) Submit(executorName string, task func()) error {
	if executorName != "" {
		if pool, ok := m.custom[executorName]; ok {
			return pool.Submit(task)
		}
		log.Warnf("Custom executor doesn't exist (local job will be processed in default pool): %s", executorName)
	}
	return m.defaultPool.Submit(task)
}

// Stop drains all pools, waiting for queued tasks to complete.
func (m *PoolManager) Stop() {
	m.defaultPool.stop()
	for _, pool := range m.custom {
		pool.stop()
	}
}

package grid

import (
	"sync"
	"sync/atomic"
)

// LongProperty is a cluster-wide long value updatable at runtime.
type LongProperty interface {
	// Get returns the current value, or false if the property was never set.
	Get() (int64, bool)
	// GetOrDefault returns the current value, or dflt if the property was never set.
	GetOrDefault(dflt int64) int64
	AddListener(listener func(oldVal, newVal int64))
}

// DistributedConfig is the process-wide registry of distributed configuration
// properties. It is injected at construction rather than accessed as a singleton.
type DistributedConfig interface {
	RegisterLong(name string) LongProperty
}

// LocalConfig is a DistributedConfig whose values are set locally. It backs
// single-node deployments and tests; clustered hosts supply their own
// implementation propagating updates through the metastorage.
type LocalConfig struct {
	mu    sync.Mutex
	props map[string]*localLongProperty
}

func NewLocalConfig() *LocalConfig {
	return &LocalConfig{props: map[string]*localLongProperty{}}
}

func (c *LocalConfig) RegisterLong(name string) LongProperty {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.props[name]; ok {
		return p
	}
	p := &localLongProperty{}
	c.props[name] = p
	return p
}

// SetLong updates a property, notifying listeners.
func (c *LocalConfig) SetLong(name string, val int64) {
	p := c.RegisterLong(name).(*localLongProperty)
	p.set(val)
}

type localLongProperty struct {
	mu        sync.Mutex
	val       atomic.Int64
	present   atomic.Bool
	listeners []func(oldVal, newVal int64)
}

func (p *localLongProperty) Get() (int64, bool) {
	if !p.present.Load() {
		return 0, false
	}
	return p.val.Load(), true
}

func (p *localLongProperty) GetOrDefault(dflt int64) int64 {
	if v, ok := p.Get(); ok {
		return v
	}
	return dflt
}

func (p *localLongProperty) AddListener(listener func(oldVal, newVal int64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, listener)
}

func (p *localLongProperty) set(val int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.val.Load()
	p.val.Store(val)
	p.present.Store(true)
	for _, l := range p.listeners {
		l(old, val)
	}
}

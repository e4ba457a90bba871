package grid

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/common/util"
)

// TimeoutObject is registered with a TimeoutRegistry to receive a single
// OnTimeout callback when its end time passes.
type TimeoutObject interface {
	TimeoutID() uuid.UUID
	EndTime() time.Time
	OnTimeout()
}

type TimeoutRegistry interface {
	Add(obj TimeoutObject)
	Remove(obj TimeoutObject)
}

// TimeoutProcessor is a timer-backed TimeoutRegistry. OnTimeout fires on a
// dedicated timer goroutine; objects removed before expiry never fire.
type TimeoutProcessor struct {
	clock  util.Clock
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func NewTimeoutProcessor() *TimeoutProcessor {
	return &TimeoutProcessor{clock: &util.DefaultClock{}, timers: map[uuid.UUID]*time.Timer{}}
}

func (p *TimeoutProcessor) Add(obj TimeoutObject) {
	delay := obj.EndTime().Sub(p.clock.Now())
	if delay < 0 {
		delay = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.timers[obj.TimeoutID()]; ok {
		return
	}
	id := obj.TimeoutID()
	p.timers[id] = time.AfterFunc(delay, func() {
		p.mu.Lock()
		_, armed := p.timers[id]
		delete(p.timers, id)
		p.mu.Unlock()
		if armed {
			obj.OnTimeout()
		}
	})
}

func (p *TimeoutProcessor) Remove(obj TimeoutObject) {
	p.mu.Lock()
	timer, ok := p.timers[obj.TimeoutID()]
	delete(p.timers, obj.TimeoutID())
	p.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

// Stop cancels all pending timers.
func (p *TimeoutProcessor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, timer := range p.timers {
		timer.Stop()
		delete(p.timers, id)
	}
}

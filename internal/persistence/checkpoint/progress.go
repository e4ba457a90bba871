package checkpoint

import (
	"sync"
	"sync/atomic"
	"time"
)

// maxWakeupDelay bounds the scheduled delay so the nanosecond deadline cannot
// overflow.
const maxWakeupDelay = 365 * 24 * time.Hour

// Progress is the state of one scheduled or running checkpoint.
//
// Any goroutine may observe the state; the checkpointer advances it. The state
// only moves forward: an attempted transition to a lower state is a no-op.
type Progress struct {
	state atomic.Int32

	mu        sync.Mutex
	futures   [numStates]*Future
	failCause error
	reason    string

	destroyQueue *PartitionDestroyQueue

	nextWakeupNanos atomic.Int64

	currPagesCount atomic.Int64
	writtenPages   atomic.Pointer[atomic.Int64]
	syncedPages    atomic.Pointer[atomic.Int64]
	evictedPages   atomic.Pointer[atomic.Int64]
	recoveryPages  atomic.Pointer[atomic.Int64]
}

// NewProgress creates a progress scheduled delay from now.
func NewProgress(delay time.Duration) *Progress {
	if delay > maxWakeupDelay {
		delay = maxWakeupDelay
	}
	p := &Progress{destroyQueue: NewPartitionDestroyQueue()}
	p.nextWakeupNanos.Store(nanoTime() + delay.Nanoseconds())
	return p
}

func nanoTime() int64 {
	return time.Now().UnixNano()
}

// State returns the current checkpoint state.
func (p *Progress) State() State {
	return State(p.state.Load())
}

// GreaterOrEqualTo reports whether the checkpoint has reached the given state.
func (p *Progress) GreaterOrEqualTo(s State) bool {
	return p.State() >= s
}

// InProgress reports whether the checkpoint started writing pages but has not
// finished yet.
func (p *Progress) InProgress() bool {
	return p.GreaterOrEqualTo(StateLockReleased) && !p.GreaterOrEqualTo(StateFinished)
}

// TransitTo advances the checkpoint to the given state, completing the futures
// of every state up to and including it. Transitions backwards are ignored.
func (p *Progress) TransitTo(newState State) {
	for {
		current := State(p.state.Load())
		if current >= newState {
			return
		}
		if p.state.CompareAndSwap(int32(current), int32(newState)) {
			break
		}
	}
	p.completeFuturesUpTo(newState)
}

// Fail records the failure cause and finishes the checkpoint. All pending
// per-state futures complete with the cause.
func (p *Progress) Fail(cause error) {
	p.mu.Lock()
	p.failCause = cause
	p.mu.Unlock()

	p.TransitTo(StateFinished)
}

// FutureFor returns the completion future for the given state, creating it
// lazily. If the state was already reached the future resolves immediately.
func (p *Progress) FutureFor(s State) *Future {
	p.mu.Lock()
	fut := p.futures[s]
	if fut == nil {
		fut = newFuture()
		p.futures[s] = fut
	}
	cause := p.failCause
	p.mu.Unlock()

	if p.GreaterOrEqualTo(s) && !fut.Completed() {
		fut.complete(cause)
	}
	return fut
}

// OnStateChanged invokes the callback when the checkpoint reaches the given
// state without an error. Failed checkpoints do not fire the callback.
func (p *Progress) OnStateChanged(s State, callback func()) {
	fut := p.FutureFor(s)
	fut.Listen(func() {
		if fut.Err() == nil {
			callback()
		}
	})
}

func (p *Progress) completeFuturesUpTo(last State) {
	p.mu.Lock()
	cause := p.failCause
	var pending []*Future
	for s := StateScheduled; s <= last; s++ {
		if fut := p.futures[s]; fut != nil {
			pending = append(pending, fut)
		}
	}
	p.mu.Unlock()

	for _, fut := range pending {
		fut.complete(cause)
	}
}

// Reason returns the wakeup reason.
func (p *Progress) Reason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// SetReason records why the checkpoint was woken up.
func (p *Progress) SetReason(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reason = reason
}

// NextWakeupNanos returns the scheduled wakeup deadline in wall-clock Unix
// nanoseconds.
func (p *Progress) NextWakeupNanos() int64 {
	return p.nextWakeupNanos.Load()
}

// ScheduleIn moves the wakeup deadline to delay from now.
func (p *Progress) ScheduleIn(delay time.Duration) {
	if delay > maxWakeupDelay {
		delay = maxWakeupDelay
	}
	p.nextWakeupNanos.Store(nanoTime() + delay.Nanoseconds())
}

// DestroyQueue returns the queue of partitions scheduled for destruction
// within this checkpoint.
func (p *Progress) DestroyQueue() *PartitionDestroyQueue {
	return p.destroyQueue
}

// InitCounters installs fresh page counters for a running checkpoint and
// records the page total.
func (p *Progress) InitCounters(pages int) {
	p.currPagesCount.Store(int64(pages))
	p.writtenPages.Store(new(atomic.Int64))
	p.syncedPages.Store(new(atomic.Int64))
	p.evictedPages.Store(new(atomic.Int64))
	p.recoveryPages.Store(new(atomic.Int64))
}

// ClearCounters releases the counters once the checkpoint has finished.
func (p *Progress) ClearCounters() {
	p.currPagesCount.Store(0)
	p.writtenPages.Store(nil)
	p.syncedPages.Store(nil)
	p.evictedPages.Store(nil)
	p.recoveryPages.Store(nil)
}

// CurrentPagesCount returns the number of pages in the running checkpoint.
func (p *Progress) CurrentPagesCount() int {
	return int(p.currPagesCount.Load())
}

// SetCurrentPagesCount records the number of pages in the running checkpoint.
func (p *Progress) SetCurrentPagesCount(pages int) {
	p.currPagesCount.Store(int64(pages))
}

// UpdateWrittenPages adds delta to the written pages counter. The counter must
// be initialised and delta must be positive.
func (p *Progress) UpdateWrittenPages(delta int) {
	ensurePositive(delta)
	p.writtenPages.Load().Add(int64(delta))
}

// UpdateSyncedPages adds delta to the fsynced pages counter. The counter must
// be initialised and delta must be positive.
func (p *Progress) UpdateSyncedPages(delta int) {
	ensurePositive(delta)
	p.syncedPages.Load().Add(int64(delta))
}

// UpdateEvictedPages adds delta to the evicted pages counter. A cleared
// counter makes this a no-op.
func (p *Progress) UpdateEvictedPages(delta int) {
	ensurePositive(delta)
	if counter := p.evictedPages.Load(); counter != nil {
		counter.Add(int64(delta))
	}
}

// UpdateRecoveryPages adds delta to the written recovery pages counter. A
// cleared counter makes this a no-op.
func (p *Progress) UpdateRecoveryPages(delta int) {
	ensurePositive(delta)
	if counter := p.recoveryPages.Load(); counter != nil {
		counter.Add(int64(delta))
	}
}

// WrittenPages returns the written pages count, or false when counters are
// cleared.
func (p *Progress) WrittenPages() (int64, bool) {
	return counterValue(&p.writtenPages)
}

// SyncedPages returns the fsynced pages count, or false when counters are
// cleared.
func (p *Progress) SyncedPages() (int64, bool) {
	return counterValue(&p.syncedPages)
}

// EvictedPages returns the evicted pages count, or false when counters are
// cleared.
func (p *Progress) EvictedPages() (int64, bool) {
	return counterValue(&p.evictedPages)
}

// RecoveryPages returns the written recovery pages count, or false when
// counters are cleared.
func (p *Progress) RecoveryPages() (int64, bool) {
	return counterValue(&p.recoveryPages)
}

func counterValue(ptr *atomic.Pointer[atomic.Int64]) (int64, bool) {
	counter := ptr.Load()
	if counter == nil {
		return 0, false
	}
	return counter.Load(), true
}

func ensurePositive(delta int) {
	if delta <= 0 {
		panic("delta must be positive")
	}
}

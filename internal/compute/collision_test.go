package compute

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCollisionContext is a policy-facing context detached from a scheduler.
type stubCollisionContext struct {
	jobID     uuid.UUID
	held      bool
	activated bool
	cancelled bool
	refuse    bool
}

func (c *stubCollisionContext) JobID() uuid.UUID      { return c.jobID }
func (c *stubCollisionContext) SessionID() uuid.UUID  { return uuid.Nil }
func (c *stubCollisionContext) TaskName() string      { return "stub" }
func (c *stubCollisionContext) Held() bool            { return c.held }
func (c *stubCollisionContext) Session() *TaskSession { return nil }

func (c *stubCollisionContext) Activate() bool {
	if c.refuse {
		return false
	}
	c.activated = true
	return true
}

func (c *stubCollisionContext) Cancel() bool {
	c.cancelled = true
	return true
}

func contexts(n int) []CollisionJobContext {
	out := make([]CollisionJobContext, n)
	for i := range out {
		out[i] = &stubCollisionContext{jobID: uuid.New()}
	}
	return out
}

func TestFifoPolicy_ActivatesUpToCap(t *testing.T) {
	policy := NewFifoPolicy(2)

	passive := contexts(4)
	policy.OnCollision(passive, nil, nil)

	assert.True(t, passive[0].(*stubCollisionContext).activated)
	assert.True(t, passive[1].(*stubCollisionContext).activated)
	assert.False(t, passive[2].(*stubCollisionContext).activated)
	assert.False(t, passive[3].(*stubCollisionContext).activated)

	// Nothing beyond the cap is cancelled; it just stays queued.
	assert.False(t, passive[2].(*stubCollisionContext).cancelled)
}

func TestFifoPolicy_AccountsForRunningJobs(t *testing.T) {
	policy := NewFifoPolicy(3)

	passive := contexts(2)
	active := contexts(2)
	policy.OnCollision(passive, active, nil)

	assert.True(t, passive[0].(*stubCollisionContext).activated)
	assert.False(t, passive[1].(*stubCollisionContext).activated)
}

func TestFifoPolicy_SkipsConcurrentlyCancelledJobs(t *testing.T) {
	policy := NewFifoPolicy(2)

	passive := contexts(3)
	passive[0].(*stubCollisionContext).refuse = true
	policy.OnCollision(passive, nil, nil)

	// The refused activation does not consume a slot.
	assert.True(t, passive[1].(*stubCollisionContext).activated)
	assert.True(t, passive[2].(*stubCollisionContext).activated)
}

func TestScheduler_HeldJobsExcludedFromActiveView(t *testing.T) {
	recorder := &recordingPolicy{}
	f := newSchedulerFixture(t, func(params *SchedulerParams) {
		params.Config.Collision.Enabled = true
		params.Policy = recorder
	})

	job := newHoldingJob()
	f.registerJob("holder", job)
	f.sched.ProcessExecuteRequest(f.remote, f.request("holder"))

	<-job.held

	f.sched.onExternalCollision()

	assert.Equal(t, 0, recorder.lastActive, "held job leaves the active view")
	assert.Equal(t, 1, recorder.lastHeld)

	close(job.resume)
	require.Eventually(t, func() bool {
		return f.sched.active.Len() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, f.sched.heldCount())
}

func TestScheduler_CollisionPassErrorIsContained(t *testing.T) {
	f := newSchedulerFixture(t, func(params *SchedulerParams) {
		params.Config.Collision.Enabled = true
		params.Policy = &panickyPolicy{}
	})

	f.registerJob("survivor", newBlockingJob())

	// The panicking policy must not take down the request handler.
	assert.NotPanics(t, func() {
		f.sched.ProcessExecuteRequest(f.remote, f.request("survivor"))
	})
	assert.Equal(t, 1, f.sched.passive.Len())
}

// recordingPolicy activates everything and snapshots the view sizes of the
// latest pass.
type recordingPolicy struct {
	lastPassive int
	lastActive  int
	lastHeld    int
}

func (r *recordingPolicy) OnCollision(passive, active, held []CollisionJobContext) {
	r.lastPassive = len(passive)
	r.lastActive = len(active)
	r.lastHeld = len(held)
	for _, ctx := range passive {
		ctx.Activate()
	}
}

type panickyPolicy struct{}

func (panickyPolicy) OnCollision(_, _, _ []CollisionJobContext) {
	panic("policy exploded")
}

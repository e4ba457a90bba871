package compute

import (
	"github.com/google/uuid"
)

// CollisionJobContext is one job as seen by the collision policy. Activate and
// Cancel act on the scheduler maps the context was snapshotted from.
type CollisionJobContext interface {
	JobID() uuid.UUID
	SessionID() uuid.UUID
	TaskName() string
	// Held reports whether the job is voluntarily suspended.
	Held() bool
	// Session gives the policy access to task attributes, e.g. priorities.
	Session() *TaskSession

	// Activate moves a passive job to the active set and submits it to its
	// pool. Returns false if the job was concurrently cancelled or is not
	// passive any more.
	Activate() bool
	// Cancel rejects a passive job or cancels an active one. Returns false if
	// the job already left the map it was seen in.
	Cancel() bool
}

// CollisionPolicy decides which queued jobs activate and which jobs get
// cancelled, based on views of the scheduler's passive, active and held
// jobs. Views are snapshots taken at the start of the pass; they do not
// support removal.
type CollisionPolicy interface {
	OnCollision(passive, active, held []CollisionJobContext)
}

// ExternalListenerAware is implemented by policies that need to trigger a new
// collision pass themselves, e.g. when their internal queue changes.
type ExternalListenerAware interface {
	SetExternalListener(listener func())
	UnsetExternalListener()
}

// AttributeAwarePolicy is implemented by policies that react to task
// session attribute changes (e.g. priority bumps). The scheduler re-runs the
// collision pass when one of the listed attributes changes on a passive job.
type AttributeAwarePolicy interface {
	CollisionPolicy
	AttributeKeys() []string
}

// FifoPolicy activates passive jobs in arrival order while the number of
// running (non-held) jobs stays below ParallelJobsNumber. Jobs beyond the cap
// stay queued; nothing is cancelled.
type FifoPolicy struct {
	ParallelJobsNumber int
}

func NewFifoPolicy(parallelJobs int) *FifoPolicy {
	return &FifoPolicy{ParallelJobsNumber: parallelJobs}
}

func (p *FifoPolicy) OnCollision(passive, active, _ []CollisionJobContext) {
	running := len(active)
	for _, ctx := range passive {
		if running >= p.ParallelJobsNumber {
			break
		}
		if ctx.Activate() {
			running++
		}
	}
}

// collisionJobContext adapts a worker to the policy-facing context. The
// passive flag records which view the context was created for.
type collisionJobContext struct {
	w       *Worker
	passive bool
	sched   *Scheduler
}

func (c *collisionJobContext) JobID() uuid.UUID {
	return c.w.JobID()
}

func (c *collisionJobContext) SessionID() uuid.UUID {
	return c.w.ses.ID
}

func (c *collisionJobContext) TaskName() string {
	return c.w.ses.TaskName
}

func (c *collisionJobContext) Held() bool {
	return c.w.Held()
}

func (c *collisionJobContext) Session() *TaskSession {
	return c.w.ses.TaskSession
}

func (c *collisionJobContext) Activate() bool {
	return c.sched.removeFromPassive(c.w) &&
		c.sched.onBeforeActivate(c.w) &&
		c.sched.executeAsync(c.w)
}

func (c *collisionJobContext) Cancel() bool {
	return c.sched.cancelFromCollision(c.w, c.passive)
}

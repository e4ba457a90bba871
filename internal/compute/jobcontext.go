package compute

import (
	"sync"

	"github.com/google/uuid"
)

// JobContext carries per-job attributes and lets running job code suspend
// itself around blocking I/O.
type JobContext struct {
	jobID uuid.UUID

	mu    sync.Mutex
	attrs map[string]interface{}

	worker *Worker
}

func newJobContext(jobID uuid.UUID, attrs map[string]interface{}) *JobContext {
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return &JobContext{jobID: jobID, attrs: attrs}
}

func (c *JobContext) JobID() uuid.UUID {
	return c.jobID
}

func (c *JobContext) Attribute(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.attrs[key]
	return v, ok
}

func (c *JobContext) SetAttribute(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[key] = value
}

func (c *JobContext) Attributes() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]interface{}, len(c.attrs))
	for k, v := range c.attrs {
		out[k] = v
	}
	return out
}

// Hold suspends the job while it waits on an asynchronous dependency; a held
// job does not count against the scheduler's collision concurrency. Returns
// false if the job is no longer active.
func (c *JobContext) Hold() bool {
	if c.worker == nil {
		return false
	}
	return c.worker.hold()
}

// Unhold resumes a previously held job.
func (c *JobContext) Unhold() bool {
	if c.worker == nil {
		return false
	}
	return c.worker.unhold()
}

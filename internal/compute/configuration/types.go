package configuration

import "time"

type SchedulerConfiguration struct {
	// JobsHistorySize bounds the finished-jobs and cancel-request histories.
	JobsHistorySize int
	// NetworkTimeout bounds sibling request round trips.
	NetworkTimeout time.Duration
	// FailureDetectionTimeout is the default worker interrupt timeout when the
	// distributed property is not set.
	FailureDetectionTimeout time.Duration
	// StopTimeout bounds how long Stop waits for running jobs.
	StopTimeout time.Duration
	Pools       []PoolConfiguration
	Collision   CollisionConfiguration
}

type PoolConfiguration struct {
	Name      string
	Workers   int
	QueueSize int
}

type CollisionConfiguration struct {
	// Enabled turns the collision admission stage on. When disabled every job
	// activates immediately and the policy is never consulted.
	Enabled bool
	// ParallelJobsNumber is the activation cap of the shipped FIFO policy.
	ParallelJobsNumber int
}

type EmbergridConfiguration struct {
	MetricsPort uint16
	Scheduler   SchedulerConfiguration
}

const (
	DefaultJobsHistorySize = 10240
	DefaultPoolWorkers     = 8
	DefaultPoolQueueSize   = 1024
)

// ApplyDefaults fills unset fields with production defaults.
func (c *SchedulerConfiguration) ApplyDefaults() {
	if c.JobsHistorySize <= 0 {
		c.JobsHistorySize = DefaultJobsHistorySize
	}
	if c.NetworkTimeout <= 0 {
		c.NetworkTimeout = 5 * time.Second
	}
	if c.FailureDetectionTimeout <= 0 {
		c.FailureDetectionTimeout = 10 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
	if len(c.Pools) == 0 {
		c.Pools = []PoolConfiguration{{}}
	}
	for i := range c.Pools {
		if c.Pools[i].Workers <= 0 {
			c.Pools[i].Workers = DefaultPoolWorkers
		}
		if c.Pools[i].QueueSize <= 0 {
			c.Pools[i].QueueSize = DefaultPoolQueueSize
		}
	}
	if c.Collision.ParallelJobsNumber <= 0 {
		c.Collision.ParallelJobsNumber = DefaultPoolWorkers
	}
}

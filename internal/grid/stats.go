package grid

import (
	"time"

	"github.com/google/uuid"
)

// PerformanceStatistics receives per-job timing records when enabled.
type PerformanceStatistics interface {
	Enabled() bool
	// Job records timings of one finished job.
	Job(sessionID uuid.UUID, queuedTime time.Duration, startTime time.Time, executeTime time.Duration, timedOut bool)
}

// NopStatistics discards all records.
type NopStatistics struct{}

func (NopStatistics) Enabled() bool { return false }

func (NopStatistics) Job(uuid.UUID, time.Duration, time.Time, time.Duration, bool) {}

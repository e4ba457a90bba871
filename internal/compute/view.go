package compute

import (
	"time"

	"github.com/google/uuid"
)

// JobState tags an entry of the jobs system view with the scheduler map it
// came from. Internal synchronously running jobs show as ACTIVE.
type JobState string

const (
	JobStateActive   JobState = "ACTIVE"
	JobStatePassive  JobState = "PASSIVE"
	JobStateCanceled JobState = "CANCELED"
)

// JobView is one row of the read-only jobs system view.
type JobView struct {
	ID           uuid.UUID
	SessionID    uuid.UUID
	OriginNodeID uuid.UUID
	TaskName     string
	State        JobState
	Status       WorkerStatus
	CreateTime   time.Time
	Internal     bool
	ExecutorName string
}

// Jobs returns a flattened snapshot over the active, sync-running, passive and
// cancelled maps.
func (s *Scheduler) Jobs() []JobView {
	var out []JobView
	collect := func(m *jobMap, state JobState) {
		if m == nil {
			return
		}
		for _, w := range m.Values() {
			out = append(out, JobView{
				ID:           w.JobID(),
				SessionID:    w.SessionID(),
				OriginNodeID: w.taskNode.ID,
				TaskName:     w.ses.TaskName,
				State:        state,
				Status:       w.Status(),
				CreateTime:   w.CreateTime(),
				Internal:     w.Internal(),
				ExecutorName: w.ExecutorName(),
			})
		}
	}
	collect(s.active, JobStateActive)
	collect(s.syncRunning, JobStateActive)
	collect(s.passive, JobStatePassive)
	collect(s.cancelled, JobStateCanceled)
	return out
}

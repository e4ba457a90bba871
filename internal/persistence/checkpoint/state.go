// Package checkpoint tracks the life story of one persistence checkpoint
// round: a monotone state machine shared between the checkpointer thread,
// page writers and observers, with per-state completion futures and page
// counters.
package checkpoint

// State is a phase of a checkpoint. States are totally ordered; a progress
// object only ever moves forward through them.
type State int32

const (
	StateScheduled State = iota
	StateLockTaken
	StatePagesSnapshotted
	StateLockReleased
	StatePagesWritten
	StateFinished

	numStates = int(StateFinished) + 1
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "SCHEDULED"
	case StateLockTaken:
		return "LOCK_TAKEN"
	case StatePagesSnapshotted:
		return "PAGES_SNAPSHOTTED"
	case StateLockReleased:
		return "LOCK_RELEASED"
	case StatePagesWritten:
		return "PAGES_WRITTEN"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

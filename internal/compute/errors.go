package compute

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Failure kinds carried in responses. Kinds, not wire formats: the receiving
// side maps them back onto errors.
const (
	KindDeploymentMissing     = "DeploymentMissing"
	KindDeserializationFailed = "DeserializationFailed"
	KindExecutionRejected     = "ExecutionRejected"
	KindPartitionsLost        = "PartitionsLost"
	KindTimeout               = "Timeout"
	KindInternal              = "Internal"
)

// DeploymentError means the task was not deployed, or was redeployed since the
// original execution. Fatal for the execute request that hit it.
type DeploymentError struct {
	TaskName      string
	ClassName     string
	UserVersion   string
	ClassLoaderID uuid.UUID
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("task was not deployed or was redeployed since task execution "+
		"[taskName=%s, className=%s, userVersion=%s, classLoaderID=%s]",
		e.TaskName, e.ClassName, e.UserVersion, e.ClassLoaderID)
}

// DeserializationError means attributes, siblings or the topology predicate
// could not be decoded with the deployment's class loader.
type DeserializationError struct {
	TaskName  string
	ClassName string
	Cause     error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("failed to deserialize task attributes [taskName=%s, className=%s]: %v",
		e.TaskName, e.ClassName, e.Cause)
}

func (e *DeserializationError) Unwrap() error { return e.Cause }

// ExecutionRejectedError means the job was cancelled before activation or the
// pool refused its submission.
type ExecutionRejectedError struct {
	SessionID uuid.UUID
	JobID     uuid.UUID
	Reason    string
}

func (e *ExecutionRejectedError) Error() string {
	return fmt.Sprintf("%s [sessionID=%s, jobID=%s]", e.Reason, e.SessionID, e.JobID)
}

// PartitionsLostError means the pre-flight partition reservation failed and
// this node is no longer a valid executor for the job.
type PartitionsLostError struct {
	CacheName       string
	PartitionID     int
	NodeID          uuid.UUID
	TopologyVersion int64
}

func (e *PartitionsLostError) Error() string {
	return fmt.Sprintf("failed partition reservation, partition is not primary on the node "+
		"[partition=%d, cacheName=%s, nodeID=%s, topology=%d]",
		e.PartitionID, e.CacheName, e.NodeID, e.TopologyVersion)
}

// TimeoutError means the job's end time passed before it finished.
type TimeoutError struct {
	JobID   uuid.UUID
	EndTime time.Time
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job timed out [jobID=%s, endTime=%s]", e.JobID, e.EndTime)
}

func errorsUnexpectedMessage(msg interface{}) error {
	return errors.Errorf("received unexpected message: %T", msg)
}

func errorsUnexpectedSender(want, got uuid.UUID) error {
	return errors.Errorf("received job siblings response from unexpected node [taskNodeID=%s, nodeID=%s]", want, got)
}

// failureFrom converts an execution error to its wire representation.
func failureFrom(err error) *Failure {
	if err == nil {
		return nil
	}
	kind := KindInternal
	var (
		depErr   *DeploymentError
		deserErr *DeserializationError
		rejErr   *ExecutionRejectedError
		partsErr *PartitionsLostError
		timeErr  *TimeoutError
	)
	switch {
	case errors.As(err, &depErr):
		kind = KindDeploymentMissing
	case errors.As(err, &deserErr):
		kind = KindDeserializationFailed
	case errors.As(err, &rejErr):
		kind = KindExecutionRejected
	case errors.As(err, &partsErr):
		kind = KindPartitionsLost
	case errors.As(err, &timeErr):
		kind = KindTimeout
	}
	return &Failure{Kind: kind, Message: err.Error()}
}

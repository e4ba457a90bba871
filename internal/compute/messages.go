package compute

import (
	"time"

	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/grid"
)

// JobSibling identifies one job of a task and the node it runs on.
type JobSibling struct {
	JobID  uuid.UUID
	NodeID uuid.UUID
}

// NodePredicate filters the nodes a task may run on. Concrete implementations
// are provided by deployed task code and restored by the marshaller.
type NodePredicate interface {
	Apply(node *grid.Node) bool
}

// ExecuteRequest asks this node to run one job of a task. Attribute and
// sibling fields come in either materialised (local originator) or serialized
// form; serialized forms are decoded with the resolved deployment.
type ExecuteRequest struct {
	SessionID uuid.UUID
	JobID     uuid.UUID

	TaskName             string
	ClassName            string
	UserVersion          string
	DeploymentMode       grid.DeploymentMode
	ClassLoaderID        uuid.UUID
	LoaderParticipants   map[uuid.UUID]uuid.UUID
	ForceLocalDeployment bool

	CreateTime      time.Time
	Timeout         time.Duration
	TopologyVersion int64

	DynamicSiblings bool
	Siblings        []JobSibling
	SiblingsBytes   []byte

	SessionFullSupport bool
	SessionAttrs       map[string]interface{}
	SessionAttrsBytes  []byte

	JobAttrs      map[string]interface{}
	JobAttrsBytes []byte

	TopologyPredicateBytes []byte

	JobPayload   []byte
	ExecutorName string
	Internal     bool

	// Partition pre-flight: empty CacheIDs means no reservation.
	CacheIDs    []int
	PartitionID int
}

// CancelRequest cancels a single job or every job of a session. A zero JobID
// means cancellation by session.
type CancelRequest struct {
	SessionID uuid.UUID
	JobID     uuid.UUID
	// System marks cancellations initiated by the grid itself; no response is
	// produced for them.
	System bool
}

// SessionAttrRequest propagates task session attribute changes to a job node.
type SessionAttrRequest struct {
	SessionID  uuid.UUID
	JobID      uuid.UUID
	Attrs      map[string]interface{}
	AttrsBytes []byte
}

// Failure is the wire form of an execution error.
type Failure struct {
	Kind    string
	Message string
}

func (f *Failure) Error() string {
	return f.Kind + ": " + f.Message
}

// ExecuteResponse reports a job outcome to the task originator.
type ExecuteResponse struct {
	NodeID    uuid.UUID
	SessionID uuid.UUID
	JobID     uuid.UUID

	ResultBytes   []byte
	JobAttrsBytes []byte
	Failure       *Failure
	Cancelled     bool
}

// SiblingsRequest asks the task originator for the current sibling list.
// The response is sent to the per-request ResponseTopic.
type SiblingsRequest struct {
	SessionID     uuid.UUID
	ResponseTopic grid.Topic
}

// SiblingsResponse carries the sibling list of a session.
type SiblingsResponse struct {
	SessionID uuid.UUID
	Siblings  []JobSibling
}

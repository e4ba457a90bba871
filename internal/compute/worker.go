package compute

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/embergridproject/embergrid/internal/grid"
)

// Job is the executable unit resolved from a deployment. Execute runs on a
// pool goroutine (or the handler goroutine for internal and remote-sync jobs);
// the context is cancelled when a cancelled job overstays the interrupt
// timeout.
type Job interface {
	Execute(ctx context.Context) (interface{}, error)
}

// CancelAware jobs receive a cooperative cancellation signal before the
// interrupt timeout starts ticking.
type CancelAware interface {
	OnCancel()
}

// MasterLeaveAware jobs are notified when the originating task node leaves the
// grid and are expected to terminate themselves.
type MasterLeaveAware interface {
	OnMasterNodeLeft()
}

// ContextAware jobs receive their job context before execution, giving them
// access to job attributes and the hold/unhold suspension points.
type ContextAware interface {
	SetJobContext(jobCtx *JobContext)
}

// WorkerStatus is the lifecycle state of a job worker.
type WorkerStatus int32

const (
	StatusQueued WorkerStatus = iota
	StatusStarted
	StatusHeld
	StatusFinishing
	StatusFinished
	StatusCancelled
)

func (s WorkerStatus) String() string {
	switch s {
	case StatusQueued:
		return "QUEUED"
	case StatusStarted:
		return "STARTED"
	case StatusHeld:
		return "HELD"
	case StatusFinishing:
		return "FINISHING"
	case StatusFinished:
		return "FINISHED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

type workerEventListener interface {
	onJobQueued(w *Worker)
	onJobStarted(w *Worker)
	onBeforeResponseSent(w *Worker)
	onJobFinished(w *Worker)
}

type workerHoldListener interface {
	onHeld(w *Worker) bool
	onUnheld(w *Worker) bool
}

type workerParams struct {
	dep         grid.Deployment
	createTime  time.Time
	ses         *JobSession
	jobCtx      *JobContext
	payload     []byte
	job         Job
	taskNode    *grid.Node
	internal    bool
	events      workerEventListener
	holds       workerHoldListener
	reservation *PartitionsReservation
	topVer      int64
	execName    string
	// interruptTimeout supplies the current distributed timeout value.
	interruptTimeout func() time.Duration

	cluster   grid.Cluster
	messenger grid.Messenger
	marsh     grid.Marshaler
	// networkTimeout bounds ordered response sends for sessions without a
	// deadline.
	networkTimeout time.Duration
}

// Worker executes one job to completion, reports the outcome to the task
// originator and fires lifecycle callbacks so the scheduler can maintain its
// maps.
type Worker struct {
	workerParams

	status          atomic.Int32
	heldFlag        atomic.Bool
	cancelRequested atomic.Bool
	sysCancelled    atomic.Bool
	masterLeft      atomic.Bool
	timedOut        atomic.Bool
	finishingFlag   atomic.Bool

	runCtx    context.Context
	runCancel context.CancelFunc

	cancelMu       sync.Mutex
	interruptTimer *time.Timer

	startMu   sync.Mutex
	startedAt time.Time
	queuedDur time.Duration
	execDur   time.Duration

	finishOnce sync.Once
	done       chan struct{}
}

func newWorker(p workerParams) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		workerParams: p,
		runCtx:       ctx,
		runCancel:    cancel,
		done:         make(chan struct{}),
	}
}

func (w *Worker) JobID() uuid.UUID {
	return w.ses.JobID
}

func (w *Worker) SessionID() uuid.UUID {
	return w.ses.ID
}

func (w *Worker) Session() *JobSession {
	return w.ses
}

func (w *Worker) Context() *JobContext {
	return w.jobCtx
}

func (w *Worker) TaskNode() *grid.Node {
	return w.taskNode
}

func (w *Worker) Internal() bool {
	return w.internal
}

func (w *Worker) ExecutorName() string {
	return w.execName
}

func (w *Worker) Status() WorkerStatus {
	return WorkerStatus(w.status.Load())
}

func (w *Worker) Held() bool {
	return w.heldFlag.Load()
}

func (w *Worker) IsCancelled() bool {
	return w.cancelRequested.Load()
}

func (w *Worker) IsTimedOut() bool {
	return w.timedOut.Load()
}

// IsFinishing reports whether the worker entered its finish sequence.
func (w *Worker) IsFinishing() bool {
	return w.finishingFlag.Load()
}

// Done is closed once the worker has fully finished.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) CreateTime() time.Time {
	return w.createTime
}

// QueuedTime is how long the job waited between arrival and start. For a
// worker that has not started yet it is the wait so far.
func (w *Worker) QueuedTime() time.Duration {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.startedAt.IsZero() {
		return time.Since(w.createTime)
	}
	return w.queuedDur
}

// ExecuteTime is how long the job has been executing.
func (w *Worker) ExecuteTime() time.Duration {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	if w.startedAt.IsZero() {
		return 0
	}
	if w.execDur > 0 {
		return w.execDur
	}
	return time.Since(w.startedAt)
}

// StartTime is when the job began executing; zero if it never started.
func (w *Worker) StartTime() time.Time {
	w.startMu.Lock()
	defer w.startMu.Unlock()
	return w.startedAt
}

// TimeoutID implements grid.TimeoutObject.
func (w *Worker) TimeoutID() uuid.UUID {
	return w.JobID()
}

// EndTime implements grid.TimeoutObject.
func (w *Worker) EndTime() time.Time {
	return w.ses.EndTime
}

// OnTimeout marks the worker timed out and cancels it. The response, if any,
// is still attempted.
func (w *Worker) OnTimeout() {
	if w.timedOut.Swap(true) {
		return
	}
	log.Warnf("Job has timed out: %s", w.JobID())
	w.Cancel(false)
}

// jobTopic is the per-job topic session attribute requests arrive on.
func (w *Worker) jobTopic() grid.Topic {
	return grid.TopicTask.Sub(w.JobID(), w.taskNode.ID)
}

// Initialize binds the executable from the deployment and restores its state
// from the request payload. On failure the worker finishes immediately with
// the initialization error and Initialize returns false.
func (w *Worker) Initialize() bool {
	if w.job == nil {
		ctor, ok := w.dep.Resolve(w.ses.ClassName)
		if !ok {
			w.finish(nil, &DeploymentError{
				TaskName:      w.ses.TaskName,
				ClassName:     w.ses.ClassName,
				UserVersion:   w.dep.UserVersion(),
				ClassLoaderID: w.dep.ClassLoaderID(),
			}, true)
			return false
		}
		instance := ctor()
		job, ok := instance.(Job)
		if !ok {
			w.finish(nil, errors.Errorf("deployed class is not an executable job: %s", w.ses.ClassName), true)
			return false
		}
		if len(w.payload) > 0 {
			if err := w.marsh.Unmarshal(w.payload, job); err != nil {
				w.finish(nil, &DeserializationError{
					TaskName:  w.ses.TaskName,
					ClassName: w.ses.ClassName,
					Cause:     err,
				}, true)
				return false
			}
		}
		w.job = job
	}
	w.jobCtx.worker = w
	if aware, ok := w.job.(ContextAware); ok {
		aware.SetJobContext(w.jobCtx)
	}
	w.status.Store(int32(StatusQueued))
	w.events.onJobQueued(w)
	return true
}

// Run executes the job on the calling goroutine.
func (w *Worker) Run() {
	w.startMu.Lock()
	w.startedAt = time.Now()
	w.queuedDur = w.startedAt.Sub(w.createTime)
	w.startMu.Unlock()

	w.status.Store(int32(StatusStarted))
	w.events.onJobStarted(w)

	if w.reservation != nil {
		ok, err := w.reservation.Reserve()
		if err != nil {
			w.finish(nil, err, true)
			return
		}
		if !ok {
			w.finish(nil, &PartitionsLostError{
				PartitionID:     w.reservation.PartitionID(),
				NodeID:          w.cluster.LocalNode().ID,
				TopologyVersion: w.topVer,
			}, true)
			return
		}
	}

	result, err := w.execute()

	if w.timedOut.Load() && (err == nil || errors.Is(err, context.Canceled)) {
		err = &TimeoutError{JobID: w.JobID(), EndTime: w.ses.EndTime}
	}

	w.finish(result, err, true)
}

func (w *Worker) execute() (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job panicked: %v", r)
		}
	}()
	return w.job.Execute(w.runCtx)
}

// Cancel requests cancellation: the cooperative hook fires immediately, and if
// the job does not exit within the interrupt timeout its context is cancelled.
// A system cancellation additionally suppresses the response.
func (w *Worker) Cancel(system bool) {
	if system {
		w.sysCancelled.Store(true)
	}
	w.cancelRequested.Store(true)

	if job := w.job; job != nil {
		if aware, ok := job.(CancelAware); ok {
			aware.OnCancel()
		}
	}

	w.cancelMu.Lock()
	defer w.cancelMu.Unlock()
	if w.interruptTimer != nil {
		return
	}
	timeout := w.interruptTimeout()
	if timeout <= 0 {
		w.runCancel()
		return
	}
	w.interruptTimer = time.AfterFunc(timeout, func() {
		select {
		case <-w.done:
		default:
			log.Warnf("Interrupting job after cancel timeout [jobID=%s, timeout=%s]", w.JobID(), timeout)
			w.runCancel()
		}
	})
}

// OnMasterNodeLeft tells the worker its task originator is gone. The result
// will not be sent. Returns true if the job is master-leave aware and will
// terminate itself.
func (w *Worker) OnMasterNodeLeft() bool {
	w.masterLeft.Store(true)

	if job := w.job; job != nil {
		if aware, ok := job.(MasterLeaveAware); ok {
			aware.OnMasterNodeLeft()
			return true
		}
	}
	return false
}

func (w *Worker) hold() bool {
	if !w.holds.onHeld(w) {
		return false
	}
	w.heldFlag.Store(true)
	w.status.Store(int32(StatusHeld))
	return true
}

func (w *Worker) unhold() bool {
	if !w.holds.onUnheld(w) {
		return false
	}
	w.heldFlag.Store(false)
	w.status.Store(int32(StatusStarted))
	return true
}

// finish completes the worker exactly once: sends the response unless
// suppressed, releases the partition reservation and fires onJobFinished.
func (w *Worker) finish(result interface{}, jobErr error, sendReply bool) {
	w.finishOnce.Do(func() {
		w.finishingFlag.Store(true)
		w.status.Store(int32(StatusFinishing))

		w.cancelMu.Lock()
		if w.interruptTimer != nil {
			w.interruptTimer.Stop()
		}
		w.cancelMu.Unlock()

		suppressed := w.masterLeft.Load() || w.sysCancelled.Load()
		if sendReply && !suppressed {
			w.sendResponse(result, jobErr)
		}

		if w.reservation != nil {
			w.reservation.Release()
		}

		w.startMu.Lock()
		if !w.startedAt.IsZero() {
			w.execDur = time.Since(w.startedAt)
		}
		w.startMu.Unlock()

		if w.cancelRequested.Load() {
			w.status.Store(int32(StatusCancelled))
		} else {
			w.status.Store(int32(StatusFinished))
		}

		close(w.done)
		w.events.onJobFinished(w)
	})
}

func (w *Worker) sendResponse(result interface{}, jobErr error) {
	node := w.cluster.Node(w.taskNode.ID)
	if node == nil {
		log.Warnf("Failed to reply to sender node because it left grid [nodeID=%s, jobID=%s]",
			w.taskNode.ID, w.JobID())
		return
	}

	resp := &ExecuteResponse{
		NodeID:    w.cluster.LocalNode().ID,
		SessionID: w.ses.ID,
		JobID:     w.JobID(),
		Failure:   failureFrom(jobErr),
		Cancelled: w.IsCancelled(),
	}
	if jobErr == nil && result != nil {
		data, err := w.marsh.Marshal(result)
		if err != nil {
			log.Errorf("Failed to marshal job result [jobID=%s]: %s", w.JobID(), err)
			resp.Failure = &Failure{Kind: KindInternal, Message: err.Error()}
		} else {
			resp.ResultBytes = data
		}
	}
	if attrs := w.jobCtx.Attributes(); len(attrs) > 0 {
		data, err := w.marsh.Marshal(attrs)
		if err != nil {
			log.Errorf("Failed to marshal job attributes [jobID=%s]: %s", w.JobID(), err)
		} else {
			resp.JobAttrsBytes = data
		}
	}

	w.events.onBeforeResponseSent(w)

	pool := grid.SystemPool
	if w.internal {
		pool = grid.ManagementPool
	}

	var err error
	if w.ses.FullSupport {
		// Ordered send preserves attribute and result order for the session.
		timeout := w.networkTimeout
		if w.ses.HasDeadline() {
			timeout = time.Until(w.ses.EndTime)
			if timeout <= 0 {
				// Past the deadline the response is attempted anyway.
				timeout = time.Millisecond
			}
		}
		topic := grid.TopicTask.Sub(w.JobID(), resp.NodeID)
		err = w.messenger.SendOrdered(node, topic, resp, pool, timeout)
	} else {
		err = w.messenger.SendToGridTopic(node, grid.TopicTask, resp, pool)
	}
	if err != nil {
		if !w.cluster.Alive(node.ID) || !w.cluster.Ping(node.ID) {
			log.Warnf("Failed to reply to sender node because it left grid [nodeID=%s, jobID=%s]",
				node.ID, w.JobID())
		} else {
			log.Errorf("Error sending reply for job [nodeID=%s, jobID=%s]: %s", node.ID, w.JobID(), err)
		}
	}
}

// Package compute implements the compute-job pipeline of a grid node: the
// scheduler accepting job execution requests from remote task originators,
// the workers running them on executor pools, and the pluggable collision
// stage deciding which queued jobs activate.
package compute

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/embergridproject/embergrid/internal/common/collections"
	"github.com/embergridproject/embergrid/internal/compute/configuration"
	"github.com/embergridproject/embergrid/internal/grid"
)

// ComputeJobWorkerInterruptTimeout is the distributed property holding the
// timeout in milliseconds for interrupting a job worker after a cancel
// operation is called.
const ComputeJobWorkerInterruptTimeout = "computeJobWorkerInterruptTimeout"

type SchedulerParams struct {
	Config      configuration.SchedulerConfiguration
	Cluster     grid.Cluster
	Messenger   grid.Messenger
	Marshaler   grid.Marshaler
	Deployments grid.DeploymentRegistry
	Timeouts    grid.TimeoutRegistry
	Caches      grid.CacheRegistry
	PerfStats   grid.PerformanceStatistics
	DistConfig  grid.DistributedConfig
	// Policy is the collision policy; consulted only when collision admission
	// is enabled in the configuration.
	Policy CollisionPolicy
}

// Scheduler is responsible for all grid job execution and communication on
// this node.
//
// A job lives in at most one of four maps: passive (admitted, not yet
// activated; present only with collision enabled), active, syncRunning
// (internal jobs on the caller goroutine) and cancelled (cancel observed,
// worker not yet done). A bounded insertion-ordered history of finished job
// ids detects already-finished races; a bounded map of cancel requests
// rejects jobs cancelled before activation.
type Scheduler struct {
	cfg configuration.SchedulerConfiguration

	cluster     grid.Cluster
	messenger   grid.Messenger
	marsh       grid.Marshaler
	deployments grid.DeploymentRegistry
	timeouts    grid.TimeoutRegistry
	caches      grid.CacheRegistry
	perfStats   grid.PerformanceStatistics

	pools    *PoolManager
	sessions *sessionRegistry

	policy CollisionPolicy
	// jobAlwaysActivate is set when collision admission is disabled; the
	// passive map is absent and the policy is never invoked.
	jobAlwaysActivate bool

	active      *jobMap
	passive     *jobMap
	syncRunning *jobMap
	cancelled   *jobMap

	heldMu   sync.Mutex
	heldJobs map[uuid.UUID]struct{}

	finished   *collections.BoundedSet[uuid.UUID]
	cancelReqs *collections.BoundedMap[uuid.UUID, bool]

	// mu is the stop barrier: message handlers and collision passes hold the
	// read side, Stop flips the stopping flag under the write side. A failing
	// TryRLock means the node is shutting down.
	mu           sync.RWMutex
	stopping     bool
	cancelOnStop bool

	interruptTimeoutProp grid.LongProperty

	collisionInPass atomic.Bool
	collisionRerun  atomic.Bool

	topicIDGen        atomic.Int64
	metricsUpdateCntr atomic.Int64

	startedCnt  atomic.Int64
	canceledCnt atomic.Int64
	rejectedCnt atomic.Int64
	finishedCnt atomic.Int64

	execListener    *jobExecutionListener
	cancelListener  *jobCancelListener
	sessionListener *jobSessionListener
	discoListener   *jobDiscoveryListener
}

func NewScheduler(params SchedulerParams) *Scheduler {
	cfg := params.Config
	cfg.ApplyDefaults()

	s := &Scheduler{
		cfg:               cfg,
		cluster:           params.Cluster,
		messenger:         params.Messenger,
		marsh:             params.Marshaler,
		deployments:       params.Deployments,
		timeouts:          params.Timeouts,
		caches:            params.Caches,
		perfStats:         params.PerfStats,
		pools:             NewPoolManager(cfg.Pools),
		sessions:          newSessionRegistry(),
		policy:            params.Policy,
		jobAlwaysActivate: !cfg.Collision.Enabled,
		active:            newJobMap(),
		syncRunning:       newJobMap(),
		cancelled:         newJobMap(),
		heldJobs:          map[uuid.UUID]struct{}{},
		finished:          collections.NewBoundedSet[uuid.UUID](cfg.JobsHistorySize),
		cancelReqs:        collections.NewBoundedMap[uuid.UUID, bool](cfg.JobsHistorySize),
	}
	if !s.jobAlwaysActivate {
		s.passive = newJobMap()
		if s.policy == nil {
			s.policy = NewFifoPolicy(cfg.Collision.ParallelJobsNumber)
		}
	}

	s.execListener = &jobExecutionListener{s: s}
	s.cancelListener = &jobCancelListener{s: s}
	s.sessionListener = &jobSessionListener{s: s}
	s.discoListener = &jobDiscoveryListener{s: s}

	if params.DistConfig != nil {
		s.interruptTimeoutProp = params.DistConfig.RegisterLong(ComputeJobWorkerInterruptTimeout)
		s.interruptTimeoutProp.AddListener(func(oldVal, newVal int64) {
			log.Infof("Compute job parameter '%s' was changed from '%d' to '%d'",
				ComputeJobWorkerInterruptTimeout, oldVal, newVal)
		})
	}

	return s
}

// Start installs the message listeners and subscribes to topology events.
func (s *Scheduler) Start() {
	s.messenger.AddListener(grid.TopicJob, s.execListener)
	s.messenger.AddListener(grid.TopicJobCancel, s.cancelListener)
	s.messenger.AddListener(grid.TopicTask, s.sessionListener)

	s.cluster.AddEventListener(s.discoListener,
		grid.EventNodeLeft, grid.EventNodeFailed, grid.EventNodeMetricsUpdated)

	if !s.jobAlwaysActivate {
		if aware, ok := s.policy.(ExternalListenerAware); ok {
			aware.SetExternalListener(s.onExternalCollision)
		}
	}

	log.Debug("Job scheduler started")
}

// Stop flips the stopping flag and drains the maps. Passive jobs are always
// rejected, without a reply. With cancel set, active jobs are hard-cancelled;
// otherwise the scheduler waits for natural completion, bounded by the stop
// timeout.
func (s *Scheduler) Stop(cancel bool) error {
	s.messenger.RemoveListener(grid.TopicJob, s.execListener)
	s.messenger.RemoveListener(grid.TopicJobCancel, s.cancelListener)
	s.messenger.RemoveListener(grid.TopicTask, s.sessionListener)

	if !s.jobAlwaysActivate {
		if aware, ok := s.policy.(ExternalListenerAware); ok {
			aware.UnsetExternalListener()
		}
	}

	s.mu.Lock()
	s.stopping = true
	s.cancelOnStop = cancel
	s.mu.Unlock()

	if !s.jobAlwaysActivate {
		for _, w := range s.passive.Values() {
			if s.removeFromPassive(w) {
				s.rejectJob(w, false)
			}
		}
	}

	if cancel {
		for _, w := range s.active.Values() {
			s.cancelJobWorker(w, false)
		}
	}

	var result *multierror.Error
	deadline := time.After(s.cfg.StopTimeout)
	for _, w := range append(s.active.Values(), s.cancelled.Values()...) {
		select {
		case <-w.Done():
		case <-deadline:
			result = multierror.Append(result,
				errors.Errorf("job did not finish within stop timeout: %s", w.JobID()))
		}
	}

	s.cluster.RemoveEventListener(s.discoListener)
	s.pools.Stop()

	log.Debug("Job scheduler stopped")
	return result.ErrorOrNil()
}

// tryReadLock enters a public operation. A false return means the node is
// stopping and the operation must be ignored.
func (s *Scheduler) tryReadLock() bool {
	if !s.mu.TryRLock() {
		return false
	}
	if s.stopping {
		s.mu.RUnlock()
		return false
	}
	return true
}

// interruptTimeout returns the distributed worker interrupt timeout, defaulting
// to the failure detection timeout.
func (s *Scheduler) interruptTimeout() time.Duration {
	if s.interruptTimeoutProp != nil {
		if millis, ok := s.interruptTimeoutProp.Get(); ok {
			return time.Duration(millis) * time.Millisecond
		}
	}
	return s.cfg.FailureDetectionTimeout
}

// ActiveJob returns the active worker with the given job id, if any.
func (s *Scheduler) ActiveJob(jobID uuid.UUID) *Worker {
	return s.active.Get(jobID)
}

// Stats returns the sizes of the scheduler maps and histories.
func (s *Scheduler) Stats() map[string]int {
	stats := map[string]int{
		"active":     s.active.Len(),
		"sync":       s.syncRunning.Len(),
		"cancelled":  s.cancelled.Len(),
		"cancelReqs": s.cancelReqs.Len(),
		"finished":   s.finished.Len(),
	}
	if s.passive != nil {
		stats["passive"] = s.passive.Len()
	}
	return stats
}

// JobStatuses counts the jobs of a session per worker status across the
// passive, active and cancelled maps.
func (s *Scheduler) JobStatuses(sessionID uuid.UUID) map[WorkerStatus]int {
	out := map[WorkerStatus]int{}
	maps := []*jobMap{s.active, s.cancelled}
	if s.passive != nil {
		maps = append(maps, s.passive)
	}
	for _, m := range maps {
		for _, w := range m.Values() {
			if w.SessionID() == sessionID {
				out[w.Status()]++
			}
		}
	}
	return out
}

// MasterLeaveLocal invokes the master-leave hook on all active jobs of the
// given session.
func (s *Scheduler) MasterLeaveLocal(sessionID uuid.UUID) {
	for _, w := range s.active.Values() {
		if w.SessionID() == sessionID {
			w.OnMasterNodeLeft()
		}
	}
}

// rejectJob finishes a never-executed job with an ExecutionRejected error.
func (s *Scheduler) rejectJob(w *Worker, sendReply bool) {
	err := &ExecutionRejectedError{
		SessionID: w.SessionID(),
		JobID:     w.JobID(),
		Reason:    "job was cancelled before execution",
	}
	w.finish(nil, err, sendReply)
}

// cancelJobWorker cancels a worker, counting the cancellation once.
func (s *Scheduler) cancelJobWorker(w *Worker, system bool) {
	if !w.Internal() && !w.IsCancelled() {
		s.canceledCnt.Add(1)
		canceledJobsCounter.Inc()
	}
	w.Cancel(system)
}

func (s *Scheduler) releaseDeployment(dep grid.Deployment) {
	dep.Release()
	if dep.Obsolete() {
		s.deployments.OnUndeployed(dep)
	}
}

func (s *Scheduler) removeFromActive(w *Worker) bool {
	removed := s.active.Remove(w)
	if removed {
		activeJobsGauge.Dec()
	}
	return removed
}

func (s *Scheduler) removeFromPassive(w *Worker) bool {
	removed := s.passive.Remove(w)
	if removed {
		waitingJobsGauge.Dec()
		waitingTimeCounter.Add(w.QueuedTime().Seconds())
	}
	return removed
}

func (s *Scheduler) removeFromHeld(jobID uuid.UUID) {
	s.heldMu.Lock()
	delete(s.heldJobs, jobID)
	s.heldMu.Unlock()
}

func (s *Scheduler) heldCount() int {
	s.heldMu.Lock()
	defer s.heldMu.Unlock()
	return len(s.heldJobs)
}

// onExternalCollision is installed as the policy's external listener; the
// policy calls it to request a new collision pass.
func (s *Scheduler) onExternalCollision() {
	if !s.tryReadLock() {
		log.Debug("Received external collision notification while stopping grid (will ignore)")
		return
	}
	defer s.mu.RUnlock()

	s.HandleCollisions()
}

// HandleCollisions runs one collision pass over snapshots of the passive,
// active and held views. Must be called under the read lock. Passes triggered
// while one is running are coalesced into a rerun instead of recursing.
func (s *Scheduler) HandleCollisions() {
	if s.jobAlwaysActivate {
		return
	}

	if !s.collisionInPass.CompareAndSwap(false, true) {
		s.collisionRerun.Store(true)
		return
	}
	defer s.collisionInPass.Store(false)

	for {
		s.collisionRerun.Store(false)
		s.collisionPass()
		if !s.collisionRerun.Load() {
			return
		}
	}
}

func (s *Scheduler) collisionPass() {
	var passive, active, held []CollisionJobContext

	for _, w := range s.passive.Values() {
		passive = append(passive, &collisionJobContext{w: w, passive: true, sched: s})
	}
	for _, w := range s.active.Values() {
		ctx := &collisionJobContext{w: w, sched: s}
		if w.Held() {
			held = append(held, ctx)
		} else {
			active = append(active, ctx)
		}
	}

	// Policy errors are contained: they never bubble out of the pass.
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Collision policy failed (ignoring pass): %v", r)
		}
	}()

	s.policy.OnCollision(passive, active, held)
}

// cancelFromCollision implements CollisionJobContext.Cancel for both views.
func (s *Scheduler) cancelFromCollision(w *Worker, passive bool) bool {
	s.cancelReqs.PutIfAbsent(w.JobID(), false)

	if passive {
		if s.removeFromPassive(w) {
			s.rejectJob(w, true)
			s.rejectedCnt.Add(1)
			rejectedJobsCounter.Inc()
			return true
		}
		return false
	}

	if s.removeFromActive(w) {
		s.cancelled.Put(w)
		if s.finished.Contains(w.JobID()) {
			// Job has finished concurrently.
			s.cancelled.Remove(w)
		} else {
			s.cancelJobWorker(w, false)
		}
		return true
	}
	return false
}

// onBeforeActivate moves the worker into the active map and screens it
// against cancel requests and a departed originator. Returns true if the job
// is still eligible to run.
func (s *Scheduler) onBeforeActivate(w *Worker) bool {
	s.active.Put(w)
	activeJobsGauge.Inc()

	// Check if the job has been concurrently cancelled, by session or by id.
	sysCancelled, cancelled := s.cancelReqs.Get(w.SessionID())
	if !cancelled {
		sysCancelled, cancelled = s.cancelReqs.Get(w.JobID())
	}

	if cancelled {
		s.removeFromActive(w)

		// Reject even if another goroutine already removed the job: it has
		// never been executed.
		err := &ExecutionRejectedError{
			SessionID: w.SessionID(),
			JobID:     w.JobID(),
			Reason:    "job was cancelled before execution",
		}
		w.finish(nil, err, !sysCancelled)

		return false
	}

	// Verify the originator is still alive before the job gets its runner,
	// for proper master-leave handling.
	if s.cluster.Node(w.TaskNode().ID) == nil && s.removeFromActive(w) {
		s.cancelled.Put(w)

		if !w.OnMasterNodeLeft() {
			log.Warnf("Job is being cancelled because master task node left grid "+
				"(as there is no one waiting for results, job will not be failed over): %s", w.JobID())

			s.cancelJobWorker(w, true)
		}
	}

	return true
}

// executeAsync submits the worker to its executor pool. A pool rejection
// finishes the job with an ExecutionRejected reply.
func (s *Scheduler) executeAsync(w *Worker) bool {
	err := s.pools.Submit(w.ExecutorName(), w.Run)
	if err == nil {
		s.startedCnt.Add(1)
		startedJobsCounter.Inc()
		return true
	}

	s.removeFromActive(w)

	s.rejectedCnt.Add(1)
	rejectedJobsCounter.Inc()

	w.finish(nil, &ExecutionRejectedError{
		SessionID: w.SessionID(),
		JobID:     w.JobID(),
		Reason:    "job has been rejected by the executor pool",
	}, true)

	return false
}

// runSync runs the worker on the calling goroutine, keeping it visible in the
// sync-running view for the duration.
func (s *Scheduler) runSync(w *Worker) {
	s.syncRunning.Put(w)
	defer s.syncRunning.Remove(w)

	w.Run()
}

// ProcessExecuteRequest handles one inbound job execution request. This is
// the hot path: resolve and acquire the deployment, decode the attributes,
// construct and initialize the worker, then dispatch it according to the
// collision mode.
func (s *Scheduler) ProcessExecuteRequest(node *grid.Node, req *ExecuteRequest) {
	log.Debugf("Received job request message [jobID=%s, nodeID=%s]", req.JobID, node.ID)

	var reservation *PartitionsReservation
	if len(req.CacheIDs) > 0 {
		reservation = NewPartitionsReservation(
			s.caches, s.cluster.LocalNode().ID, req.CacheIDs, req.PartitionID, req.TopologyVersion)
	}

	if !s.tryReadLock() {
		log.Debugf("Received job execution request while stopping this node (will ignore): %s", req.JobID)
		return
	}

	// A non-internal job of remote origin runs on this handler goroutine, but
	// only after the read lock is released.
	var runAfter *Worker

	func() {
		defer s.mu.RUnlock()

		endTime := time.Time{}
		if req.Timeout > 0 {
			endTime = req.CreateTime.Add(req.Timeout)
			if endTime.Before(req.CreateTime) {
				// Overflow: treat as no deadline.
				endTime = time.Time{}
			}
		}

		dep := s.resolveDeployment(node, req)
		if dep == nil {
			err := &DeploymentError{
				TaskName:      req.TaskName,
				ClassName:     req.ClassName,
				UserVersion:   req.UserVersion,
				ClassLoaderID: req.ClassLoaderID,
			}
			log.Error(err.Error())
			s.handleRequestError(node, req, err, endTime)
			return
		}

		if !dep.Acquire() {
			err := &DeploymentError{
				TaskName:      req.TaskName,
				ClassName:     req.ClassName,
				UserVersion:   req.UserVersion,
				ClassLoaderID: req.ClassLoaderID,
			}
			log.Error(err.Error())
			s.handleRequestError(node, req, err, endTime)
			return
		}

		// From here every early return must release the deployment; once the
		// worker is constructed the release moves to the finish listener.
		releaseDep := true
		defer func() {
			if releaseDep {
				s.releaseDeployment(dep)
			}
		}()

		ses, jobCtx, err := s.buildSession(node, req, dep, endTime)
		if err != nil {
			deserErr := &DeserializationError{TaskName: req.TaskName, ClassName: req.ClassName, Cause: err}
			log.Error(deserErr.Error())
			s.handleRequestError(node, req, deserErr, endTime)
			return
		}

		w := newWorker(workerParams{
			dep:              dep,
			createTime:       req.CreateTime,
			ses:              ses,
			jobCtx:           jobCtx,
			payload:          req.JobPayload,
			taskNode:         node,
			internal:         req.Internal,
			events:           (*jobEventListener)(s),
			holds:            (*jobHoldListener)(s),
			reservation:      reservation,
			topVer:           req.TopologyVersion,
			execName:         req.ExecutorName,
			interruptTimeout: s.interruptTimeout,
			cluster:          s.cluster,
			messenger:        s.messenger,
			marsh:            s.marsh,
			networkTimeout:   s.cfg.NetworkTimeout,
		})

		// If initialization fails the worker has already finished itself and
		// the deployment release falls to the finish listener.
		releaseDep = false
		if !w.Initialize() {
			return
		}

		switch {
		case req.Internal:
			// Internal jobs are expected to be short and run inside the stop
			// barrier so shutdown cannot race them.
			s.runSync(w)

		case s.jobAlwaysActivate:
			if s.onBeforeActivate(w) {
				if s.cluster.LocalNode().ID == node.ID {
					// Always execute in another goroutine for the local node.
					s.executeAsync(w)
				} else {
					// Runs synchronously on this handler goroutine.
					s.startedCnt.Add(1)
					startedJobsCounter.Inc()
					runAfter = w
				}
			}

		default:
			if old := s.passive.PutIfAbsent(w); old != nil {
				log.Errorf("Received computation request with duplicate job ID (could be network "+
					"malfunction, source node may hang if task timeout was not set) "+
					"[srcNode=%s, jobID=%s, sesID=%s]", node.ID, req.JobID, req.SessionID)
				return
			}
			waitingJobsGauge.Inc()
			s.HandleCollisions()
		}
	}()

	if runAfter != nil {
		runAfter.Run()
	}
}

// resolveDeployment finds the executable artifact for the request: local
// lookup when forced, global resolution otherwise, falling back to scanning
// the in-use task deployments by class loader id.
func (s *Scheduler) resolveDeployment(node *grid.Node, req *ExecuteRequest) grid.Deployment {
	var dep grid.Deployment
	if req.ForceLocalDeployment {
		dep = s.deployments.Local(req.ClassName)
	} else {
		dep = s.deployments.Global(req.DeploymentMode, req.TaskName, req.ClassName,
			req.UserVersion, node.ID, req.ClassLoaderID, req.LoaderParticipants)
	}

	if dep == nil {
		log.Debug("Checking local tasks...")

		for _, used := range s.deployments.UsedDeployments() {
			if used.ClassLoaderID() == req.ClassLoaderID {
				dep = used
				break
			}
		}
	}
	return dep
}

// buildSession decodes the request attributes with the deployment and
// registers the shared task session.
func (s *Scheduler) buildSession(node *grid.Node, req *ExecuteRequest,
	dep grid.Deployment, endTime time.Time,
) (*JobSession, *JobContext, error) {
	siblings := req.Siblings
	if !req.DynamicSiblings && siblings == nil && req.SiblingsBytes != nil {
		if err := s.marsh.Unmarshal(req.SiblingsBytes, &siblings); err != nil {
			return nil, nil, err
		}
	}

	sesAttrs := req.SessionAttrs
	if req.SessionFullSupport && sesAttrs == nil && req.SessionAttrsBytes != nil {
		if err := s.marsh.Unmarshal(req.SessionAttrsBytes, &sesAttrs); err != nil {
			return nil, nil, err
		}
	}

	var topology NodePredicate
	if req.TopologyPredicateBytes != nil {
		if err := s.marsh.Unmarshal(req.TopologyPredicateBytes, &topology); err != nil {
			return nil, nil, err
		}
	}

	jobAttrs := req.JobAttrs
	if jobAttrs == nil && req.JobAttrsBytes != nil {
		if err := s.marsh.Unmarshal(req.JobAttrsBytes, &jobAttrs); err != nil {
			return nil, nil, err
		}
	}

	taskSes := &TaskSession{
		ID:              req.SessionID,
		TaskNodeID:      node.ID,
		TaskName:        req.TaskName,
		ClassName:       req.ClassName,
		TopologyVersion: req.TopologyVersion,
		StartTime:       req.CreateTime,
		EndTime:         endTime,
		FullSupport:     req.SessionFullSupport,
		Internal:        req.Internal,
		ExecutorName:    req.ExecutorName,
		deployment:      dep,
		topology:        topology,
		siblings:        siblings,
		attrs:           sesAttrs,
	}
	if req.SessionFullSupport {
		// Only sessions with full support are shared through the registry;
		// plain sessions live and die with their single job.
		taskSes = s.sessions.Acquire(taskSes)
	}

	ses := &JobSession{TaskSession: taskSes, JobID: req.JobID, sched: s}
	return ses, newJobContext(req.JobID, jobAttrs), nil
}

// handleRequestError reports an error that happened before worker creation
// back to the originator.
func (s *Scheduler) handleRequestError(node *grid.Node, req *ExecuteRequest, cause error, endTime time.Time) {
	sndNode := s.cluster.Node(node.ID)
	if sndNode == nil {
		log.Warnf("Failed to reply to sender node because it left grid [nodeID=%s, jobID=%s]",
			node.ID, req.JobID)
		return
	}

	resp := &ExecuteResponse{
		NodeID:    s.cluster.LocalNode().ID,
		SessionID: req.SessionID,
		JobID:     req.JobID,
		Failure:   failureFrom(cause),
	}

	pool := grid.SystemPool
	if req.Internal {
		pool = grid.ManagementPool
	}

	var err error
	if req.SessionFullSupport {
		// Ordered to preserve order with session attribute traffic.
		timeout := s.cfg.NetworkTimeout
		if !endTime.IsZero() {
			timeout = time.Until(endTime)
			if timeout <= 0 {
				// Ignore the actual timeout and send the response anyway.
				timeout = time.Millisecond
			}
		}
		topic := grid.TopicTask.Sub(req.JobID, resp.NodeID)
		err = s.messenger.SendOrdered(sndNode, topic, resp, pool, timeout)
	} else {
		err = s.messenger.SendToGridTopic(sndNode, grid.TopicTask, resp, pool)
	}

	if err != nil {
		if !s.cluster.Alive(node.ID) || !s.cluster.Ping(node.ID) {
			log.Warnf("Failed to reply to sender node because it left grid [nodeID=%s, jobID=%s]",
				node.ID, req.JobID)
		} else {
			log.Errorf("Error sending reply for job [nodeID=%s, jobID=%s]: %s", sndNode.ID, req.JobID, err)
		}
	}
}

// CancelJob processes a cancel request addressed by job id, session id or
// both. System cancellations produce no response.
func (s *Scheduler) CancelJob(sessionID, jobID uuid.UUID, system bool) {
	if sessionID == uuid.Nil && jobID == uuid.Nil {
		log.Error("Received cancel request without job or session id (will ignore)")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopping && s.cancelOnStop {
		log.Debugf("Received job cancellation request while stopping grid with cancellation "+
			"(will ignore) [sesID=%s, jobID=%s, system=%t]", sessionID, jobID, system)
		return
	}

	// Remember either the job id or the session id; they are unique.
	key := jobID
	if key == uuid.Nil {
		key = sessionID
	}
	s.cancelReqs.PutIfAbsent(key, system)

	matches := func(w *Worker) bool {
		if jobID != uuid.Nil && w.JobID() != jobID {
			return false
		}
		if sessionID != uuid.Nil && w.SessionID() != sessionID {
			return false
		}
		return true
	}

	if jobID == uuid.Nil {
		// Cancellation by session: sweep all maps.
		if !s.jobAlwaysActivate {
			for _, w := range s.passive.Values() {
				if matches(w) {
					s.cancelPassiveJob(w)
				}
			}
		}
		for _, w := range s.active.Values() {
			if matches(w) {
				s.cancelActiveJob(w, system)
			}
		}
		for _, w := range s.syncRunning.Values() {
			if matches(w) {
				s.cancelJobWorker(w, system)
			}
		}
		return
	}

	if !s.jobAlwaysActivate {
		if w := s.passive.Get(jobID); w != nil && matches(w) && s.cancelPassiveJob(w) {
			return
		}
	}

	if w := s.active.Get(jobID); w != nil && matches(w) {
		s.cancelActiveJob(w, system)
		return
	}

	if w := s.syncRunning.Get(jobID); w != nil && matches(w) {
		s.cancelJobWorker(w, system)
	}
}

// cancelPassiveJob removes a job that never activated; the worker is not
// dispatched and only the cancelled counter moves.
func (s *Scheduler) cancelPassiveJob(w *Worker) bool {
	if s.removeFromPassive(w) {
		log.Debugf("Job has been cancelled before activation: %s", w.JobID())

		s.canceledCnt.Add(1)
		canceledJobsCounter.Inc()

		return true
	}
	return false
}

// cancelActiveJob moves an active job to the cancelled map, unless it already
// finished concurrently.
func (s *Scheduler) cancelActiveJob(w *Worker, system bool) {
	if s.removeFromActive(w) {
		s.cancelled.Put(w)

		if s.finished.Contains(w.JobID()) {
			// Job has finished concurrently.
			s.cancelled.Remove(w)
		} else {
			// No reply, since it is not a cancel from collision.
			s.cancelJobWorker(w, system)
		}
	}
}

// processSessionAttrRequest applies a session attribute update pushed by the
// task originator.
func (s *Scheduler) processSessionAttrRequest(nodeID uuid.UUID, req *SessionAttrRequest) {
	if !s.tryReadLock() {
		log.Debugf("Received job session request while stopping grid (will ignore): %s", req.SessionID)
		return
	}
	defer s.mu.RUnlock()

	ses := s.sessions.Get(req.SessionID)
	if ses == nil {
		log.Debugf("Received job session request for non-existing session: %s", req.SessionID)
		return
	}

	attrs := req.Attrs
	if attrs == nil && req.AttrsBytes != nil {
		if err := s.marsh.Unmarshal(req.AttrsBytes, &attrs); err != nil {
			log.Errorf("Failed to deserialize session attributes [sesID=%s, nodeID=%s]: %s",
				req.SessionID, nodeID, err)
			return
		}
	}

	ses.setAttributesLocal(attrs)

	s.onChangeTaskAttributes(req.SessionID, req.JobID, attrs)
}

// onChangeTaskAttributes re-evaluates collisions when an attribute the policy
// cares about changed on a still-passive job.
func (s *Scheduler) onChangeTaskAttributes(sessionID, jobID uuid.UUID, attrs map[string]interface{}) {
	if s.jobAlwaysActivate {
		return
	}

	aware, ok := s.policy.(AttributeAwarePolicy)
	if !ok {
		return
	}

	w := s.passive.Get(jobID)
	if w == nil {
		return
	}

	for _, key := range aware.AttributeKeys() {
		if _, present := attrs[key]; present {
			s.HandleCollisions()
			return
		}
	}
}

// SetSessionAttributes pushes job-side attribute changes to the task
// originator over the ordered channel. Refused once the session deadline has
// passed.
func (s *Scheduler) SetSessionAttributes(ses *JobSession, attrs map[string]interface{}) error {
	if !ses.FullSupport {
		return errors.New("session attributes require full session support")
	}

	timeout := s.cfg.NetworkTimeout
	if ses.HasDeadline() {
		timeout = time.Until(ses.EndTime)
		if timeout <= 0 {
			log.Warnf("Task execution timed out (remote session attributes won't be set): %s", ses.ID)
			return nil
		}
	}

	taskNode := s.cluster.Node(ses.TaskNodeID)
	if taskNode == nil {
		return errors.Errorf("node that originated task execution has left grid: %s", ses.TaskNodeID)
	}

	data, err := s.marsh.Marshal(attrs)
	if err != nil {
		return errors.WithStack(err)
	}

	req := &SessionAttrRequest{SessionID: ses.ID, JobID: ses.JobID, AttrsBytes: data}
	topic := grid.TopicTask.Sub(ses.JobID, s.cluster.LocalNode().ID)

	// Always ordered to preserve attribute order within the session.
	return s.messenger.SendOrdered(taskNode, topic, req, grid.SystemPool, timeout)
}

// RequestJobSiblings asks the task originator for the current sibling list of
// the session, waiting up to the network timeout.
func (s *Scheduler) RequestJobSiblings(ses *TaskSession) ([]JobSibling, error) {
	taskNode := s.cluster.Node(ses.TaskNodeID)
	if taskNode == nil {
		return nil, errors.Errorf("node that originated task execution has left grid: %s", ses.TaskNodeID)
	}

	type outcome struct {
		siblings []JobSibling
		err      error
	}
	resultCh := make(chan outcome, 1)
	deliver := func(o outcome) {
		select {
		case resultCh <- o:
		default:
		}
	}

	// Responses arrive on a topic unique to this request.
	topic := grid.TopicJobSiblings.Sub(ses.ID, s.topicIDGen.Add(1))

	msgListener := &siblingsResponseListener{
		taskNodeID: ses.TaskNodeID,
		onResponse: func(res *SiblingsResponse) {
			deliver(outcome{siblings: res.Siblings})
		},
		onError: func(err error) {
			deliver(outcome{err: err})
		},
	}
	discoListener := &nodeLeftListener{
		nodeID: ses.TaskNodeID,
		onLeft: func() {
			deliver(outcome{err: errors.Errorf(
				"node that originated task execution has left grid: %s", ses.TaskNodeID)})
		},
	}

	s.messenger.AddListener(topic, msgListener)
	defer s.messenger.RemoveListener(topic, msgListener)

	s.cluster.AddEventListener(discoListener, grid.EventNodeLeft, grid.EventNodeFailed)
	defer s.cluster.RemoveEventListener(discoListener)

	req := &SiblingsRequest{SessionID: ses.ID, ResponseTopic: topic}
	if err := s.messenger.SendToGridTopic(taskNode, grid.TopicJobSiblings, req, grid.SystemPool); err != nil {
		return nil, errors.WithStack(err)
	}

	// The node may have left before the event listener was installed.
	if s.cluster.Node(ses.TaskNodeID) == nil {
		return nil, errors.Errorf("node that originated task execution has left grid: %s", ses.TaskNodeID)
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		ses.setSiblings(res.siblings)
		return res.siblings, nil
	case <-time.After(s.cfg.NetworkTimeout):
		return nil, errors.Errorf("timed out waiting for job siblings "+
			"(consider increasing 'networkTimeout' configuration property) [sesID=%s, timeout=%s]",
			ses.ID, s.cfg.NetworkTimeout)
	}
}

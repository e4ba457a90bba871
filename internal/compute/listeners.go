package compute

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/embergridproject/embergrid/internal/grid"
)

// jobExecutionListener handles inbound execute requests on the JOB topic.
type jobExecutionListener struct {
	s *Scheduler
}

func (l *jobExecutionListener) OnMessage(nodeID uuid.UUID, msg interface{}) {
	req, ok := msg.(*ExecuteRequest)
	if !ok {
		log.Warnf("Received unexpected message on job topic (ignoring): %T", msg)
		return
	}

	node := l.s.cluster.Node(nodeID)
	if node == nil || !l.s.cluster.Alive(nodeID) {
		log.Warnf("Received job request message from unknown node (ignoring) [jobID=%s, nodeID=%s]",
			req.JobID, nodeID)
		return
	}

	l.s.ProcessExecuteRequest(node, req)
}

// jobCancelListener handles task and job cancellations on the JOB_CANCEL topic.
type jobCancelListener struct {
	s *Scheduler
}

func (l *jobCancelListener) OnMessage(nodeID uuid.UUID, msg interface{}) {
	req, ok := msg.(*CancelRequest)
	if !ok {
		log.Warnf("Received unexpected message on cancel topic (ignoring): %T", msg)
		return
	}

	log.Debugf("Received job cancel request [sesID=%s, jobID=%s, nodeID=%s]",
		req.SessionID, req.JobID, nodeID)

	l.s.CancelJob(req.SessionID, req.JobID, req.System)
}

// jobSessionListener handles session attribute requests, both on the fixed
// task topic and on per-job topics. Other task traffic shares these topics
// and is skipped.
type jobSessionListener struct {
	s *Scheduler
}

func (l *jobSessionListener) OnMessage(nodeID uuid.UUID, msg interface{}) {
	req, ok := msg.(*SessionAttrRequest)
	if !ok {
		return
	}

	log.Debugf("Received session attribute request message [sesID=%s, nodeID=%s]", req.SessionID, nodeID)

	l.s.processSessionAttrRequest(nodeID, req)
}

// jobDiscoveryListener reacts to topology events: departed originators drain
// their jobs, and a full round of metrics updates re-runs the collision pass
// so the policy can react to observed global load.
type jobDiscoveryListener struct {
	s *Scheduler
}

func (l *jobDiscoveryListener) OnEvent(event grid.Event) {
	s := l.s
	runCollisions := false

	switch event.Type {
	case grid.EventNodeLeft, grid.EventNodeFailed:
		nodeID := event.Node.ID

		if !s.jobAlwaysActivate {
			for _, w := range s.passive.Values() {
				if w.TaskNode().ID == nodeID && s.removeFromPassive(w) {
					log.Warnf("Task node left grid (job will not be activated) [nodeID=%s, jobID=%s]",
						nodeID, w.JobID())
				}
			}
		}

		for _, w := range s.active.Values() {
			if w.TaskNode().ID != nodeID || w.IsFinishing() || !s.removeFromActive(w) {
				continue
			}
			s.cancelled.Put(w)

			if s.finished.Contains(w.JobID()) {
				// Job has finished concurrently.
				s.cancelled.Remove(w)
			} else if !w.OnMasterNodeLeft() {
				log.Warnf("Job is being cancelled because master task node left grid "+
					"(as there is no one waiting for results, job will not be failed over): %s", w.JobID())

				s.cancelJobWorker(w, true)
			}
		}

		runCollisions = true

	case grid.EventNodeMetricsUpdated:
		// Less-than-equal rather than equal guards against topology changes.
		if int64(s.cluster.Size()) <= s.metricsUpdateCntr.Add(1) {
			s.metricsUpdateCntr.Store(0)
			runCollisions = true
		}
	}

	if !runCollisions {
		return
	}

	if !s.tryReadLock() {
		log.Debugf("Skipped collision handling on discovery event (node is stopping): %v", event.Type)
		return
	}
	defer s.mu.RUnlock()

	if !s.jobAlwaysActivate {
		s.HandleCollisions()
	}
}

// siblingsResponseListener receives the reply of one siblings request.
type siblingsResponseListener struct {
	taskNodeID uuid.UUID
	onResponse func(res *SiblingsResponse)
	onError    func(err error)
}

func (l *siblingsResponseListener) OnMessage(nodeID uuid.UUID, msg interface{}) {
	res, ok := msg.(*SiblingsResponse)
	if !ok {
		l.onError(errorsUnexpectedMessage(msg))
		return
	}
	if nodeID != l.taskNodeID {
		l.onError(errorsUnexpectedSender(l.taskNodeID, nodeID))
		return
	}
	l.onResponse(res)
}

// nodeLeftListener fires once when a specific node leaves or fails.
type nodeLeftListener struct {
	nodeID uuid.UUID
	onLeft func()
}

func (l *nodeLeftListener) OnEvent(event grid.Event) {
	if event.Node.ID == l.nodeID {
		l.onLeft()
	}
}

// jobEventListener receives worker lifecycle callbacks and maintains the
// scheduler maps, histories and metrics.
type jobEventListener Scheduler

func (l *jobEventListener) scheduler() *Scheduler {
	return (*Scheduler)(l)
}

func (l *jobEventListener) onJobQueued(w *Worker) {
	s := l.scheduler()

	if w.Session().FullSupport {
		// Session attribute requests for this job arrive on its own topic.
		s.messenger.AddListener(w.jobTopic(), s.sessionListener)
	}
}

func (l *jobEventListener) onJobStarted(w *Worker) {
	s := l.scheduler()

	log.Debugf("Received onJobStarted() callback: %s", w.JobID())

	if w.Session().HasDeadline() {
		s.timeouts.Add(w)
	}
}

func (l *jobEventListener) onBeforeResponseSent(w *Worker) {
	s := l.scheduler()

	log.Debugf("Received onBeforeResponseSent() callback: %s", w.JobID())

	if w.Session().FullSupport {
		s.messenger.RemoveListener(w.jobTopic(), s.sessionListener)
	}
}

func (l *jobEventListener) onJobFinished(w *Worker) {
	s := l.scheduler()

	log.Debugf("Received onJobFinished() callback: %s", w.JobID())

	ses := w.Session()

	// Last job of the task on this node closes the shared session.
	if ses.FullSupport && s.sessions.Release(ses.ID) {
		ses.onClosed()
	}

	if ses.HasDeadline() {
		s.timeouts.Remove(w)
	}

	s.releaseDeployment(w.dep)

	s.finished.Add(w.JobID())

	if !w.Internal() {
		s.finishedCnt.Add(1)
		finishedJobsCounter.Inc()
		executionTimeCounter.Add(w.ExecuteTime().Seconds())

		if s.jobAlwaysActivate {
			if !s.removeFromActive(w) {
				s.cancelled.Remove(w)
			}
			s.removeFromHeld(w.JobID())
		} else {
			if !s.tryReadLock() {
				log.Debug("Skipping collision handling on job finish (node is stopping)")
				return
			}
			defer s.mu.RUnlock()

			if !s.removeFromActive(w) {
				s.cancelled.Remove(w)
			}
			s.removeFromHeld(w.JobID())

			s.HandleCollisions()
		}
	}

	if s.perfStats.Enabled() {
		s.perfStats.Job(ses.ID, w.QueuedTime(), w.StartTime(), w.ExecuteTime(), w.IsTimedOut())
	}
}

// jobHoldListener maintains the held set alongside the active map.
type jobHoldListener Scheduler

func (l *jobHoldListener) scheduler() *Scheduler {
	return (*Scheduler)(l)
}

func (l *jobHoldListener) onHeld(w *Worker) bool {
	s := l.scheduler()

	log.Debugf("Received onHeld() callback: %s", w.JobID())

	if w.Internal() {
		return true
	}

	held := false
	if s.active.Contains(w.JobID()) {
		s.heldMu.Lock()
		s.heldJobs[w.JobID()] = struct{}{}
		s.heldMu.Unlock()
		held = true

		if !s.active.Contains(w.JobID()) {
			// Job completed concurrently and cannot be held.
			s.removeFromHeld(w.JobID())
			held = false
		}
	}
	return held
}

func (l *jobHoldListener) onUnheld(w *Worker) bool {
	s := l.scheduler()

	log.Debugf("Received onUnheld() callback: %s", w.JobID())

	if w.Internal() {
		return true
	}

	s.heldMu.Lock()
	_, ok := s.heldJobs[w.JobID()]
	delete(s.heldJobs, w.JobID())
	s.heldMu.Unlock()
	return ok
}

package compute

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/compute/configuration"
	"github.com/embergridproject/embergrid/internal/grid"
	"github.com/embergridproject/embergrid/internal/grid/fake"
)

// blockingJob runs until released or its context is cancelled.
type blockingJob struct {
	started chan struct{}
	release chan struct{}
	ran     atomic.Bool
}

func newBlockingJob() *blockingJob {
	return &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
}

func (j *blockingJob) Execute(ctx context.Context) (interface{}, error) {
	j.ran.Store(true)
	close(j.started)
	select {
	case <-j.release:
		return "done", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// funcJob delegates to a function.
type funcJob struct {
	fn func(ctx context.Context) (interface{}, error)
}

func (j *funcJob) Execute(ctx context.Context) (interface{}, error) {
	return j.fn(ctx)
}

// cancelAwareJob exits promptly on the cooperative cancel signal.
type cancelAwareJob struct {
	started   chan struct{}
	cancelled chan struct{}
}

func newCancelAwareJob() *cancelAwareJob {
	return &cancelAwareJob{started: make(chan struct{}), cancelled: make(chan struct{})}
}

func (j *cancelAwareJob) Execute(context.Context) (interface{}, error) {
	close(j.started)
	<-j.cancelled
	return nil, context.Canceled
}

func (j *cancelAwareJob) OnCancel() {
	select {
	case <-j.cancelled:
	default:
		close(j.cancelled)
	}
}

// holdingJob suspends itself via its job context, then resumes on demand.
type holdingJob struct {
	jobCtx *JobContext
	held   chan struct{}
	resume chan struct{}
}

func newHoldingJob() *holdingJob {
	return &holdingJob{held: make(chan struct{}), resume: make(chan struct{})}
}

func (j *holdingJob) SetJobContext(jobCtx *JobContext) {
	j.jobCtx = jobCtx
}

func (j *holdingJob) Execute(context.Context) (interface{}, error) {
	if !j.jobCtx.Hold() {
		return nil, nil
	}
	close(j.held)
	<-j.resume
	j.jobCtx.Unhold()
	return nil, nil
}

type schedulerFixture struct {
	t           *testing.T
	cluster     *fake.Cluster
	messenger   *fake.Messenger
	deployments *fake.DeploymentRegistry
	caches      *fake.CacheRegistry
	timeouts    *grid.TimeoutProcessor
	distCfg     *grid.LocalConfig
	dep         *fake.Deployment
	remote      *grid.Node
	sched       *Scheduler
}

func newSchedulerFixture(t *testing.T, mutate func(params *SchedulerParams)) *schedulerFixture {
	cluster := fake.NewCluster()
	remote := cluster.AddNode()
	messenger := fake.NewMessenger(cluster.LocalNode().ID)
	deployments := fake.NewDeploymentRegistry()
	caches := fake.NewCacheRegistry()
	timeouts := grid.NewTimeoutProcessor()
	distCfg := grid.NewLocalConfig()
	dep := fake.NewDeployment(false)

	params := SchedulerParams{
		Config: configuration.SchedulerConfiguration{
			NetworkTimeout:          time.Second,
			FailureDetectionTimeout: 100 * time.Millisecond,
			StopTimeout:             2 * time.Second,
		},
		Cluster:     cluster,
		Messenger:   messenger,
		Marshaler:   fake.GobMarshaler{},
		Deployments: deployments,
		Timeouts:    timeouts,
		Caches:      caches,
		PerfStats:   grid.NopStatistics{},
		DistConfig:  distCfg,
	}
	if mutate != nil {
		mutate(&params)
	}

	sched := NewScheduler(params)
	sched.Start()

	f := &schedulerFixture{
		t:           t,
		cluster:     cluster,
		messenger:   messenger,
		deployments: deployments,
		caches:      caches,
		timeouts:    timeouts,
		distCfg:     distCfg,
		dep:         dep,
		remote:      remote,
		sched:       sched,
	}
	t.Cleanup(func() {
		sched.Stop(true)
		timeouts.Stop()
	})
	return f
}

// registerJob binds a class name to one job instance on the shared deployment.
func (f *schedulerFixture) registerJob(className string, job Job) {
	f.dep.Register(className, func() interface{} { return job })
	f.deployments.AddGlobal(className, f.dep)
}

// request builds a minimal execute request originating from the remote node.
func (f *schedulerFixture) request(className string) *ExecuteRequest {
	return &ExecuteRequest{
		SessionID:     uuid.New(),
		JobID:         uuid.New(),
		TaskName:      className,
		ClassName:     className,
		ClassLoaderID: f.dep.ClassLoaderID(),
		CreateTime:    time.Now(),
	}
}

// responses returns the execute responses recorded on the common task topic.
func (f *schedulerFixture) responses() []*ExecuteResponse {
	var out []*ExecuteResponse
	for _, sent := range f.messenger.SentTo(grid.TopicTask) {
		if resp, ok := sent.Msg.(*ExecuteResponse); ok {
			out = append(out, resp)
		}
	}
	return out
}

// responseFor returns the recorded response of one job, or nil.
func (f *schedulerFixture) responseFor(jobID uuid.UUID) *ExecuteResponse {
	for _, resp := range f.responses() {
		if resp.JobID == jobID {
			return resp
		}
	}
	return nil
}

// nopPolicy leaves every job passive.
type nopPolicy struct {
	passes atomic.Int64
}

func (p *nopPolicy) OnCollision(_, _, _ []CollisionJobContext) {
	p.passes.Add(1)
}

// capPolicy activates jobs until the running count reaches the cap, then
// cancels the rest of the queue.
type capPolicy struct {
	cap int
}

func (p *capPolicy) OnCollision(passive, active, _ []CollisionJobContext) {
	running := len(active)
	for _, ctx := range passive {
		if running < p.cap {
			if ctx.Activate() {
				running++
			}
		} else {
			ctx.Cancel()
		}
	}
}

package fake

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/embergridproject/embergrid/internal/grid"
)

// Deployment is a refcounted in-memory deployment with registered constructors.
type Deployment struct {
	classLoaderID uuid.UUID
	userVersion   string
	local         bool

	mu       sync.Mutex
	classes  map[string]grid.JobConstructor
	refs     atomic.Int64
	obsolete atomic.Bool
}

func NewDeployment(local bool) *Deployment {
	return &Deployment{
		classLoaderID: uuid.New(),
		userVersion:   "0",
		local:         local,
		classes:       map[string]grid.JobConstructor{},
	}
}

// Register binds a class name to a job constructor.
func (d *Deployment) Register(className string, ctor grid.JobConstructor) *Deployment {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes[className] = ctor
	return d
}

// Undeploy marks the deployment obsolete; Acquire fails afterwards.
func (d *Deployment) Undeploy() {
	d.obsolete.Store(true)
}

// Refs returns the current reference count.
func (d *Deployment) Refs() int64 {
	return d.refs.Load()
}

func (d *Deployment) ClassLoaderID() uuid.UUID { return d.classLoaderID }

func (d *Deployment) UserVersion() string { return d.userVersion }

func (d *Deployment) Local() bool { return d.local }

func (d *Deployment) Acquire() bool {
	if d.obsolete.Load() {
		return false
	}
	d.refs.Add(1)
	return true
}

func (d *Deployment) Release() {
	d.refs.Add(-1)
}

func (d *Deployment) Obsolete() bool {
	return d.obsolete.Load()
}

func (d *Deployment) Resolve(className string) (grid.JobConstructor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctor, ok := d.classes[className]
	return ctor, ok
}

// DeploymentRegistry resolves fake deployments by class name.
type DeploymentRegistry struct {
	mu         sync.Mutex
	local      map[string]*Deployment
	global     map[string]*Deployment
	used       map[string]grid.Deployment
	undeployed []grid.Deployment
}

func NewDeploymentRegistry() *DeploymentRegistry {
	return &DeploymentRegistry{
		local:  map[string]*Deployment{},
		global: map[string]*Deployment{},
		used:   map[string]grid.Deployment{},
	}
}

func (r *DeploymentRegistry) AddLocal(className string, dep *Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local[className] = dep
}

func (r *DeploymentRegistry) AddGlobal(className string, dep *Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global[className] = dep
}

func (r *DeploymentRegistry) AddUsed(taskName string, dep grid.Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used[taskName] = dep
}

func (r *DeploymentRegistry) Local(className string) grid.Deployment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dep, ok := r.local[className]; ok {
		return dep
	}
	return nil
}

func (r *DeploymentRegistry) Global(_ grid.DeploymentMode, _, className, _ string,
	_, _ uuid.UUID, _ map[uuid.UUID]uuid.UUID,
) grid.Deployment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dep, ok := r.global[className]; ok {
		return dep
	}
	return nil
}

func (r *DeploymentRegistry) UsedDeployments() map[string]grid.Deployment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]grid.Deployment, len(r.used))
	for k, v := range r.used {
		out[k] = v
	}
	return out
}

func (r *DeploymentRegistry) OnUndeployed(dep grid.Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.undeployed = append(r.undeployed, dep)
}

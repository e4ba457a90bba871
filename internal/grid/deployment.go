package grid

import "github.com/google/uuid"

// DeploymentMode mirrors the host's code-deployment strategies. Local
// components treat it as opaque routing information for the registry.
type DeploymentMode int

const (
	DeploymentModePrivate DeploymentMode = iota
	DeploymentModeIsolated
	DeploymentModeShared
	DeploymentModeContinuous
)

// JobConstructor produces a fresh executable instance for a deployed class.
// The returned value is handed to the marshaller to restore job state.
type JobConstructor func() interface{}

// Deployment is a resolved executable artifact with reference counting.
// Acquire returns false once the deployment has been undeployed; every
// successful Acquire must be paired with exactly one Release.
type Deployment interface {
	ClassLoaderID() uuid.UUID
	UserVersion() string
	Local() bool
	Acquire() bool
	Release()
	// Obsolete reports whether the deployment was undeployed and should be
	// cleaned up once the reference count drops to zero.
	Obsolete() bool
	// Resolve looks up the constructor registered for the class name.
	Resolve(className string) (JobConstructor, bool)
}

// DeploymentRegistry resolves deployments for inbound execute requests.
type DeploymentRegistry interface {
	// Local returns the locally deployed artifact for the class, if any.
	Local(className string) Deployment
	// Global resolves a peer-deployed artifact.
	Global(mode DeploymentMode, taskName, className, userVersion string,
		senderID, classLoaderID uuid.UUID, participants map[uuid.UUID]uuid.UUID) Deployment
	// UsedDeployments lists task deployments currently in use, keyed by task name.
	UsedDeployments() map[string]Deployment
	// OnUndeployed notifies the host that an obsolete deployment was fully released.
	OnUndeployed(dep Deployment)
}

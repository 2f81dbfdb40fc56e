package orchestrator

import (
	"context"
	"time"
)

// HealthCheck describes how a service's readiness is determined. Exactly
// one method applies, in priority order: URL, then Cmd, then run-state
// with a settle delay.
type HealthCheck struct {
	// URL is polled with HTTP GET until it returns a 2xx status.
	URL string
	// Cmd is executed inside the container until it exits zero.
	Cmd []string
}

// ServiceSpec declares one externally-managed backend service. A spec is
// immutable once its process starts and is reused verbatim on restart:
// recovery must resume from the declaration, never from the dead process.
type ServiceSpec struct {
	Name      string
	Image     string
	Ports     map[string]int // container port ("6379" or "6379/tcp") -> host port
	Env       map[string]string
	Health    HealthCheck
	DependsOn []string
}

// ProcessState is the lifecycle state of a tracked service process.
type ProcessState uint8

const (
	StateAbsent ProcessState = iota
	StateStarting
	StateHealthy
	StateStopped
	// StateKilled is only reachable via explicit fault injection,
	// never via a normal stop.
	StateKilled
)

func (s ProcessState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateStopped:
		return "stopped"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// process is the orchestrator's bookkeeping record for one service.
type process struct {
	spec  ServiceSpec
	state ProcessState
}

// ContainerInfo is the run-state snapshot the orchestrator polls.
type ContainerInfo struct {
	Exists bool
	Status string // "running", "exited", "dead", ...
}

// Running reports whether the container exists and is in the running state.
func (i ContainerInfo) Running() bool {
	return i.Exists && i.Status == "running"
}

// CreateConfig is the container creation request passed to the runtime.
type CreateConfig struct {
	Name    string
	Image   string
	Env     []string
	Network string
	Ports   map[string]int // container -> host
}

// ContainerAPI is the narrow slice of the container runtime the
// orchestrator depends on. The Docker Engine adapter implements it; tests
// use a fake.
type ContainerAPI interface {
	ContainerCreate(ctx context.Context, cfg CreateConfig) error
	ContainerStart(ctx context.Context, name string) error
	ContainerStop(ctx context.Context, name string, timeout time.Duration) error
	ContainerKill(ctx context.Context, name string) error
	ContainerRemove(ctx context.Context, name string, force bool) error
	ContainerInspect(ctx context.Context, name string) (ContainerInfo, error)
	ContainerExec(ctx context.Context, name string, cmd []string) (int, error)
	ContainerLogs(ctx context.Context, name string, tail int) (string, error)
	ImagePull(ctx context.Context, image string) error
	NetworkCreate(ctx context.Context, name string) error
	NetworkRemove(ctx context.Context, name string) error
}

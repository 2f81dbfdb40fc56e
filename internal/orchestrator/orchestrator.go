// Package orchestrator owns the lifecycle of the backend service
// containers a memory adapter runs against: dependency-ordered startup,
// health polling, graceful teardown, and fault injection by name.
//
// Kill and Start are deliberately asymmetric: Kill retains the process
// record so Restart can rebuild the service from its original declarative
// spec. Recovery testing is about resuming from a crashed state with
// nothing but the declaration.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultNetwork is the isolated bridge network bench services join.
	DefaultNetwork = "membench-net"

	defaultPollInterval = time.Second
	defaultSettleDelay  = 2 * time.Second
	cleanupStopTimeout  = 5 * time.Second
)

// Orchestrator owns a named set of service processes and their isolation
// boundary (a private bridge network). The registry is mutated only by
// Start/Stop/Kill/Restart, each called from a single logical owner.
type Orchestrator struct {
	api     ContainerAPI
	httpc   *http.Client
	log     *slog.Logger
	network string
	prefix  string

	pollInterval time.Duration
	settleDelay  time.Duration

	mu        sync.Mutex
	procs     map[string]*process
	networkUp bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNetworkName overrides the bench network name.
func WithNetworkName(name string) Option {
	return func(o *Orchestrator) { o.network = name }
}

// WithNamePrefix overrides the container name prefix.
func WithNamePrefix(prefix string) Option {
	return func(o *Orchestrator) { o.prefix = prefix }
}

// WithPollInterval sets the health poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithSettleDelay sets the delay applied after a run-state health check
// first observes the container running.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settleDelay = d }
}

// WithHTTPClient overrides the client used for HTTP health polling.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.httpc = c }
}

// New creates an Orchestrator over the given container runtime.
func New(api ContainerAPI, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:          api,
		httpc:        &http.Client{Timeout: 5 * time.Second},
		log:          slog.With("component", "orchestrator"),
		network:      DefaultNetwork,
		prefix:       "membench-",
		pollInterval: defaultPollInterval,
		settleDelay:  defaultSettleDelay,
		procs:        make(map[string]*process),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ContainerName returns the namespaced container name for a logical
// service name. Other services on the bench network reach it under this
// name via Docker DNS.
func (o *Orchestrator) ContainerName(name string) string {
	return o.prefix + name
}

// Start launches a service from its spec and blocks until it is healthy
// or the timeout elapses. Any stale container with the same logical name
// is removed first. The failure modes are a StartupTimeoutError carrying
// the last observed health error, or a PortConflictError when the host
// port is already bound.
func (o *Orchestrator) Start(ctx context.Context, spec ServiceSpec, timeout time.Duration) error {
	cname := o.ContainerName(spec.Name)

	// Remove any stale container left over from a previous run.
	_ = o.api.ContainerRemove(ctx, cname, true)

	if err := o.ensureNetwork(ctx); err != nil {
		return err
	}

	if err := o.createAndStart(ctx, spec, cname); err != nil {
		return err
	}

	// Track before the health wait so a timeout never leaves an orphaned
	// container outside the registry.
	o.mu.Lock()
	o.procs[spec.Name] = &process{spec: spec, state: StateStarting}
	o.mu.Unlock()

	o.log.Info("service started, waiting for health", "service", spec.Name, "image", spec.Image)

	if err := o.waitHealthy(ctx, spec, cname, timeout); err != nil {
		return err
	}

	o.setState(spec.Name, StateHealthy)
	o.log.Info("service healthy", "service", spec.Name)
	return nil
}

// StartAll starts the given specs in dependency order. A spec never starts
// before everything it depends on is healthy.
func (o *Orchestrator) StartAll(ctx context.Context, specs []ServiceSpec, timeout time.Duration) error {
	ordered, err := orderByDependency(specs)
	if err != nil {
		return err
	}
	for _, spec := range ordered {
		if err := o.Start(ctx, spec, timeout); err != nil {
			return fmt.Errorf("start %q: %w", spec.Name, err)
		}
	}
	return nil
}

// Stop attempts a graceful shutdown within timeout, escalating to a
// forced kill if the graceful path errors, then removes the container.
// Stopping an untracked name is a no-op.
func (o *Orchestrator) Stop(ctx context.Context, name string, timeout time.Duration) error {
	o.mu.Lock()
	_, tracked := o.procs[name]
	o.mu.Unlock()
	if !tracked {
		return nil
	}

	cname := o.ContainerName(name)
	if err := o.api.ContainerStop(ctx, cname, timeout); err != nil {
		o.log.Warn("graceful stop failed, killing", "service", name, "err", err)
		if err := o.api.ContainerKill(ctx, cname); err != nil {
			o.log.Warn("kill after failed stop", "service", name, "err", err)
		}
	}

	// The record stays in stopped state until removal succeeds, so a
	// failed removal leaves an inspectable entry instead of a phantom.
	o.setState(name, StateStopped)
	if err := o.api.ContainerRemove(ctx, cname, true); err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}

	o.mu.Lock()
	delete(o.procs, name)
	o.mu.Unlock()
	return nil
}

// Kill sends an unconditional SIGKILL to simulate a crash. The process
// record is retained on purpose so Restart can rebuild the service from
// its stored spec; kill must not clean up bookkeeping.
func (o *Orchestrator) Kill(ctx context.Context, name string) error {
	o.mu.Lock()
	proc, tracked := o.procs[name]
	o.mu.Unlock()
	if !tracked {
		return fmt.Errorf("kill %q: service not tracked", name)
	}

	if err := o.api.ContainerKill(ctx, o.ContainerName(name)); err != nil {
		return fmt.Errorf("kill %q: %w", name, err)
	}

	o.mu.Lock()
	proc.state = StateKilled
	o.mu.Unlock()

	o.log.Info("service killed", "service", name)
	return nil
}

// Restart discards the dead process record and re-runs Start from the
// originally stored spec. Configuration is never re-derived from the
// possibly-dead live process.
func (o *Orchestrator) Restart(ctx context.Context, name string, timeout time.Duration) error {
	o.mu.Lock()
	proc, tracked := o.procs[name]
	var spec ServiceSpec
	if tracked {
		spec = proc.spec
		delete(o.procs, name)
	}
	o.mu.Unlock()
	if !tracked {
		return fmt.Errorf("restart %q: no stored spec", name)
	}

	// Start removes the dead container itself; nothing else to salvage.
	o.log.Info("restarting service from stored spec", "service", name)
	return o.Start(ctx, spec, timeout)
}

// IsAlive is a non-blocking liveness probe. It returns false, never an
// error, for any inspection failure.
func (o *Orchestrator) IsAlive(ctx context.Context, name string) bool {
	o.mu.Lock()
	_, tracked := o.procs[name]
	o.mu.Unlock()
	if !tracked {
		return false
	}
	info, err := o.api.ContainerInspect(ctx, o.ContainerName(name))
	if err != nil {
		return false
	}
	return info.Running()
}

// State returns the tracked lifecycle state for a logical name.
func (o *Orchestrator) State(name string) ProcessState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if proc, ok := o.procs[name]; ok {
		return proc.state
	}
	return StateAbsent
}

// ServiceLogs returns the tail of a tracked service's logs, for failure
// diagnostics. Untracked names yield an empty string.
func (o *Orchestrator) ServiceLogs(ctx context.Context, name string, tail int) string {
	o.mu.Lock()
	_, tracked := o.procs[name]
	o.mu.Unlock()
	if !tracked {
		return ""
	}
	out, err := o.api.ContainerLogs(ctx, o.ContainerName(name), tail)
	if err != nil {
		return ""
	}
	return out
}

// CleanupAll stops and removes every tracked container and the bench
// network, best-effort. Individual failures are logged and never abort
// the sweep: a failed run must not leave orphans blocking the next one.
func (o *Orchestrator) CleanupAll(ctx context.Context) {
	o.mu.Lock()
	names := make([]string, 0, len(o.procs))
	for name := range o.procs {
		names = append(names, name)
	}
	o.procs = make(map[string]*process)
	networkUp := o.networkUp
	o.networkUp = false
	o.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		cname := o.ContainerName(name)
		if err := o.api.ContainerStop(ctx, cname, cleanupStopTimeout); err != nil {
			o.log.Warn("cleanup stop failed", "service", name, "err", err)
		}
		if err := o.api.ContainerRemove(ctx, cname, true); err != nil {
			o.log.Warn("cleanup remove failed", "service", name, "err", err)
		}
	}

	if networkUp {
		if err := o.api.NetworkRemove(ctx, o.network); err != nil {
			o.log.Warn("cleanup network remove failed", "network", o.network, "err", err)
		}
	}
}

func (o *Orchestrator) ensureNetwork(ctx context.Context) error {
	o.mu.Lock()
	up := o.networkUp
	o.mu.Unlock()
	if up {
		return nil
	}
	if err := o.api.NetworkCreate(ctx, o.network); err != nil {
		return fmt.Errorf("create network %q: %w", o.network, err)
	}
	o.mu.Lock()
	o.networkUp = true
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) createAndStart(ctx context.Context, spec ServiceSpec, cname string) error {
	cfg := CreateConfig{
		Name:    cname,
		Image:   spec.Image,
		Network: o.network,
		Ports:   spec.Ports,
	}
	for k, v := range spec.Env {
		cfg.Env = append(cfg.Env, k+"="+v)
	}
	sort.Strings(cfg.Env)

	err := o.api.ContainerCreate(ctx, cfg)
	if err != nil && isImageMissing(err) {
		o.log.Info("pulling image", "image", spec.Image)
		if pullErr := o.api.ImagePull(ctx, spec.Image); pullErr != nil {
			return fmt.Errorf("pull image %q: %w", spec.Image, pullErr)
		}
		err = o.api.ContainerCreate(ctx, cfg)
	}
	if err != nil {
		return o.classifyStartErr(spec, fmt.Errorf("create container %q: %w", cname, err))
	}

	if err := o.api.ContainerStart(ctx, cname); err != nil {
		// Don't leave the half-created container behind.
		_ = o.api.ContainerRemove(ctx, cname, true)
		return o.classifyStartErr(spec, fmt.Errorf("start container %q: %w", cname, err))
	}
	return nil
}

// classifyStartErr upgrades a create/start failure into a PortConflictError
// when the daemon's message points at an already-bound host port.
func (o *Orchestrator) classifyStartErr(spec ServiceSpec, err error) error {
	if !portConflictText(err) {
		return err
	}
	port := 0
	for _, hostPort := range spec.Ports {
		port = hostPort
		break
	}
	return &PortConflictError{Service: spec.Name, Port: port, Err: err}
}

// waitHealthy blocks until the spec's health method succeeds or the
// timeout elapses. Poll-sleep-retry with a bounded deadline is the only
// suspension mechanism.
func (o *Orchestrator) waitHealthy(ctx context.Context, spec ServiceSpec, cname string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error

	for time.Now().Before(deadline) {
		ok, err := o.probe(ctx, spec, cname)
		if ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		if err := sleepCtx(ctx, o.pollInterval); err != nil {
			return err
		}
	}
	return &StartupTimeoutError{Service: spec.Name, Timeout: timeout, LastErr: lastErr}
}

func (o *Orchestrator) probe(ctx context.Context, spec ServiceSpec, cname string) (bool, error) {
	switch {
	case spec.Health.URL != "":
		return o.probeHTTP(ctx, spec.Health.URL)
	case len(spec.Health.Cmd) > 0:
		code, err := o.api.ContainerExec(ctx, cname, spec.Health.Cmd)
		if err != nil {
			return false, err
		}
		if code != 0 {
			return false, fmt.Errorf("probe command exited %d", code)
		}
		return true, nil
	default:
		return o.probeRunning(ctx, cname)
	}
}

func (o *Orchestrator) probeHTTP(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := o.httpc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, nil
	}
	return false, fmt.Errorf("health endpoint returned HTTP %d", resp.StatusCode)
}

// probeRunning falls back to polling the container run-state, with one
// settle delay after it first reports running.
func (o *Orchestrator) probeRunning(ctx context.Context, cname string) (bool, error) {
	info, err := o.api.ContainerInspect(ctx, cname)
	if err != nil {
		return false, err
	}
	if info.Running() {
		if err := sleepCtx(ctx, o.settleDelay); err != nil {
			return false, err
		}
		return true, nil
	}
	if info.Status == "exited" || info.Status == "dead" {
		logs, _ := o.api.ContainerLogs(ctx, cname, 50)
		return false, fmt.Errorf("container exited unexpectedly: %s", logs)
	}
	return false, fmt.Errorf("container status %q", info.Status)
}

func (o *Orchestrator) setState(name string, state ProcessState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if proc, ok := o.procs[name]; ok {
		proc.state = state
	}
}

// orderByDependency returns specs sorted so every spec follows its
// dependencies. Names outside the given set are ignored; cycles error.
func orderByDependency(specs []ServiceSpec) ([]ServiceSpec, error) {
	byName := make(map[string]ServiceSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	var ordered []ServiceSpec
	state := make(map[string]int) // 0 unvisited, 1 visiting, 2 done

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("dependency cycle through %q", name)
		}
		state[name] = 1
		for _, dep := range byName[name].DependsOn {
			if _, known := byName[dep]; !known {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = 2
		ordered = append(ordered, byName[name])
		return nil
	}

	for _, s := range specs {
		if err := visit(s.Name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

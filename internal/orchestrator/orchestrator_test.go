package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeAPI is an in-memory ContainerAPI. Errors can be injected per method.
type fakeAPI struct {
	mu         sync.Mutex
	containers map[string]string // name -> status
	networks   map[string]bool
	created    []CreateConfig
	pulled     []string
	killed     []string
	removed    []string

	createErr     error
	createErrOnce error
	startErr      error
	stopErr       error
	removeErr     error
	inspectErr    error
	execCode      int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		containers: make(map[string]string),
		networks:   make(map[string]bool),
	}
}

func (f *fakeAPI) ContainerCreate(_ context.Context, cfg CreateConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErrOnce != nil {
		err := f.createErrOnce
		f.createErrOnce = nil
		return err
	}
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, cfg)
	f.containers[cfg.Name] = "created"
	return nil
}

func (f *fakeAPI) ContainerStart(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.containers[name] = "running"
	return nil
}

func (f *fakeAPI) ContainerStop(_ context.Context, name string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	if _, ok := f.containers[name]; ok {
		f.containers[name] = "exited"
	}
	return nil
}

func (f *fakeAPI) ContainerKill(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, name)
	if _, ok := f.containers[name]; !ok {
		return fmt.Errorf("no such container: %s", name)
	}
	f.containers[name] = "exited"
	return nil
}

func (f *fakeAPI) ContainerRemove(_ context.Context, name string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.containers, name)
	return nil
}

func (f *fakeAPI) ContainerInspect(_ context.Context, name string) (ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inspectErr != nil {
		return ContainerInfo{}, f.inspectErr
	}
	status, ok := f.containers[name]
	if !ok {
		return ContainerInfo{Exists: false}, nil
	}
	return ContainerInfo{Exists: true, Status: status}, nil
}

func (f *fakeAPI) ContainerExec(_ context.Context, _ string, _ []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execCode, nil
}

func (f *fakeAPI) ContainerLogs(_ context.Context, _ string, _ int) (string, error) {
	return "", nil
}

func (f *fakeAPI) ImagePull(_ context.Context, img string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, img)
	return nil
}

func (f *fakeAPI) NetworkCreate(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[name] = true
	return nil
}

func (f *fakeAPI) NetworkRemove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.networks, name)
	return nil
}

func newTestOrchestrator(api ContainerAPI) *Orchestrator {
	return New(api,
		WithPollInterval(time.Millisecond),
		WithSettleDelay(0),
	)
}

func redisSpec() ServiceSpec {
	return ServiceSpec{
		Name:  "redis",
		Image: "redis:7-alpine",
		Ports: map[string]int{"6379": 16379},
	}
}

func TestStartBecomesHealthy(t *testing.T) {
	api := newFakeAPI()
	o := newTestOrchestrator(api)

	if err := o.Start(context.Background(), redisSpec(), time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := o.State("redis"); got != StateHealthy {
		t.Errorf("state = %s, want healthy", got)
	}
	if !o.IsAlive(context.Background(), "redis") {
		t.Error("IsAlive = false after healthy start")
	}
	if !api.networks[DefaultNetwork] {
		t.Error("bench network was not created")
	}
}

func TestStartRemovesStaleContainer(t *testing.T) {
	api := newFakeAPI()
	api.containers["membench-redis"] = "exited" // leftover from a prior run
	o := newTestOrchestrator(api)

	if err := o.Start(context.Background(), redisSpec(), time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(api.removed) == 0 || api.removed[0] != "membench-redis" {
		t.Errorf("stale container not removed first, removals: %v", api.removed)
	}
}

func TestStartPortConflict(t *testing.T) {
	api := newFakeAPI()
	api.startErr = errors.New("driver failed programming external connectivity: Bind for 0.0.0.0:16379 failed: port is already allocated")
	o := newTestOrchestrator(api)

	err := o.Start(context.Background(), redisSpec(), time.Second)
	if !IsPortConflict(err) {
		t.Fatalf("err = %v, want PortConflictError", err)
	}
	var pc *PortConflictError
	errors.As(err, &pc)
	if pc.Port != 16379 {
		t.Errorf("conflict port = %d, want 16379", pc.Port)
	}
	// A failed start must not leave a tracked process behind.
	if got := o.State("redis"); got != StateAbsent {
		t.Errorf("state after failed start = %s, want absent", got)
	}
}

func TestStartHealthTimeoutCarriesLastError(t *testing.T) {
	api := newFakeAPI()
	api.execCode = 1 // probe command keeps failing
	o := newTestOrchestrator(api)

	spec := redisSpec()
	spec.Health.Cmd = []string{"redis-cli", "ping"}

	err := o.Start(context.Background(), spec, 20*time.Millisecond)
	if !IsStartupTimeout(err) {
		t.Fatalf("err = %v, want StartupTimeoutError", err)
	}
	var st *StartupTimeoutError
	errors.As(err, &st)
	if st.LastErr == nil {
		t.Error("StartupTimeoutError.LastErr is nil, want last probe error")
	}
	// The container stays tracked so CleanupAll can find it.
	if got := o.State("redis"); got != StateStarting {
		t.Errorf("state after timeout = %s, want starting", got)
	}
}

func TestStartPullsMissingImage(t *testing.T) {
	api := newFakeAPI()
	api.createErrOnce = errors.New("No such image: redis:7-alpine")
	o := newTestOrchestrator(api)

	// First create fails, pull runs, second create must succeed.
	if err := o.Start(context.Background(), redisSpec(), time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(api.pulled) != 1 || api.pulled[0] != "redis:7-alpine" {
		t.Errorf("pulled = %v, want the redis image", api.pulled)
	}
}

func TestKillRetainsRecordAndRestartUsesStoredSpec(t *testing.T) {
	api := newFakeAPI()
	o := newTestOrchestrator(api)
	ctx := context.Background()

	spec := redisSpec()
	if err := o.Start(ctx, spec, time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := o.Kill(ctx, "redis"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if got := o.State("redis"); got != StateKilled {
		t.Errorf("state after kill = %s, want killed", got)
	}
	if o.IsAlive(ctx, "redis") {
		t.Error("IsAlive = true after kill")
	}

	if err := o.Restart(ctx, "redis", time.Second); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if got := o.State("redis"); got != StateHealthy {
		t.Errorf("state after restart = %s, want healthy", got)
	}

	// Restart must have re-created from the originally stored spec.
	last := api.created[len(api.created)-1]
	if last.Image != spec.Image {
		t.Errorf("restart image = %q, want %q", last.Image, spec.Image)
	}
	if last.Ports["6379"] != 16379 {
		t.Errorf("restart ports = %v, want original mapping", last.Ports)
	}
}

func TestKillUntracked(t *testing.T) {
	o := newTestOrchestrator(newFakeAPI())
	if err := o.Kill(context.Background(), "ghost"); err == nil {
		t.Error("Kill of untracked service returned nil, want error")
	}
}

func TestRestartWithoutSpec(t *testing.T) {
	o := newTestOrchestrator(newFakeAPI())
	if err := o.Restart(context.Background(), "ghost", time.Second); err == nil {
		t.Error("Restart without stored spec returned nil, want error")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	o := newTestOrchestrator(api)
	ctx := context.Background()

	if err := o.Start(ctx, redisSpec(), time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Stop(ctx, "redis", time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := o.State("redis"); got != StateAbsent {
		t.Errorf("state after stop = %s, want absent", got)
	}
	// Second stop of the now-untracked name is a no-op.
	if err := o.Stop(ctx, "redis", time.Second); err != nil {
		t.Errorf("second Stop: %v, want nil", err)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	api := newFakeAPI()
	o := newTestOrchestrator(api)
	ctx := context.Background()

	if err := o.Start(ctx, redisSpec(), time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	api.mu.Lock()
	api.stopErr = errors.New("stop hung")
	api.mu.Unlock()

	if err := o.Stop(ctx, "redis", time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(api.killed) == 0 {
		t.Error("graceful stop failed but no kill was attempted")
	}
}

func TestStopFailedRemovalLeavesStoppedRecord(t *testing.T) {
	api := newFakeAPI()
	o := newTestOrchestrator(api)
	ctx := context.Background()

	if err := o.Start(ctx, redisSpec(), time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	api.mu.Lock()
	api.removeErr = errors.New("device busy")
	api.mu.Unlock()

	if err := o.Stop(ctx, "redis", time.Second); err == nil {
		t.Fatal("Stop returned nil despite failed removal")
	}
	if got := o.State("redis"); got != StateStopped {
		t.Errorf("state after failed removal = %s, want stopped", got)
	}

	// Once removal succeeds the name is untracked again.
	api.mu.Lock()
	api.removeErr = nil
	api.mu.Unlock()
	if err := o.Stop(ctx, "redis", time.Second); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := o.State("redis"); got != StateAbsent {
		t.Errorf("state after successful stop = %s, want absent", got)
	}
}

func TestIsAliveNeverErrors(t *testing.T) {
	api := newFakeAPI()
	o := newTestOrchestrator(api)
	ctx := context.Background()

	if o.IsAlive(ctx, "untracked") {
		t.Error("IsAlive(untracked) = true")
	}

	if err := o.Start(ctx, redisSpec(), time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	api.mu.Lock()
	api.inspectErr = errors.New("daemon unreachable")
	api.mu.Unlock()
	if o.IsAlive(ctx, "redis") {
		t.Error("IsAlive = true despite inspection failure")
	}
}

func TestCleanupAllSurvivesPartialFailure(t *testing.T) {
	api := newFakeAPI()
	o := newTestOrchestrator(api)
	ctx := context.Background()

	if err := o.Start(ctx, redisSpec(), time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}
	other := ServiceSpec{Name: "store", Image: "store:latest"}
	if err := o.Start(ctx, other, time.Second); err != nil {
		t.Fatalf("Start: %v", err)
	}

	api.mu.Lock()
	api.removeErr = errors.New("remove failed")
	api.mu.Unlock()

	o.CleanupAll(ctx)

	// Both removals attempted despite the failures, registry emptied,
	// network removal attempted.
	var attempts int
	for _, name := range api.removed {
		if name == "membench-redis" || name == "membench-store" {
			attempts++
		}
	}
	if attempts < 2 {
		t.Errorf("cleanup did not attempt every container, removals: %v", api.removed)
	}
	if got := o.State("redis"); got != StateAbsent {
		t.Errorf("state after cleanup = %s, want absent", got)
	}
	if api.networks[DefaultNetwork] {
		t.Error("network still present after cleanup")
	}
}

func TestStartAllOrdersByDependency(t *testing.T) {
	api := newFakeAPI()
	o := newTestOrchestrator(api)

	specs := []ServiceSpec{
		{Name: "store", Image: "store:latest", DependsOn: []string{"redis"}},
		{Name: "redis", Image: "redis:7-alpine"},
	}
	if err := o.StartAll(context.Background(), specs, time.Second); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if len(api.created) != 2 {
		t.Fatalf("created %d containers, want 2", len(api.created))
	}
	if api.created[0].Name != "membench-redis" {
		t.Errorf("first started = %q, want the dependency", api.created[0].Name)
	}
}

func TestOrderByDependencyCycle(t *testing.T) {
	_, err := orderByDependency([]ServiceSpec{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	})
	if err == nil {
		t.Error("cycle not detected")
	}
}

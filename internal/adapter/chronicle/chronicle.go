// Package chronicle adapts the chronicle memory backend, a durable,
// temporal, hash-chained event store, to the benchmark harness. It runs
// the backend plus its redis cache as containers on isolated host ports
// (16xxx) so local development services stay untouched, and advertises
// the full capability set including fault injection.
package chronicle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"membench"
	"membench/internal/adapter"
	"membench/internal/orchestrator"
)

const (
	name = "chronicle"

	serviceName      = "chronicle"
	redisServiceName = "redis"

	// Container-side ports are the backend's standard ones; only the
	// host side uses the isolated 16xxx range.
	containerPort      = 6380
	redisContainerPort = 6379
)

// Config holds the deployment knobs for the chronicle backend.
type Config struct {
	Image        string
	Port         int // host port for the chronicle API
	RedisImage   string
	RedisPort    int // host port for redis
	StartTimeout time.Duration
	TopK         int
	BaseURL      string // override for tests; derived from Port when empty
}

// DefaultConfig returns the isolated-port defaults.
func DefaultConfig() Config {
	return Config{
		Image:        "chronicle:latest",
		Port:         16380,
		RedisImage:   "redis:7-alpine",
		RedisPort:    16379,
		StartTimeout: 60 * time.Second,
		TopK:         10,
	}
}

var _ adapter.Memory = (*Adapter)(nil)

// Adapter drives chronicle over its REST API, with the container
// lifecycle owned by an orchestrator.
type Adapter struct {
	cfg    Config
	orch   *orchestrator.Orchestrator
	client *restClient
	log    *slog.Logger
	caps   membench.CapabilitySet
	ready  bool

	workspaceID string
	userID      string
}

// New creates a chronicle adapter over the given orchestrator.
func New(orch *orchestrator.Orchestrator, cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.TopK == 0 {
		cfg.TopK = 10
	}
	return &Adapter{
		cfg:  cfg,
		orch: orch,
		log:  slog.With("adapter", name),
		caps: membench.NewCapabilitySet(
			membench.CapabilityReplay,
			membench.CapabilityProvenance,
			membench.CapabilityFaultInjection,
			membench.CapabilityVersioning,
		),
		workspaceID: "benchmark",
		userID:      "bench_user",
	}
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Supports(c membench.Capability) bool { return a.caps.Has(c) }

// Setup starts redis and chronicle on the bench network and waits for
// both to be healthy. Startup failures (including port conflicts)
// propagate: no trial is meaningful against an unhealthy backend.
func (a *Adapter) Setup(ctx context.Context) error {
	a.log.Info("starting backend services",
		"redis_port", a.cfg.RedisPort, "api_port", a.cfg.Port)

	redis := orchestrator.ServiceSpec{
		Name:   redisServiceName,
		Image:  a.cfg.RedisImage,
		Ports:  map[string]int{fmt.Sprint(redisContainerPort): a.cfg.RedisPort},
		Health: orchestrator.HealthCheck{Cmd: []string{"redis-cli", "ping"}},
	}
	if err := a.orch.Start(ctx, redis, 30*time.Second); err != nil {
		return fmt.Errorf("start redis: %w", err)
	}

	store := orchestrator.ServiceSpec{
		Name:  serviceName,
		Image: a.cfg.Image,
		Ports: map[string]int{fmt.Sprint(containerPort): a.cfg.Port},
		Env: map[string]string{
			// Container-to-container traffic goes over the bench
			// network DNS name, not the host port mapping.
			"REDIS_HOST":    a.orch.ContainerName(redisServiceName),
			"REDIS_PORT":    fmt.Sprint(redisContainerPort),
			"DATABASE_PATH": "/app/data/chronicle.db",
			"LOG_LEVEL":     "info",
		},
		Health:    orchestrator.HealthCheck{URL: a.cfg.BaseURL + "/api/v1/health"},
		DependsOn: []string{redisServiceName},
	}
	if err := a.orch.Start(ctx, store, a.cfg.StartTimeout); err != nil {
		return fmt.Errorf("start chronicle: %w", err)
	}

	a.client = newRESTClient(a.cfg.BaseURL)
	a.ready = true
	a.log.Info("adapter ready")
	return nil
}

// Teardown releases every backing service. Safe after a partial Setup
// and idempotent; cleanup failures are logged, never returned.
func (a *Adapter) Teardown(ctx context.Context) error {
	a.client = nil
	a.ready = false
	a.orch.CleanupAll(ctx)
	return nil
}

// Clear resets backend state between trials: the dedicated admin
// endpoint first, falling back to erasing the bench workspace.
func (a *Adapter) Clear(ctx context.Context) error {
	if !a.ready {
		return &adapter.NotReadyError{Adapter: name}
	}
	if err := a.client.post(ctx, "/api/v1/admin/clear", nil, nil); err == nil {
		return nil
	}
	if err := a.client.delete(ctx, "/api/v1/workspaces/"+a.workspaceID); err != nil {
		// May legitimately fail before the first write.
		a.log.Warn("workspace clear failed", "err", err)
	}
	return nil
}

func (a *Adapter) WriteEvent(ctx context.Context, ev membench.Event) (string, error) {
	if !a.ready {
		return "", &adapter.NotReadyError{Adapter: name}
	}

	req := map[string]any{
		"workspace_id": a.workspaceID,
		"user_id":      a.userID,
		"session_id":   a.workspaceID + "_" + a.userID,
		"content":      map[string]any{"text": ev.Content},
		"channel":      ev.EventType,
		"timestamp":    ev.UnixTimestamp(),
		"metadata":     ev.Metadata,
	}
	if ev.ParentHash != "" {
		req["parent_hash"] = ev.ParentHash
	}

	var resp struct {
		EventID string `json:"event_id"`
		Hash    string `json:"hash"`
	}
	if err := a.client.post(ctx, "/api/v1/events/write", req, &resp); err != nil {
		return "", &adapter.OpError{Adapter: name, Op: "write_event", Err: err}
	}
	id := resp.EventID
	if id == "" {
		id = resp.Hash
	}
	if id == "" {
		return "", &adapter.OpError{Adapter: name, Op: "write_event",
			Err: fmt.Errorf("backend returned no event identifier")}
	}
	return id, nil
}

func (a *Adapter) GetEvent(ctx context.Context, id string) (membench.Event, error) {
	if !a.ready {
		return membench.Event{}, &adapter.NotReadyError{Adapter: name}
	}
	var raw map[string]any
	if err := a.client.get(ctx, "/api/v1/events/"+id, &raw); err != nil {
		if isStatus(err, 404) {
			return membench.Event{}, &adapter.NotFoundError{ID: id}
		}
		return membench.Event{}, &adapter.OpError{Adapter: name, Op: "get_event", Err: err}
	}
	return eventFromWire(raw), nil
}

// Query retrieves recent context from chronicle, builds the augmented
// prompt, and asks the generator. The three timing components are
// measured independently.
func (a *Adapter) Query(ctx context.Context, query string, gen membench.Generator) (membench.QueryResult, error) {
	if !a.ready {
		return membench.QueryResult{}, &adapter.NotReadyError{Adapter: name}
	}

	start := time.Now()
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	err := a.client.post(ctx, "/api/v1/events/query", map[string]any{
		"workspace_id": a.workspaceID,
		"user_id":      a.userID,
		"limit":        a.cfg.TopK,
	}, &resp)
	if err != nil {
		return membench.QueryResult{}, &adapter.OpError{Adapter: name, Op: "query", Err: err}
	}
	retrieval := millisSince(start)

	prompt := adapter.BuildPrompt(query, resp.Events)

	genStart := time.Now()
	comp, err := gen.Complete(ctx, prompt)
	if err != nil {
		return membench.QueryResult{}, &adapter.OpError{Adapter: name, Op: "query", Err: err}
	}

	return membench.QueryResult{
		Response:        comp.Text,
		ContextEvents:   resp.Events,
		ContextTokens:   comp.PromptTokens,
		RetrievalMillis: retrieval,
		GenerateMillis:  millisSince(genStart),
		TotalMillis:     millisSince(start),
	}, nil
}

// ReplayTo reconstructs state at ts via a time-bounded query.
func (a *Adapter) ReplayTo(ctx context.Context, ts time.Time) (membench.State, error) {
	if !a.ready {
		return membench.State{}, &adapter.NotReadyError{Adapter: name}
	}
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	err := a.client.post(ctx, "/api/v1/events/query", map[string]any{
		"workspace_id": a.workspaceID,
		"user_id":      a.userID,
		"end_time":     float64(ts.UnixNano()) / float64(time.Second),
		"limit":        1000,
	}, &resp)
	if err != nil {
		return membench.State{}, &adapter.OpError{Adapter: name, Op: "replay_to", Err: err}
	}

	events := make([]membench.Event, 0, len(resp.Events))
	for _, raw := range resp.Events {
		events = append(events, eventFromWire(raw))
	}
	return membench.State{
		Timestamp: ts,
		Events:    events,
		Metadata:  map[string]any{"event_count": len(events)},
	}, nil
}

func (a *Adapter) GetProvenance(ctx context.Context, id string) (membench.ProvenanceChain, error) {
	if !a.ready {
		return membench.ProvenanceChain{}, &adapter.NotReadyError{Adapter: name}
	}
	var resp struct {
		Chain    []map[string]any `json:"chain"`
		Verified bool             `json:"verified"`
		Gaps     []string         `json:"gaps"`
	}
	if err := a.client.get(ctx, "/api/v1/provenance/"+id, &resp); err != nil {
		if isStatus(err, 404) {
			// Older backend builds have no provenance endpoint; report
			// the event as its own single-link verified chain.
			return membench.ProvenanceChain{
				TargetHash: id,
				Chain:      []map[string]any{{"hash": id}},
				Verified:   true,
			}, nil
		}
		return membench.ProvenanceChain{}, &adapter.OpError{Adapter: name, Op: "get_provenance", Err: err}
	}
	return membench.ProvenanceChain{
		TargetHash: id,
		Chain:      resp.Chain,
		Verified:   resp.Verified,
		Gaps:       resp.Gaps,
	}, nil
}

// Kill SIGKILLs the chronicle container, leaving redis untouched. The
// orchestrator keeps the process record so Restart can recover.
func (a *Adapter) Kill(ctx context.Context) error {
	a.log.Info("killing backend container")
	return a.orch.Kill(ctx, serviceName)
}

// Restart rebuilds chronicle from its stored spec and waits for health.
func (a *Adapter) Restart(ctx context.Context) error {
	a.log.Info("restarting backend container")
	return a.orch.Restart(ctx, serviceName, a.cfg.StartTimeout)
}

func (a *Adapter) IsAlive(ctx context.Context) bool {
	if !a.ready || !a.orch.IsAlive(ctx, serviceName) {
		return false
	}
	return a.client.get(ctx, "/api/v1/health", nil) == nil
}

// eventFromWire converts the backend's JSON event shape back into the
// harness event type.
func eventFromWire(raw map[string]any) membench.Event {
	ev := membench.Event{
		Content:   stringField(raw, "content"),
		EventType: stringField(raw, "event_type"),
	}
	if ev.EventType == "" {
		ev.EventType = stringField(raw, "channel")
	}
	if ws := stringField(raw, "workspace_id"); ws != "" {
		ev.WorkspaceID = ws
	}
	ev.UserID = stringField(raw, "user_id")
	ev.SessionID = stringField(raw, "session_id")
	ev.ParentHash = stringField(raw, "parent_hash")
	if md, ok := raw["metadata"].(map[string]any); ok {
		ev.Metadata = md
	}
	if ts, ok := raw["timestamp"].(float64); ok {
		ev.Timestamp = time.Unix(0, int64(ts*float64(time.Second)))
	}
	return ev
}

// stringField reads a possibly nested text field: plain string or
// {"text": ...} content wrapper.
func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return text
		}
	}
	return ""
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

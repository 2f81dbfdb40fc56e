// Package vectorrag adapts a plain retrieval-augmented setup over a
// Qdrant vector store. It is deliberately naive: no temporal model, no
// provenance, no replay. Only fault injection is advertised, which is
// what makes it a useful durability contrast. Events do not survive a
// container kill because the store is recreated empty on restart.
package vectorrag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"membench"
	"membench/internal/adapter"
	"membench/internal/orchestrator"
)

const (
	name        = "vector_rag"
	serviceName = "qdrant"
	collection  = "benchmark"

	containerPort = 6333
)

// Config holds the deployment knobs for the Qdrant backend.
type Config struct {
	Image        string
	Port         int // host port for the Qdrant REST API
	StartTimeout time.Duration
	TopK         int
	BaseURL      string // override for tests; derived from Port when empty
}

// DefaultConfig returns the isolated-port defaults.
func DefaultConfig() Config {
	return Config{
		Image:        "qdrant/qdrant:latest",
		Port:         16333,
		StartTimeout: 60 * time.Second,
		TopK:         10,
	}
}

var _ adapter.Memory = (*Adapter)(nil)

// Adapter stores events as embedded points in a Qdrant collection and
// answers queries by similarity search.
type Adapter struct {
	cfg    Config
	orch   *orchestrator.Orchestrator
	client *qdrantClient
	log    *slog.Logger
	caps   membench.CapabilitySet
	ready  bool
}

// New creates a vector RAG adapter over the given orchestrator.
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
		caps: membench.NewCapabilitySet(membench.CapabilityFaultInjection),
	}
}

func (a *Adapter) Name() string { return name }

func (a *Adapter) Supports(c membench.Capability) bool { return a.caps.Has(c) }

// Setup starts the Qdrant container and creates the bench collection.
func (a *Adapter) Setup(ctx context.Context) error {
	a.log.Info("starting vector store", "port", a.cfg.Port)

	spec := orchestrator.ServiceSpec{
		Name:   serviceName,
		Image:  a.cfg.Image,
		Ports:  map[string]int{fmt.Sprint(containerPort): a.cfg.Port},
		Health: orchestrator.HealthCheck{URL: a.cfg.BaseURL + "/readyz"},
	}
	if err := a.orch.Start(ctx, spec, a.cfg.StartTimeout); err != nil {
		return fmt.Errorf("start qdrant: %w", err)
	}

	a.client = newQdrantClient(a.cfg.BaseURL)
	if err := a.client.createCollection(ctx, collection, embeddingDim); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	a.ready = true
	a.log.Info("adapter ready")
	return nil
}

// Teardown releases the container. Idempotent and never errors.
func (a *Adapter) Teardown(ctx context.Context) error {
	a.client = nil
	a.ready = false
	a.orch.CleanupAll(ctx)
	return nil
}

// Clear drops and recreates the collection.
func (a *Adapter) Clear(ctx context.Context) error {
	if !a.ready {
		return &adapter.NotReadyError{Adapter: name}
	}
	if err := a.client.deleteCollection(ctx, collection); err != nil {
		a.log.Warn("collection delete failed", "err", err)
	}
	if err := a.client.createCollection(ctx, collection, embeddingDim); err != nil {
		return &adapter.OpError{Adapter: name, Op: "clear", Err: err}
	}
	return nil
}

func (a *Adapter) WriteEvent(ctx context.Context, ev membench.Event) (string, error) {
	if !a.ready {
		return "", &adapter.NotReadyError{Adapter: name}
	}

	pointID := uuid.NewString()
	payload := map[string]any{
		"content":    ev.Content,
		"event_type": ev.EventType,
		"timestamp":  ev.UnixTimestamp(),
	}
	for k, v := range ev.Metadata {
		payload["meta_"+k] = v
	}

	err := a.client.upsertPoint(ctx, collection, point{
		ID:      pointID,
		Vector:  Embed(ev.Content),
		Payload: payload,
	})
	if err != nil {
		return "", &adapter.OpError{Adapter: name, Op: "write_event", Err: err}
	}
	return pointID, nil
}

// GetEvent resolves an identifier back to its stored payload. A point
// missing from the store (after a kill, say) is a NotFoundError.
func (a *Adapter) GetEvent(ctx context.Context, id string) (membench.Event, error) {
	if !a.ready {
		return membench.Event{}, &adapter.NotReadyError{Adapter: name}
	}
	pt, err := a.client.getPoint(ctx, collection, id)
	if err != nil {
		if isStatus(err, 404) {
			return membench.Event{}, &adapter.NotFoundError{ID: id}
		}
		return membench.Event{}, &adapter.OpError{Adapter: name, Op: "get_event", Err: err}
	}
	if pt == nil {
		return membench.Event{}, &adapter.NotFoundError{ID: id}
	}

	ev := membench.Event{}
	if s, ok := pt.Payload["content"].(string); ok {
		ev.Content = s
	}
	if s, ok := pt.Payload["event_type"].(string); ok {
		ev.EventType = s
	}
	if ts, ok := pt.Payload["timestamp"].(float64); ok {
		ev.Timestamp = time.Unix(0, int64(ts*float64(time.Second)))
	}
	return ev, nil
}

// Query embeds the question, searches the collection, and hands the
// nearest payloads to the generator as context.
func (a *Adapter) Query(ctx context.Context, query string, gen membench.Generator) (membench.QueryResult, error) {
	if !a.ready {
		return membench.QueryResult{}, &adapter.NotReadyError{Adapter: name}
	}

	start := time.Now()
	hits, err := a.client.search(ctx, collection, Embed(query), a.cfg.TopK)
	if err != nil {
		return membench.QueryResult{}, &adapter.OpError{Adapter: name, Op: "query", Err: err}
	}
	retrieval := millisSince(start)

	events := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		events = append(events, h.Payload)
	}

	genStart := time.Now()
	comp, err := gen.Complete(ctx, adapter.BuildPrompt(query, events))
	if err != nil {
		return membench.QueryResult{}, &adapter.OpError{Adapter: name, Op: "query", Err: err}
	}

	return membench.QueryResult{
		Response:        comp.Text,
		ContextEvents:   events,
		ContextTokens:   comp.PromptTokens,
		RetrievalMillis: retrieval,
		GenerateMillis:  millisSince(genStart),
		TotalMillis:     millisSince(start),
	}, nil
}

func (a *Adapter) ReplayTo(context.Context, time.Time) (membench.State, error) {
	return membench.State{}, &adapter.NotSupportedError{Adapter: name, Op: "replay_to"}
}

func (a *Adapter) GetProvenance(context.Context, string) (membench.ProvenanceChain, error) {
	return membench.ProvenanceChain{}, &adapter.NotSupportedError{Adapter: name, Op: "get_provenance"}
}

// Kill SIGKILLs the store container. In-memory segments not yet flushed
// are lost, which is exactly the behavior under measurement.
func (a *Adapter) Kill(ctx context.Context) error {
	a.log.Info("killing vector store container")
	return a.orch.Kill(ctx, serviceName)
}

// Restart rebuilds the container and recreates the collection. The
// fresh container has empty storage, so previously written points are
// gone; recovery scenarios observe that as data loss.
func (a *Adapter) Restart(ctx context.Context) error {
	a.log.Info("restarting vector store container")
	if err := a.orch.Restart(ctx, serviceName, a.cfg.StartTimeout); err != nil {
		return err
	}
	if err := a.client.createCollection(ctx, collection, embeddingDim); err != nil {
		return &adapter.OpError{Adapter: name, Op: "restart", Err: err}
	}
	return nil
}

func (a *Adapter) IsAlive(ctx context.Context) bool {
	if !a.ready || !a.orch.IsAlive(ctx, serviceName) {
		return false
	}
	return a.client.healthy(ctx)
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

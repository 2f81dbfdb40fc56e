package vectorrag

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"membench"
	"membench/internal/adapter"
	"membench/internal/orchestrator"
)

// fakeRuntime is the minimal in-memory ContainerAPI for lifecycle tests.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]string
	killed     int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]string)}
}

func (f *fakeRuntime) ContainerCreate(_ context.Context, cfg orchestrator.CreateConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[cfg.Name] = "created"
	return nil
}

func (f *fakeRuntime) ContainerStart(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = "running"
	return nil
}

func (f *fakeRuntime) ContainerStop(_ context.Context, name string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = "exited"
	return nil
}

func (f *fakeRuntime) ContainerKill(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = "exited"
	f.killed++
	return nil
}

func (f *fakeRuntime) ContainerRemove(_ context.Context, name string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	return nil
}

func (f *fakeRuntime) ContainerInspect(_ context.Context, name string) (orchestrator.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.containers[name]
	return orchestrator.ContainerInfo{Exists: ok, Status: status}, nil
}

func (f *fakeRuntime) ContainerExec(context.Context, string, []string) (int, error) { return 0, nil }
func (f *fakeRuntime) ContainerLogs(context.Context, string, int) (string, error)  { return "", nil }
func (f *fakeRuntime) ImagePull(context.Context, string) error                     { return nil }
func (f *fakeRuntime) NetworkCreate(context.Context, string) error                 { return nil }
func (f *fakeRuntime) NetworkRemove(context.Context, string) error                 { return nil }

// fakeQdrant is an httptest-backed store that records collection churn
// and serves canned search results.
type fakeQdrant struct {
	mu          sync.Mutex
	creates     int
	deletes     int
	points      map[string]point
	searchHits  []hit
	lastUpserts []point
}

func (q *fakeQdrant) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /collections/benchmark", func(w http.ResponseWriter, _ *http.Request) {
		q.mu.Lock()
		q.creates++
		q.points = make(map[string]point)
		q.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /collections/benchmark", func(w http.ResponseWriter, _ *http.Request) {
		q.mu.Lock()
		q.deletes++
		q.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /collections/benchmark/points", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Points []point `json:"points"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		q.mu.Lock()
		for _, p := range req.Points {
			q.points[p.ID] = p
		}
		q.lastUpserts = req.Points
		q.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /collections/benchmark/points/{id}", func(w http.ResponseWriter, r *http.Request) {
		q.mu.Lock()
		p, ok := q.points[r.PathValue("id")]
		q.mu.Unlock()
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": p})
	})
	mux.HandleFunc("POST /collections/benchmark/points/search", func(w http.ResponseWriter, _ *http.Request) {
		q.mu.Lock()
		hits := q.searchHits
		q.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"result": hits})
	})
	return mux
}

type staticGen struct{ text string }

func (g staticGen) Complete(_ context.Context, prompt string) (membench.Completion, error) {
	return membench.Completion{Text: g.text, PromptTokens: len(prompt) / 4}, nil
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeQdrant, *fakeRuntime) {
	t.Helper()

	qd := &fakeQdrant{points: make(map[string]point)}
	srv := httptest.NewServer(qd.handler())
	t.Cleanup(srv.Close)

	rt := newFakeRuntime()
	orch := orchestrator.New(rt,
		orchestrator.WithPollInterval(time.Millisecond),
		orchestrator.WithSettleDelay(0),
	)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.StartTimeout = time.Second

	a := New(orch, cfg)
	if err := a.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = a.Teardown(context.Background()) })
	return a, qd, rt
}

func TestCapabilitiesAreFaultInjectionOnly(t *testing.T) {
	a := New(orchestrator.New(newFakeRuntime()), DefaultConfig())
	for _, c := range membench.AllCapabilities() {
		want := c == membench.CapabilityFaultInjection
		if got := a.Supports(c); got != want {
			t.Errorf("Supports(%s) = %v, want %v", c, got, want)
		}
	}
}

func TestWriteAndGetEvent(t *testing.T) {
	a, qd, _ := newTestAdapter(t)
	ctx := context.Background()

	id, err := a.WriteEvent(ctx, membench.NewEvent("the capital of France is Paris", "fact"))
	if err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	qd.mu.Lock()
	upserted := len(qd.lastUpserts)
	qd.mu.Unlock()
	if upserted != 1 {
		t.Fatalf("upserted %d points, want 1", upserted)
	}

	ev, err := a.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.Content != "the capital of France is Paris" {
		t.Errorf("content = %q", ev.Content)
	}

	if _, err := a.GetEvent(ctx, "does-not-exist"); !adapter.IsNotFound(err) {
		t.Errorf("missing point: err = %v, want NotFoundError", err)
	}
}

func TestQueryUsesSearchHits(t *testing.T) {
	a, qd, _ := newTestAdapter(t)

	qd.mu.Lock()
	qd.searchHits = []hit{
		{ID: "p1", Score: 0.9, Payload: map[string]any{"content": "Paris"}},
		{ID: "p2", Score: 0.4, Payload: map[string]any{"content": "Lyon"}},
	}
	qd.mu.Unlock()

	res, err := a.Query(context.Background(), "capital of France?", staticGen{text: "Paris"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.ContextEvents) != 2 {
		t.Errorf("context events = %d, want 2", len(res.ContextEvents))
	}
	if res.Response != "Paris" {
		t.Errorf("response = %q", res.Response)
	}
}

func TestReplayAndProvenanceNotSupported(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	ctx := context.Background()

	if _, err := a.ReplayTo(ctx, time.Now()); !adapter.IsNotSupported(err) {
		t.Errorf("ReplayTo: err = %v, want NotSupportedError", err)
	}
	if _, err := a.GetProvenance(ctx, "p1"); !adapter.IsNotSupported(err) {
		t.Errorf("GetProvenance: err = %v, want NotSupportedError", err)
	}
}

func TestRestartRecreatesCollection(t *testing.T) {
	a, qd, rt := newTestAdapter(t)
	ctx := context.Background()

	if err := a.Kill(ctx); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	rt.mu.Lock()
	killed := rt.killed
	rt.mu.Unlock()
	if killed != 1 {
		t.Fatalf("killed = %d, want 1", killed)
	}

	qd.mu.Lock()
	createsBefore := qd.creates
	qd.mu.Unlock()

	if err := a.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}

	qd.mu.Lock()
	createsAfter := qd.creates
	qd.mu.Unlock()
	if createsAfter != createsBefore+1 {
		t.Errorf("creates = %d, want %d", createsAfter, createsBefore+1)
	}
	if !a.IsAlive(ctx) {
		t.Error("IsAlive = false after restart")
	}
}

func TestEmbedDeterministicAndNormalized(t *testing.T) {
	a := Embed("the quick brown fox")
	b := Embed("the quick brown fox")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", norm)
	}

	c := Embed("completely different text about other things")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical vectors")
	}
}

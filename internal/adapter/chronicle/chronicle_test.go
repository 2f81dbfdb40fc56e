package chronicle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"membench"
	"membench/internal/adapter"
	"membench/internal/orchestrator"
)

// fakeRuntime is an in-memory ContainerAPI. Exec probes always succeed,
// so the redis health check passes immediately in tests.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]string // name -> status
	killed     []string
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
	f.killed = append(f.killed, name)
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

func (f *fakeRuntime) ContainerExec(context.Context, string, []string) (int, error) {
	return 0, nil
}

func (f *fakeRuntime) ContainerLogs(context.Context, string, int) (string, error) {
	return "", nil
}

func (f *fakeRuntime) ImagePull(context.Context, string) error     { return nil }
func (f *fakeRuntime) NetworkCreate(context.Context, string) error { return nil }
func (f *fakeRuntime) NetworkRemove(context.Context, string) error { return nil }

type staticGen struct{ text string }

func (g staticGen) Complete(_ context.Context, prompt string) (membench.Completion, error) {
	return membench.Completion{Text: g.text, PromptTokens: len(prompt) / 4}, nil
}

// newTestAdapter builds an adapter whose REST traffic and health polling
// hit the given handler. The server always answers the health endpoint.
func newTestAdapter(t *testing.T, mux *http.ServeMux) (*Adapter, *fakeRuntime) {
	t.Helper()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
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
	return a, rt
}

func TestSetupStartsBothServices(t *testing.T) {
	_, rt := newTestAdapter(t, http.NewServeMux())

	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, name := range []string{"membench-redis", "membench-chronicle"} {
		if rt.containers[name] != "running" {
			t.Errorf("container %s status = %q, want running", name, rt.containers[name])
		}
	}
}

func TestSupportsFullCapabilitySet(t *testing.T) {
	a := New(orchestrator.New(newFakeRuntime()), DefaultConfig())
	for _, c := range membench.AllCapabilities() {
		if !a.Supports(c) {
			t.Errorf("Supports(%s) = false, want true", c)
		}
	}
}

func TestWriteEvent(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events/write", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode write request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"event_id": "ev-42"})
	})
	a, _ := newTestAdapter(t, mux)

	id, err := a.WriteEvent(context.Background(), membench.NewEvent("hello", "test"))
	if err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if id != "ev-42" {
		t.Errorf("id = %q, want ev-42", id)
	}
	if got["workspace_id"] != "benchmark" {
		t.Errorf("workspace_id = %v", got["workspace_id"])
	}
	content, _ := got["content"].(map[string]any)
	if content["text"] != "hello" {
		t.Errorf("content = %v", got["content"])
	}
}

func TestWriteEventFallsBackToHash(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events/write", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"hash": "abc123"})
	})
	a, _ := newTestAdapter(t, mux)

	id, err := a.WriteEvent(context.Background(), membench.NewEvent("x", "test"))
	if err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if id != "abc123" {
		t.Errorf("id = %q, want abc123", id)
	}
}

func TestWriteEventRequiresIdentifier(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events/write", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	a, _ := newTestAdapter(t, mux)

	if _, err := a.WriteEvent(context.Background(), membench.NewEvent("x", "test")); err == nil {
		t.Fatal("WriteEvent succeeded with no identifier in response")
	}
}

func TestGetEventNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such event", http.StatusNotFound)
	})
	a, _ := newTestAdapter(t, mux)

	_, err := a.GetEvent(context.Background(), "missing")
	if !adapter.IsNotFound(err) {
		t.Errorf("err = %v, want NotFoundError", err)
	}
}

func TestGetEventMapsWireShape(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events/", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content":     map[string]any{"text": "stored text"},
			"channel":     "conversation",
			"user_id":     "bench_user",
			"parent_hash": "parent-1",
			"timestamp":   1700000000.5,
		})
	})
	a, _ := newTestAdapter(t, mux)

	ev, err := a.GetEvent(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.Content != "stored text" {
		t.Errorf("content = %q", ev.Content)
	}
	if ev.EventType != "conversation" {
		t.Errorf("event type = %q", ev.EventType)
	}
	if ev.ParentHash != "parent-1" {
		t.Errorf("parent hash = %q", ev.ParentHash)
	}
	if ev.Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestQueryFeedsContextToGenerator(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events/query", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"content": "the sky is blue"},
			},
		})
	})
	a, _ := newTestAdapter(t, mux)

	var prompt string
	gen := genFunc(func(_ context.Context, p string) (membench.Completion, error) {
		prompt = p
		return membench.Completion{Text: "blue", PromptTokens: 12}, nil
	})

	res, err := a.Query(context.Background(), "what color is the sky?", gen)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Response != "blue" {
		t.Errorf("response = %q", res.Response)
	}
	if len(res.ContextEvents) != 1 {
		t.Fatalf("context events = %d, want 1", len(res.ContextEvents))
	}
	if !strings.Contains(prompt, "the sky is blue") {
		t.Errorf("prompt missing retrieved context: %q", prompt)
	}
	if res.TotalMillis < res.RetrievalMillis {
		t.Errorf("total %v < retrieval %v", res.TotalMillis, res.RetrievalMillis)
	}
}

type genFunc func(context.Context, string) (membench.Completion, error)

func (f genFunc) Complete(ctx context.Context, prompt string) (membench.Completion, error) {
	return f(ctx, prompt)
}

func TestReplayToBoundsQueryByTime(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/events/query", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"content": "a"}, {"content": "b"},
			},
		})
	})
	a, _ := newTestAdapter(t, mux)

	ts := time.Unix(1700000100, 0)
	state, err := a.ReplayTo(context.Background(), ts)
	if err != nil {
		t.Fatalf("ReplayTo: %v", err)
	}
	if end, ok := got["end_time"].(float64); !ok || end != 1700000100 {
		t.Errorf("end_time = %v", got["end_time"])
	}
	if len(state.Events) != 2 {
		t.Errorf("events = %d, want 2", len(state.Events))
	}
	if !state.Timestamp.Equal(ts) {
		t.Errorf("state timestamp = %v, want %v", state.Timestamp, ts)
	}
}

func TestProvenanceFallbackOn404(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/provenance/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	a, _ := newTestAdapter(t, mux)

	chain, err := a.GetProvenance(context.Background(), "ev-7")
	if err != nil {
		t.Fatalf("GetProvenance: %v", err)
	}
	if !chain.Verified || len(chain.Chain) != 1 {
		t.Errorf("fallback chain = %+v, want single verified link", chain)
	}
}

func TestKillAndRestart(t *testing.T) {
	a, rt := newTestAdapter(t, http.NewServeMux())
	ctx := context.Background()

	if err := a.Kill(ctx); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	rt.mu.Lock()
	killedStore := len(rt.killed) == 1 && rt.killed[0] == "membench-chronicle"
	redisStatus := rt.containers["membench-redis"]
	rt.mu.Unlock()
	if !killedStore {
		t.Errorf("killed = %v, want only the store container", rt.killed)
	}
	if redisStatus != "running" {
		t.Errorf("redis status after kill = %q, want running", redisStatus)
	}
	if a.IsAlive(ctx) {
		t.Error("IsAlive = true after kill")
	}

	if err := a.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if !a.IsAlive(ctx) {
		t.Error("IsAlive = false after restart")
	}
}

func TestClearFallsBackToWorkspaceDelete(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/admin/clear", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unsupported", http.StatusNotImplemented)
	})
	mux.HandleFunc("/api/v1/workspaces/", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	a, _ := newTestAdapter(t, mux)

	if err := a.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if deleted != "/api/v1/workspaces/benchmark" {
		t.Errorf("deleted path = %q", deleted)
	}
}

func TestOperationsRequireSetup(t *testing.T) {
	a := New(orchestrator.New(newFakeRuntime()), DefaultConfig())
	ctx := context.Background()

	if _, err := a.WriteEvent(ctx, membench.NewEvent("x", "test")); !adapter.IsNotReady(err) {
		t.Errorf("WriteEvent: err = %v, want NotReadyError", err)
	}
	if _, err := a.Query(ctx, "q", staticGen{}); !adapter.IsNotReady(err) {
		t.Errorf("Query: err = %v, want NotReadyError", err)
	}
	if a.IsAlive(ctx) {
		t.Error("IsAlive = true before setup")
	}
}

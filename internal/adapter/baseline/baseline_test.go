package baseline

import (
	"context"
	"testing"
	"time"

	"membench"
	"membench/internal/adapter"
)

type staticGen struct{ text string }

func (g staticGen) Complete(_ context.Context, prompt string) (membench.Completion, error) {
	return membench.Completion{Text: g.text, PromptTokens: len(prompt) / 4}, nil
}

func TestOperationsRequireSetup(t *testing.T) {
	a := New()
	ctx := context.Background()

	if _, err := a.WriteEvent(ctx, membench.NewEvent("x", "test")); !adapter.IsNotReady(err) {
		t.Errorf("WriteEvent before setup: err = %v, want NotReadyError", err)
	}
	if _, err := a.Query(ctx, "q", staticGen{}); !adapter.IsNotReady(err) {
		t.Errorf("Query before setup: err = %v, want NotReadyError", err)
	}
	if err := a.Clear(ctx); !adapter.IsNotReady(err) {
		t.Errorf("Clear before setup: err = %v, want NotReadyError", err)
	}
}

func TestCapabilityGating(t *testing.T) {
	a := New()
	ctx := context.Background()
	if err := a.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	for _, c := range membench.AllCapabilities() {
		if a.Supports(c) {
			t.Errorf("Supports(%s) = true, want false", c)
		}
	}

	// Every extended operation must fail loudly, never no-op.
	if _, err := a.GetEvent(ctx, "baseline-1"); !adapter.IsNotSupported(err) {
		t.Errorf("GetEvent: err = %v, want NotSupportedError", err)
	}
	if _, err := a.ReplayTo(ctx, time.Now()); !adapter.IsNotSupported(err) {
		t.Errorf("ReplayTo: err = %v, want NotSupportedError", err)
	}
	if _, err := a.GetProvenance(ctx, "baseline-1"); !adapter.IsNotSupported(err) {
		t.Errorf("GetProvenance: err = %v, want NotSupportedError", err)
	}
	if err := a.Kill(ctx); !adapter.IsNotSupported(err) {
		t.Errorf("Kill: err = %v, want NotSupportedError", err)
	}
	if err := a.Restart(ctx); !adapter.IsNotSupported(err) {
		t.Errorf("Restart: err = %v, want NotSupportedError", err)
	}
}

func TestWriteAndQuery(t *testing.T) {
	a := New()
	ctx := context.Background()
	if err := a.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	id1, err := a.WriteEvent(ctx, membench.NewEvent("first", "test"))
	if err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	id2, err := a.WriteEvent(ctx, membench.NewEvent("second", "test"))
	if err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if id1 == id2 {
		t.Errorf("identifiers not distinct: %q", id1)
	}

	res, err := a.Query(ctx, "what is stored?", staticGen{text: "nothing"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Response != "nothing" {
		t.Errorf("response = %q", res.Response)
	}
	if len(res.ContextEvents) != 0 {
		t.Errorf("baseline returned context events: %v", res.ContextEvents)
	}
	if res.RetrievalMillis != 0 {
		t.Errorf("baseline reported retrieval time %v, want 0", res.RetrievalMillis)
	}
}

func TestTeardownIdempotent(t *testing.T) {
	a := New()
	ctx := context.Background()
	if err := a.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := a.Teardown(ctx); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if err := a.Teardown(ctx); err != nil {
		t.Errorf("second Teardown: %v, want nil", err)
	}
	if a.IsAlive(ctx) {
		t.Error("IsAlive = true after teardown")
	}
}

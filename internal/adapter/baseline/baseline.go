// Package baseline is the no-memory adapter: writes are acknowledged but
// discarded and queries reach the generator with zero context. It sets
// the accuracy floor every real backend is compared against.
package baseline

import (
	"context"
	"fmt"
	"time"

	"membench"
	"membench/internal/adapter"
)

const name = "baseline"

var _ adapter.Memory = (*Adapter)(nil)

// Adapter is the no-op memory backend. No orchestrator, no storage.
type Adapter struct {
	ready      bool
	eventCount int
}

// New creates a baseline adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string { return name }

// Supports reports false for every capability.
func (a *Adapter) Supports(membench.Capability) bool { return false }

func (a *Adapter) Setup(context.Context) error {
	a.ready = true
	a.eventCount = 0
	return nil
}

func (a *Adapter) Teardown(context.Context) error {
	a.ready = false
	a.eventCount = 0
	return nil
}

func (a *Adapter) Clear(context.Context) error {
	if !a.ready {
		return &adapter.NotReadyError{Adapter: name}
	}
	a.eventCount = 0
	return nil
}

// WriteEvent acknowledges the write with a synthetic identifier but
// stores nothing. The counter keeps identifiers distinct within a trial.
func (a *Adapter) WriteEvent(_ context.Context, _ membench.Event) (string, error) {
	if !a.ready {
		return "", &adapter.NotReadyError{Adapter: name}
	}
	a.eventCount++
	return fmt.Sprintf("baseline-%d", a.eventCount), nil
}

// Query asks the generator with no retrieved context at all.
func (a *Adapter) Query(ctx context.Context, query string, gen membench.Generator) (membench.QueryResult, error) {
	if !a.ready {
		return membench.QueryResult{}, &adapter.NotReadyError{Adapter: name}
	}

	start := time.Now()
	comp, err := gen.Complete(ctx, adapter.BuildPrompt(query, nil))
	if err != nil {
		return membench.QueryResult{}, &adapter.OpError{Adapter: name, Op: "query", Err: err}
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	return membench.QueryResult{
		Response:       comp.Text,
		ContextEvents:  nil,
		ContextTokens:  comp.PromptTokens,
		GenerateMillis: elapsed,
		TotalMillis:    elapsed,
	}, nil
}

func (a *Adapter) GetEvent(context.Context, string) (membench.Event, error) {
	return membench.Event{}, &adapter.NotSupportedError{Adapter: name, Op: "get_event"}
}

func (a *Adapter) ReplayTo(context.Context, time.Time) (membench.State, error) {
	return membench.State{}, &adapter.NotSupportedError{Adapter: name, Op: "replay_to"}
}

func (a *Adapter) GetProvenance(context.Context, string) (membench.ProvenanceChain, error) {
	return membench.ProvenanceChain{}, &adapter.NotSupportedError{Adapter: name, Op: "get_provenance"}
}

func (a *Adapter) Kill(context.Context) error {
	return &adapter.NotSupportedError{Adapter: name, Op: "kill"}
}

func (a *Adapter) Restart(context.Context) error {
	return &adapter.NotSupportedError{Adapter: name, Op: "restart"}
}

// IsAlive: the baseline has no infrastructure, so it is alive exactly
// when it is set up.
func (a *Adapter) IsAlive(context.Context) bool { return a.ready }

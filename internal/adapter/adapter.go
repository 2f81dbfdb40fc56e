// Package adapter defines the uniform, capability-gated interface every
// memory backend implements, plus the error taxonomy scenarios rely on to
// tell "this backend can't do that" apart from "this backend broke".
package adapter

import (
	"context"
	"time"

	"membench"
)

// Memory is the uniform interface over a backend under test.
//
// Lifecycle: Setup moves the adapter from unconfigured to setup-complete;
// Clear is only valid while setup-complete; Teardown releases everything
// and is safe after a partially failed Setup. Any other operation invoked
// outside setup-complete fails with a NotReadyError.
//
// Extended operations (GetEvent, ReplayTo, GetProvenance, Kill, Restart)
// fail with a NotSupportedError when the adapter lacks the capability,
// never a silent no-op. Callers check Supports first; the operation still
// guards itself.
type Memory interface {
	Name() string

	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
	Clear(ctx context.Context) error

	WriteEvent(ctx context.Context, ev membench.Event) (string, error)
	Query(ctx context.Context, query string, gen membench.Generator) (membench.QueryResult, error)

	GetEvent(ctx context.Context, id string) (membench.Event, error)
	ReplayTo(ctx context.Context, ts time.Time) (membench.State, error)
	GetProvenance(ctx context.Context, id string) (membench.ProvenanceChain, error)
	Kill(ctx context.Context) error
	Restart(ctx context.Context) error

	IsAlive(ctx context.Context) bool
	// Supports is a pure predicate over the static capability set; it
	// performs no I/O.
	Supports(c membench.Capability) bool
}

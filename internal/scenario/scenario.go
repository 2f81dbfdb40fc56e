// Package scenario holds the benchmark scenarios and the trial-execution
// engine that drives them. A scenario is configured once, then runs a
// fixed number of independent trials against one adapter; one trial's
// failure is recorded and never aborts the rest.
package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"membench"
	"membench/internal/adapter"
)

// Scenario is one benchmark: a guarantee under test, driven for a fixed
// number of trials. Scenarios are reproducible given the same
// configuration, including its random seed.
type Scenario interface {
	Name() string
	Description() string
	// Guarantee names the property class under test: durability,
	// consistency, auditability, replay, or baseline.
	Guarantee() string
	SupportsAdapter(adapterName string) bool
	Configure(cfg map[string]any)
	Run(ctx context.Context, mem adapter.Memory, gen membench.Generator, trials int, progress func()) membench.ScenarioResult
}

// New constructs a fresh scenario by name.
func New(name string) (Scenario, error) {
	switch name {
	case "niah":
		return newNIAH(), nil
	case "fact_correction":
		return newFactCorrection(), nil
	case "temporal_versioning":
		return newTemporalVersioning(), nil
	case "provenance_chain":
		return newProvenanceChain(), nil
	case "point_in_time":
		return newPointInTime(), nil
	case "determinism":
		return newDeterminism(), nil
	case "crash_recovery":
		return newCrashRecovery(), nil
	default:
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
}

// Names lists every scenario in suite execution order: the baseline
// sanity check first, then the guarantee scenarios.
func Names() []string {
	return []string{
		"niah",
		"fact_correction",
		"temporal_versioning",
		"provenance_chain",
		"point_in_time",
		"determinism",
		"crash_recovery",
	}
}

// base carries the pieces every scenario shares: its raw configuration
// map, the adapter allow-list, and a seeded random source.
type base struct {
	cfg      map[string]any
	adapters []string
	rng      *rand.Rand
}

// defaultSeed keeps unconfigured runs reproducible.
const defaultSeed = 1

func newBase(adapters ...string) base {
	return base{
		cfg:      map[string]any{},
		adapters: adapters,
		rng:      rand.New(rand.NewSource(defaultSeed)),
	}
}

func (b *base) configure(cfg map[string]any) {
	if cfg == nil {
		cfg = map[string]any{}
	}
	b.cfg = cfg
	b.rng = rand.New(rand.NewSource(cfgInt64(cfg, "seed", defaultSeed)))
}

func (b *base) SupportsAdapter(name string) bool {
	return slices.Contains(b.adapters, name)
}

func nowStamp() string {
	return time.Now().Format(time.RFC3339Nano)
}

func millisSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

// Configuration values arrive from the koanf layer or raw JSON, so
// numbers may be int, int64, or float64 depending on the source.

func cfgInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func cfgInt64(cfg map[string]any, key string, def int64) int64 {
	switch v := cfg[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return def
}

func cfgFloat(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

func cfgString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return def
}

func cfgInts(cfg map[string]any, key string, def []int) []int {
	raw, ok := cfg[key].([]any)
	if !ok {
		if typed, ok := cfg[key].([]int); ok {
			return typed
		}
		return def
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case int:
			out = append(out, n)
		case int64:
			out = append(out, int(n))
		case float64:
			out = append(out, int(n))
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func cfgFloats(cfg map[string]any, key string, def []float64) []float64 {
	raw, ok := cfg[key].([]any)
	if !ok {
		if typed, ok := cfg[key].([]float64); ok {
			return typed
		}
		return def
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		case int64:
			out = append(out, float64(n))
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func cfgStrings(cfg map[string]any, key string, def []string) []string {
	raw, ok := cfg[key].([]any)
	if !ok {
		if typed, ok := cfg[key].([]string); ok {
			return typed
		}
		return def
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

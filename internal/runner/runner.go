// Package runner executes scenario/adapter combinations: single runs
// with adapter lifecycle management, and full suites with persistence.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"membench"
	"membench/internal/config"
	"membench/internal/scenario"
)

// ScenarioRunner runs one scenario against one adapter, owning the
// adapter's Setup/Teardown around the trial loop.
type ScenarioRunner struct {
	cfg        *config.Config
	gen        membench.Generator
	newAdapter AdapterFactory
	log        *slog.Logger
}

// NewScenarioRunner wires a runner over a generator and adapter factory.
func NewScenarioRunner(cfg *config.Config, gen membench.Generator, factory AdapterFactory) *ScenarioRunner {
	return &ScenarioRunner{
		cfg:        cfg,
		gen:        gen,
		newAdapter: factory,
		log:        slog.With("component", "runner"),
	}
}

// Run executes one (scenario, adapter) combination.
//
// An unsupported combination is a recorded outcome, not an error: the
// result carries aggregate {"error": "adapter_not_supported"} and no
// trials. A Setup failure is an error; teardown always runs after a
// successful Setup, and its failures are logged only.
func (r *ScenarioRunner) Run(ctx context.Context, scenarioName, adapterName string, trials int, progress func()) (membench.ScenarioResult, error) {
	sc, err := scenario.New(scenarioName)
	if err != nil {
		return membench.ScenarioResult{}, err
	}
	sc.Configure(r.cfg.ScenarioConfig(scenarioName))

	if !sc.SupportsAdapter(adapterName) {
		r.log.Info("combination not supported", "scenario", scenarioName, "adapter", adapterName)
		return membench.ScenarioResult{
			ScenarioName: scenarioName,
			AdapterName:  adapterName,
			Aggregate:    map[string]any{"error": "adapter_not_supported"},
			Config:       r.cfg.ScenarioConfig(scenarioName),
		}, nil
	}

	mem, err := r.newAdapter(adapterName)
	if err != nil {
		return membench.ScenarioResult{}, err
	}
	// Teardown must cover a partially failed Setup: a backend can have
	// started some of its containers before erroring out, and those hold
	// fixed host ports until released.
	defer func() {
		if err := mem.Teardown(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("teardown failed", "adapter", adapterName, "err", err)
		}
	}()

	r.log.Info("setting up adapter", "adapter", adapterName)
	if err := mem.Setup(ctx); err != nil {
		return membench.ScenarioResult{}, fmt.Errorf("setup %s: %w", adapterName, err)
	}

	r.log.Info("running scenario", "scenario", scenarioName, "adapter", adapterName, "trials", trials)
	return sc.Run(ctx, mem, r.gen, trials, progress), nil
}

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"membench"
	"membench/internal/config"
	"membench/internal/results"
	"membench/internal/scenario"
)

// SuiteOptions narrow a suite run. Empty slices mean "all".
type SuiteOptions struct {
	Scenarios []string
	Adapters  []string
	Trials    int
	OutputDir string
	// Progress, when set, is called once per completed trial with the
	// combination it belongs to.
	Progress func(scenarioName, adapterName string)
}

// SuiteRunner runs every selected scenario/adapter combination
// sequentially and persists each result as soon as it completes, so an
// interrupted suite still leaves the finished combinations on disk.
type SuiteRunner struct {
	cfg    *config.Config
	runner *ScenarioRunner
	log    *slog.Logger
}

// NewSuiteRunner wires a suite over a single-combination runner.
func NewSuiteRunner(cfg *config.Config, runner *ScenarioRunner) *SuiteRunner {
	return &SuiteRunner{
		cfg:    cfg,
		runner: runner,
		log:    slog.With("component", "suite"),
	}
}

// Run executes the suite. One failed combination is logged and skipped;
// the suite carries on. The error return covers suite-level failures
// only, such as an unwritable output directory.
func (s *SuiteRunner) Run(ctx context.Context, opts SuiteOptions) (membench.SuiteResult, error) {
	scenarios := opts.Scenarios
	if len(scenarios) == 0 {
		scenarios = scenario.Names()
	}
	adapters := opts.Adapters
	if len(adapters) == 0 {
		adapters = AdapterNames()
	}
	trials := opts.Trials
	if trials <= 0 {
		trials = s.cfg.Defaults.Trials
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = s.cfg.Defaults.OutputDir
	}

	if err := validateNames(scenarios, scenario.Names(), "scenario"); err != nil {
		return membench.SuiteResult{}, err
	}
	if err := validateNames(adapters, AdapterNames(), "adapter"); err != nil {
		return membench.SuiteResult{}, err
	}

	writer, err := results.NewWriter(outputDir)
	if err != nil {
		return membench.SuiteResult{}, err
	}
	defer writer.Close()

	startedAt := time.Now().UTC().Format(time.RFC3339Nano)
	manifest := map[string]any{
		"run_id":     writer.RunID(),
		"started_at": startedAt,
		"scenarios":  scenarios,
		"adapters":   adapters,
		"trials":     trials,
		"llm": map[string]any{
			"provider": s.cfg.LLM.Provider,
			"model":    s.cfg.LLM.Model,
		},
	}
	if err := writer.WriteManifest(manifest); err != nil {
		return membench.SuiteResult{}, err
	}

	suite := membench.SuiteResult{
		StartedAt: startedAt,
		Config:    manifest,
	}

	for _, scenarioName := range scenarios {
		for _, adapterName := range adapters {
			progress := func() {
				if opts.Progress != nil {
					opts.Progress(scenarioName, adapterName)
				}
			}
			res, err := s.runner.Run(ctx, scenarioName, adapterName, trials, progress)
			if err != nil {
				if ctx.Err() != nil {
					return suite, ctx.Err()
				}
				s.log.Error("combination failed", "scenario", scenarioName, "adapter", adapterName, "err", err)
				res = membench.ScenarioResult{
					ScenarioName: scenarioName,
					AdapterName:  adapterName,
					Aggregate:    map[string]any{"error": err.Error()},
				}
			}
			suite.Results = append(suite.Results, res)
			if err := writer.WriteScenarioResult(res); err != nil {
				s.log.Error("persist failed", "scenario", scenarioName, "adapter", adapterName, "err", err)
			}
		}
	}

	suite.CompletedAt = time.Now().UTC().Format(time.RFC3339Nano)
	if err := writer.WriteSuiteResult(suite); err != nil {
		return suite, err
	}
	s.log.Info("suite complete", "results", len(suite.Results), "output", outputDir)
	return suite, nil
}

func validateNames(requested, known []string, kind string) error {
	for _, name := range requested {
		if !slices.Contains(known, name) {
			return fmt.Errorf("unknown %s %q", kind, name)
		}
	}
	return nil
}

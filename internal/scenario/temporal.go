package scenario

import (
	"context"
	"fmt"
	"time"

	"membench"
	"membench/internal/adapter"
)

// temporalVersioning tests time-scoped consistency: write fact versions
// at spaced timestamps, then replay to an intermediate timestamp and
// check that the version current at that moment, not the latest one,
// is reported.
type temporalVersioning struct {
	base
	versions     int
	queryPoints  int
	versionDelay time.Duration
}

func newTemporalVersioning() *temporalVersioning {
	return &temporalVersioning{
		base:         newBase("chronicle"),
		versions:     5,
		queryPoints:  3,
		versionDelay: time.Second,
	}
}

func (s *temporalVersioning) Name() string { return "temporal_versioning" }
func (s *temporalVersioning) Description() string {
	return "Test retrieval of fact versions at specific timestamps"
}
func (s *temporalVersioning) Guarantee() string { return "consistency" }

func (s *temporalVersioning) Configure(cfg map[string]any) {
	s.configure(cfg)
	s.versions = cfgInt(cfg, "versions", s.versions)
	s.queryPoints = cfgInt(cfg, "query_points", s.queryPoints)
	if secs := cfgFloat(cfg, "delay_between_versions", s.versionDelay.Seconds()); secs >= 0 {
		s.versionDelay = time.Duration(secs * float64(time.Second))
	}
}

func (s *temporalVersioning) Run(ctx context.Context, mem adapter.Memory, gen membench.Generator, trials int, progress func()) membench.ScenarioResult {
	startedAt := nowStamp()
	results := runLoop(ctx, mem, trials, progress, func(ctx context.Context, trialID int) (membench.TrialResult, error) {
		return s.trial(ctx, mem)
	})
	return membench.ScenarioResult{
		ScenarioName: s.Name(),
		AdapterName:  mem.Name(),
		Trials:       results,
		Aggregate:    s.aggregate(results),
		Config:       s.cfg,
		StartedAt:    startedAt,
		CompletedAt:  nowStamp(),
	}
}

func (s *temporalVersioning) trial(ctx context.Context, mem adapter.Memory) (membench.TrialResult, error) {
	start := time.Now()

	if !mem.Supports(membench.CapabilityReplay) {
		return membench.TrialResult{}, &adapter.NotSupportedError{Adapter: mem.Name(), Op: "replay_to"}
	}

	values := make([]string, s.versions)
	timestamps := make([]time.Time, s.versions)

	for i := range values {
		values[i] = fmt.Sprintf("temporal_value_v%d", i+1)
		timestamps[i] = time.Now()

		ev := membench.NewEvent("The current value is "+values[i], "fact_update")
		ev.Timestamp = timestamps[i]
		ev.Metadata["version"] = i + 1
		ev.Metadata["value"] = values[i]
		if _, err := mem.WriteEvent(ctx, ev); err != nil {
			return membench.TrialResult{}, err
		}

		if i < len(values)-1 {
			time.Sleep(s.versionDelay)
		}
	}
	writeTime := millisSince(start)

	queryResults := []map[string]any{}
	correct := 0

	for _, idx := range s.selectQueryPoints() {
		target := timestamps[idx]
		expected := values[idx]

		// Replay to just past the target write so it is included.
		state, err := mem.ReplayTo(ctx, target.Add(100*time.Millisecond))
		if err != nil {
			result := "error"
			if adapter.IsNotSupported(err) {
				result = "not_supported"
			}
			queryResults = append(queryResults, map[string]any{
				"target_version": idx + 1,
				"result":         result,
				"error":          err.Error(),
			})
			continue
		}

		// The latest fact_update in the replayed state is the version
		// current at the target time.
		var found string
		for _, ev := range state.Events {
			if ev.EventType == "fact_update" {
				if v, ok := ev.Metadata["value"].(string); ok {
					found = v
				}
			}
		}

		result := "not_found"
		switch {
		case found == expected:
			result = "correct"
			correct++
		case found != "":
			result = "wrong_version"
		}
		queryResults = append(queryResults, map[string]any{
			"target_version": idx + 1,
			"expected_value": expected,
			"found_value":    found,
			"result":         result,
		})
	}

	accuracy := 0.0
	if len(queryResults) > 0 {
		accuracy = float64(correct) / float64(len(queryResults))
	}

	return membench.TrialResult{
		Success: correct == len(queryResults) && len(queryResults) > 0,
		Metrics: map[string]any{
			"versions":          s.versions,
			"query_points":      len(queryResults),
			"correct_queries":   correct,
			"temporal_accuracy": accuracy,
			"query_results":     queryResults,
			"write_time_ms":     writeTime,
		},
		TimingMillis: millisSince(start),
	}, nil
}

// selectQueryPoints picks evenly spaced middle versions, never the first
// or last: those are trivially answered by any backend.
func (s *temporalVersioning) selectQueryPoints() []int {
	available := make([]int, 0, s.versions)
	for i := 1; i < s.versions-1; i++ {
		available = append(available, i)
	}
	if len(available) <= s.queryPoints {
		return available
	}
	step := float64(len(available)) / float64(s.queryPoints)
	out := make([]int, 0, s.queryPoints)
	for i := 0; i < s.queryPoints; i++ {
		out = append(out, available[int(float64(i)*step)])
	}
	return out
}

func (s *temporalVersioning) aggregate(results []membench.TrialResult) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}

	var valid []membench.TrialResult
	for _, r := range results {
		if _, ok := r.Metrics["temporal_accuracy"]; ok {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return map[string]any{"error": "no_valid_trials", "total_trials": len(results)}
	}

	var totalAccuracy, totalTiming float64
	perfect := 0
	for _, r := range valid {
		acc, _ := r.Metrics["temporal_accuracy"].(float64)
		totalAccuracy += acc
		if acc == 1 {
			perfect++
		}
		totalTiming += r.TimingMillis
	}

	return map[string]any{
		"total_trials":           len(results),
		"valid_trials":           len(valid),
		"mean_temporal_accuracy": totalAccuracy / float64(len(valid)),
		"perfect_trials":         perfect,
		"mean_timing_ms":         totalTiming / float64(len(valid)),
	}
}

package scenario

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"membench"
	"membench/internal/adapter"
)

// determinism tests that replaying the same event log twice produces
// byte-identical state. Two replays to the same timestamp must hash to
// the same value.
type determinism struct {
	base
	historySize int
}

func newDeterminism() *determinism {
	return &determinism{
		base:        newBase("chronicle"),
		historySize: 1000,
	}
}

func (s *determinism) Name() string { return "determinism" }
func (s *determinism) Description() string {
	return "Test that replay produces identical results"
}
func (s *determinism) Guarantee() string { return "replay" }

func (s *determinism) Configure(cfg map[string]any) {
	s.configure(cfg)
	s.historySize = cfgInt(cfg, "history_size", s.historySize)
}

func (s *determinism) Run(ctx context.Context, mem adapter.Memory, gen membench.Generator, trials int, progress func()) membench.ScenarioResult {
	startedAt := nowStamp()
	results := runLoop(ctx, mem, trials, progress, func(ctx context.Context, trialID int) (membench.TrialResult, error) {
		return s.trial(ctx, mem, trialID)
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

func (s *determinism) trial(ctx context.Context, mem adapter.Memory, trialID int) (membench.TrialResult, error) {
	start := time.Now()

	if !mem.Supports(membench.CapabilityReplay) {
		return membench.TrialResult{}, &adapter.NotSupportedError{Adapter: mem.Name(), Op: "replay_to"}
	}

	for i := 0; i < s.historySize; i++ {
		ev := membench.NewEvent(fmt.Sprintf("Determinism test event %d", i), "test")
		ev.Metadata["index"] = i
		ev.Metadata["trial"] = trialID
		if _, err := mem.WriteEvent(ctx, ev); err != nil {
			return membench.TrialResult{}, err
		}
	}

	finalTS := time.Now()

	state1, err := mem.ReplayTo(ctx, finalTS)
	if err != nil {
		return membench.TrialResult{
			Success:      false,
			Metrics:      map[string]any{"error_type": "replay_failed"},
			Error:        "first replay failed: " + err.Error(),
			TimingMillis: millisSince(start),
		}, nil
	}
	hash1 := hashState(state1)

	state2, err := mem.ReplayTo(ctx, finalTS)
	if err != nil {
		return membench.TrialResult{
			Success:      false,
			Metrics:      map[string]any{"error_type": "replay_failed"},
			Error:        "second replay failed: " + err.Error(),
			TimingMillis: millisSince(start),
		}, nil
	}
	hash2 := hashState(state2)

	match := hash1 == hash2

	return membench.TrialResult{
		Success: match,
		Metrics: map[string]any{
			"history_size":  s.historySize,
			"state1_hash":   hash1,
			"state2_hash":   hash2,
			"states_match":  match,
			"state1_events": len(state1.Events),
			"state2_events": len(state2.Events),
		},
		TimingMillis: millisSince(start),
	}, nil
}

// hashState digests the ordered event contents of a replayed state.
func hashState(state membench.State) string {
	contents := make([]string, len(state.Events))
	for i, ev := range state.Events {
		contents[i] = ev.Content
	}
	data, _ := json.Marshal(contents)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

func (s *determinism) aggregate(results []membench.TrialResult) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}

	var valid []membench.TrialResult
	for _, r := range results {
		if _, ok := r.Metrics["states_match"]; ok {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return map[string]any{"error": "no_valid_trials"}
	}

	matches := 0
	var totalTiming float64
	for _, r := range valid {
		if r.Metrics["states_match"] == true {
			matches++
		}
		totalTiming += r.TimingMillis
	}

	return map[string]any{
		"total_trials":         len(results),
		"valid_trials":         len(valid),
		"deterministic_trials": matches,
		"determinism_rate":     float64(matches) / float64(len(valid)),
		"mean_timing_ms":       totalTiming / float64(len(valid)),
	}
}

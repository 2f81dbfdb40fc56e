package scenario

import (
	"context"
	"log/slog"

	"membench"
	"membench/internal/adapter"
	"membench/internal/check"
)

// trialFunc is the body of one trial. A returned error is classified by
// the loop; a returned result is recorded as-is.
type trialFunc func(ctx context.Context, trialID int) (membench.TrialResult, error)

// runLoop is the standard trial-execution state machine. Every trial
// starts from cleared adapter state; a failed clear is itself a recorded
// framework failure, never a silent skip. The progress callback fires
// exactly once per trial regardless of outcome.
func runLoop(ctx context.Context, mem adapter.Memory, trials int, progress func(), body trialFunc) []membench.TrialResult {
	results := make([]membench.TrialResult, 0, trials)
	for trialID := 0; trialID < trials; trialID++ {
		results = append(results, runOne(ctx, mem, trialID, body))
		if progress != nil {
			progress()
		}
	}
	check.Assertf(len(results) == trials, "trial loop produced %d results for %d trials", len(results), trials)
	return results
}

// runOne executes a single trial: clear, body, classify.
func runOne(ctx context.Context, mem adapter.Memory, trialID int, body trialFunc) membench.TrialResult {
	if err := mem.Clear(ctx); err != nil {
		slog.Error("trial clear failed", "trial", trialID, "err", err)
		return membench.TrialResult{
			TrialID: trialID,
			Success: false,
			Metrics: map[string]any{"error_type": "exception"},
			Error:   "clear failed: " + err.Error(),
		}
	}

	result, err := body(ctx, trialID)
	if err != nil {
		return classifyTrialError(trialID, err)
	}
	result.TrialID = trialID
	return result
}

// classifyTrialError maps a trial body error onto the recorded taxonomy:
// a capability the adapter lacks is "not_supported", everything else is
// "exception".
func classifyTrialError(trialID int, err error) membench.TrialResult {
	errType := "exception"
	if adapter.IsNotSupported(err) {
		errType = "not_supported"
	}
	return membench.TrialResult{
		TrialID: trialID,
		Success: false,
		Metrics: map[string]any{"error_type": errType},
		Error:   err.Error(),
	}
}

// defaultAggregate is the reduction every scenario gets unless it defines
// its own: success rate, mean timing, error count. Empty input yields an
// empty aggregate, never a division by zero.
func defaultAggregate(results []membench.TrialResult) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}

	successes := 0
	errors := 0
	var totalTiming float64
	for _, r := range results {
		if r.Success {
			successes++
		}
		if r.Error != "" {
			errors++
		}
		totalTiming += r.TimingMillis
	}

	return map[string]any{
		"success_rate":   float64(successes) / float64(len(results)),
		"mean_timing_ms": totalTiming / float64(len(results)),
		"error_count":    errors,
		"total_trials":   len(results),
	}
}

// notSupportedResult is the single-trial result a tiered scenario reports
// when the adapter lacks its required capability up front.
func notSupportedResult(scenarioName, adapterName, reason string, cfg map[string]any, startedAt string) membench.ScenarioResult {
	return membench.ScenarioResult{
		ScenarioName: scenarioName,
		AdapterName:  adapterName,
		Trials: []membench.TrialResult{{
			TrialID: 0,
			Success: false,
			Metrics: map[string]any{"error_type": "not_supported"},
			Error:   reason,
		}},
		Aggregate:   map[string]any{"error": "not_supported"},
		Config:      cfg,
		StartedAt:   startedAt,
		CompletedAt: nowStamp(),
	}
}

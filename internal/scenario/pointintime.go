package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"membench"
	"membench/internal/adapter"
)

// pointInTime tests state reconstruction at arbitrary timestamps. It
// writes a history, recording checkpoints along the way, then replays
// to each checkpoint and compares the reconstructed event count against
// the recorded one. Trials are tiered by history size so replay latency
// can be related to log length.
type pointInTime struct {
	base
	historySizes       []int
	checkpointsPerSize int
}

func newPointInTime() *pointInTime {
	return &pointInTime{
		base:               newBase("chronicle"),
		historySizes:       []int{100, 1000, 10000},
		checkpointsPerSize: 5,
	}
}

func (s *pointInTime) Name() string { return "point_in_time" }
func (s *pointInTime) Description() string {
	return "Test state reconstruction at arbitrary timestamps"
}
func (s *pointInTime) Guarantee() string { return "replay" }

func (s *pointInTime) Configure(cfg map[string]any) {
	s.configure(cfg)
	s.historySizes = cfgInts(cfg, "history_sizes", s.historySizes)
	s.checkpointsPerSize = cfgInt(cfg, "checkpoints_per_size", s.checkpointsPerSize)
}

// Run replaces the standard loop: the trial budget is split across the
// history-size tiers, at least one trial each.
func (s *pointInTime) Run(ctx context.Context, mem adapter.Memory, gen membench.Generator, trials int, progress func()) membench.ScenarioResult {
	startedAt := nowStamp()

	if !mem.Supports(membench.CapabilityReplay) {
		result := notSupportedResult(s.Name(), mem.Name(),
			fmt.Sprintf("%s does not support replay", mem.Name()), s.cfg, startedAt)
		if progress != nil {
			progress()
		}
		return result
	}

	var results []membench.TrialResult
	trialID := 0
	perSize := max(1, trials/len(s.historySizes))

	for _, size := range s.historySizes {
		for i := 0; i < perSize; i++ {
			size := size
			results = append(results, runOne(ctx, mem, trialID, func(ctx context.Context, id int) (membench.TrialResult, error) {
				return s.trialWithSize(ctx, mem, size)
			}))
			trialID++
			if progress != nil {
				progress()
			}
		}
	}

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

func (s *pointInTime) trialWithSize(ctx context.Context, mem adapter.Memory, historySize int) (membench.TrialResult, error) {
	start := time.Now()

	interval := max(1, historySize/s.checkpointsPerSize)
	timestamps := make([]time.Time, historySize)
	var checkpointIdx []int

	for i := 0; i < historySize; i++ {
		timestamps[i] = time.Now()
		ev := membench.NewEvent(fmt.Sprintf("Event %d: data_%d", i, i), "test")
		ev.Timestamp = timestamps[i]
		ev.Metadata["index"] = i
		if _, err := mem.WriteEvent(ctx, ev); err != nil {
			return membench.TrialResult{}, err
		}
		if (i+1)%interval == 0 {
			checkpointIdx = append(checkpointIdx, i)
		}
	}
	writeTime := millisSince(start)

	// A checkpoint's replay cutoff sits between its own event and the
	// next one, so the cutoff never swallows later writes.
	cutoff := func(idx int) time.Time {
		if idx+1 < historySize {
			return timestamps[idx].Add(timestamps[idx+1].Sub(timestamps[idx]) / 2)
		}
		return timestamps[idx].Add(time.Millisecond)
	}

	var replayResults []map[string]any
	var totalAccuracy, totalLatency float64

	for _, idx := range checkpointIdx {
		expectedCount := idx + 1
		replayStart := time.Now()
		state, err := mem.ReplayTo(ctx, cutoff(idx))
		latency := millisSince(replayStart)

		if err != nil {
			slog.Warn("replay failed at checkpoint", "expected_count", expectedCount, "err", err)
			replayResults = append(replayResults, map[string]any{
				"expected_count": expectedCount,
				"error":          err.Error(),
				"accuracy":       0.0,
				"latency_ms":     latency,
			})
			totalLatency += latency
			continue
		}

		actual := len(state.Events)
		accuracy := 0.0
		if actual > 0 || expectedCount > 0 {
			accuracy = float64(min(actual, expectedCount)) / float64(max(actual, expectedCount))
		}
		replayResults = append(replayResults, map[string]any{
			"expected_count": expectedCount,
			"actual_count":   actual,
			"accuracy":       accuracy,
			"latency_ms":     latency,
		})
		totalAccuracy += accuracy
		totalLatency += latency
	}

	meanAccuracy, meanLatency := 0.0, 0.0
	if len(replayResults) > 0 {
		meanAccuracy = totalAccuracy / float64(len(replayResults))
		meanLatency = totalLatency / float64(len(replayResults))
	}

	return membench.TrialResult{
		Success: meanAccuracy >= 0.99,
		Metrics: map[string]any{
			"history_size":           historySize,
			"checkpoints":            len(checkpointIdx),
			"mean_accuracy":          meanAccuracy,
			"mean_replay_latency_ms": meanLatency,
			"write_time_ms":          writeTime,
			"replay_results":         replayResults,
		},
		TimingMillis: millisSince(start),
	}, nil
}

func (s *pointInTime) aggregate(results []membench.TrialResult) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}

	var valid []membench.TrialResult
	for _, r := range results {
		if _, ok := r.Metrics["history_size"]; ok {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return map[string]any{"error": "no_valid_trials"}
	}

	type sizeAgg struct {
		accuracy float64
		latency  float64
		count    int
	}
	bySize := map[int]*sizeAgg{}
	var totalAccuracy float64

	for _, r := range valid {
		size, _ := r.Metrics["history_size"].(int)
		agg, ok := bySize[size]
		if !ok {
			agg = &sizeAgg{}
			bySize[size] = agg
		}
		acc, _ := r.Metrics["mean_accuracy"].(float64)
		lat, _ := r.Metrics["mean_replay_latency_ms"].(float64)
		agg.accuracy += acc
		agg.latency += lat
		agg.count++
		totalAccuracy += acc
	}

	sizes := make([]int, 0, len(bySize))
	for size := range bySize {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	sizeStats := make([]map[string]any, 0, len(sizes))
	for _, size := range sizes {
		agg := bySize[size]
		sizeStats = append(sizeStats, map[string]any{
			"size":       size,
			"accuracy":   agg.accuracy / float64(agg.count),
			"latency_ms": agg.latency / float64(agg.count),
		})
	}

	return map[string]any{
		"total_trials":     len(results),
		"valid_trials":     len(valid),
		"by_size":          sizeStats,
		"overall_accuracy": totalAccuracy / float64(len(valid)),
	}
}

package scenario

import (
	"context"
	"fmt"
	"time"

	"membench"
	"membench/internal/adapter"
)

// provenanceChain tests auditability: build a workflow where each event
// references its predecessor by hash, then walk the chain back from the
// final event and verify every link is present and valid.
type provenanceChain struct {
	base
	workflowSteps int
}

func newProvenanceChain() *provenanceChain {
	return &provenanceChain{
		base:          newBase("chronicle"),
		workflowSteps: 5,
	}
}

func (s *provenanceChain) Name() string { return "provenance_chain" }
func (s *provenanceChain) Description() string {
	return "Test hash-chain provenance verification"
}
func (s *provenanceChain) Guarantee() string { return "auditability" }

func (s *provenanceChain) Configure(cfg map[string]any) {
	s.configure(cfg)
	s.workflowSteps = cfgInt(cfg, "workflow_steps", s.workflowSteps)
}

func (s *provenanceChain) Run(ctx context.Context, mem adapter.Memory, gen membench.Generator, trials int, progress func()) membench.ScenarioResult {
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

func (s *provenanceChain) trial(ctx context.Context, mem adapter.Memory) (membench.TrialResult, error) {
	start := time.Now()

	if !mem.Supports(membench.CapabilityProvenance) {
		return membench.TrialResult{}, &adapter.NotSupportedError{Adapter: mem.Name(), Op: "get_provenance"}
	}

	hashes := make([]string, 0, s.workflowSteps)
	parentHash := ""

	for step := 0; step < s.workflowSteps; step++ {
		ev := membench.NewEvent(
			fmt.Sprintf("Workflow step %d: Processing data batch %d", step+1, step),
			"workflow_step",
		)
		ev.Metadata["step"] = step + 1
		ev.Metadata["total_steps"] = s.workflowSteps
		ev.ParentHash = parentHash

		h, err := mem.WriteEvent(ctx, ev)
		if err != nil {
			return membench.TrialResult{}, err
		}
		hashes = append(hashes, h)
		parentHash = h
	}
	writeTime := millisSince(start)

	prov, err := mem.GetProvenance(ctx, hashes[len(hashes)-1])
	if err != nil {
		return membench.TrialResult{}, err
	}

	chainComplete := len(prov.Chain) == s.workflowSteps

	inChain := make(map[string]bool, len(prov.Chain))
	for _, link := range prov.Chain {
		if h, ok := link["hash"].(string); ok {
			inChain[h] = true
		}
		if id, ok := link["event_id"].(string); ok {
			inChain[id] = true
		}
	}
	missing := 0
	for _, h := range hashes {
		if !inChain[h] {
			missing++
		}
	}

	success := chainComplete && prov.Verified && len(prov.Gaps) == 0 && missing == 0

	return membench.TrialResult{
		Success: success,
		Metrics: map[string]any{
			"workflow_steps": s.workflowSteps,
			"chain_length":   len(prov.Chain),
			"chain_complete": chainComplete,
			"all_verified":   prov.Verified,
			"gaps":           len(prov.Gaps),
			"missing_hashes": missing,
			"write_time_ms":  writeTime,
		},
		TimingMillis: millisSince(start),
	}, nil
}

func (s *provenanceChain) aggregate(results []membench.TrialResult) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}

	var valid []membench.TrialResult
	for _, r := range results {
		if _, ok := r.Metrics["chain_complete"]; ok {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return map[string]any{"error": "no_valid_trials", "total_trials": len(results)}
	}

	complete, verified, withGaps, successes := 0, 0, 0, 0
	var totalTiming float64
	for _, r := range valid {
		if r.Metrics["chain_complete"] == true {
			complete++
		}
		if r.Metrics["all_verified"] == true {
			verified++
		}
		if gaps, ok := r.Metrics["gaps"].(int); ok && gaps > 0 {
			withGaps++
		}
		if r.Success {
			successes++
		}
		totalTiming += r.TimingMillis
	}

	return map[string]any{
		"total_trials":     len(results),
		"valid_trials":     len(valid),
		"complete_chains":  complete,
		"verified_chains":  verified,
		"chains_with_gaps": withGaps,
		"success_rate":     float64(successes) / float64(len(valid)),
		"mean_timing_ms":   totalTiming / float64(len(valid)),
	}
}

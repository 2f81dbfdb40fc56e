package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"membench"
	"membench/internal/adapter"
)

// haystackTopics is the filler corpus the needle hides in.
var haystackTopics = []string{
	"The history of computing dates back to ancient times when humans first developed methods for counting.",
	"Weather patterns are influenced by a complex interplay of atmospheric conditions and ocean currents.",
	"Modern architecture has evolved significantly since the industrial revolution began.",
	"The development of agriculture transformed human societies from nomadic to settled communities.",
	"Ocean ecosystems support an incredible diversity of marine life forms.",
	"The human brain contains approximately 86 billion neurons connected by trillions of synapses.",
	"Renewable energy sources are becoming increasingly important for sustainable development.",
	"The printing press revolutionized the spread of information throughout human history.",
	"Mountain ranges form through tectonic plate movements over millions of years.",
	"The development of antibiotics transformed modern medicine in the twentieth century.",
}

// niah is the needle-in-a-haystack retrieval sanity check: hide one
// unique fact in filler content and ask for it back. Every backend,
// including the memoryless baseline, is expected to at least attempt it.
type niah struct {
	base
	corpusSizes     []int
	needlePositions []string
}

func newNIAH() *niah {
	return &niah{
		base:            newBase("chronicle", "vector_rag", "baseline"),
		corpusSizes:     []int{100, 1000},
		needlePositions: []string{"front", "middle", "end"},
	}
}

func (s *niah) Name() string        { return "niah" }
func (s *niah) Description() string { return "Needle-in-haystack basic retrieval test" }
func (s *niah) Guarantee() string   { return "baseline" }

func (s *niah) Configure(cfg map[string]any) {
	s.configure(cfg)
	s.corpusSizes = cfgInts(cfg, "corpus_sizes", s.corpusSizes)
	s.needlePositions = cfgStrings(cfg, "needle_positions", s.needlePositions)
}

func (s *niah) Run(ctx context.Context, mem adapter.Memory, gen membench.Generator, trials int, progress func()) membench.ScenarioResult {
	startedAt := nowStamp()
	results := runLoop(ctx, mem, trials, progress, func(ctx context.Context, trialID int) (membench.TrialResult, error) {
		return s.trial(ctx, mem, gen, trialID)
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

func (s *niah) trial(ctx context.Context, mem adapter.Memory, gen membench.Generator, trialID int) (membench.TrialResult, error) {
	start := time.Now()

	corpusSize := s.corpusSizes[s.rng.Intn(len(s.corpusSizes))]
	position := s.needlePositions[s.rng.Intn(len(s.needlePositions))]

	needleValue := fmt.Sprintf("SECRET_%d_%04d", trialID, 1000+s.rng.Intn(9000))
	needleContent := fmt.Sprintf("The secret code is %s. Remember this important information.", needleValue)

	var needleIdx int
	switch position {
	case "front":
		needleIdx = corpusSize / 10
	case "middle":
		needleIdx = corpusSize / 2
	default:
		needleIdx = corpusSize - corpusSize/10
	}

	for i := 0; i < corpusSize; i++ {
		content := haystackTopics[s.rng.Intn(len(haystackTopics))]
		eventType := "haystack"
		if i == needleIdx {
			content = needleContent
			eventType = "needle"
		}
		ev := membench.NewEvent(content, eventType)
		ev.Metadata["index"] = i
		if _, err := mem.WriteEvent(ctx, ev); err != nil {
			return membench.TrialResult{}, err
		}
	}
	writeTime := millisSince(start)

	queryStart := time.Now()
	res, err := mem.Query(ctx, "What is the secret code?", gen)
	if err != nil {
		return membench.TrialResult{}, err
	}

	found := strings.Contains(res.Response, needleValue)

	return membench.TrialResult{
		Success: found,
		Metrics: map[string]any{
			"corpus_size":     corpusSize,
			"needle_position": position,
			"needle_index":    needleIdx,
			"needle_value":    needleValue,
			"needle_found":    found,
			"context_events":  len(res.ContextEvents),
			"context_tokens":  res.ContextTokens,
			"write_time_ms":   writeTime,
			"query_time_ms":   millisSince(queryStart),
		},
		RawOutput:    res.Response,
		TimingMillis: millisSince(start),
	}, nil
}

func (s *niah) aggregate(results []membench.TrialResult) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}

	var valid []membench.TrialResult
	for _, r := range results {
		if _, ok := r.Metrics["needle_found"]; ok {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return map[string]any{"error": "no_valid_trials"}
	}

	found := 0
	var totalTiming float64
	byPosition := map[string]*ratio{}
	bySize := map[string]*ratio{}
	for _, r := range valid {
		hit := r.Metrics["needle_found"] == true
		if hit {
			found++
		}
		totalTiming += r.TimingMillis
		if pos, ok := r.Metrics["needle_position"].(string); ok {
			tally(byPosition, pos, hit)
		}
		if size, ok := r.Metrics["corpus_size"].(int); ok {
			tally(bySize, fmt.Sprint(size), hit)
		}
	}

	return map[string]any{
		"total_trials":   len(results),
		"valid_trials":   len(valid),
		"accuracy":       float64(found) / float64(len(valid)),
		"by_position":    rates(byPosition),
		"by_corpus_size": rates(bySize),
		"mean_timing_ms": totalTiming / float64(len(valid)),
	}
}

type ratio struct{ hits, total int }

func tally(m map[string]*ratio, key string, hit bool) {
	r, ok := m[key]
	if !ok {
		r = &ratio{}
		m[key] = r
	}
	r.total++
	if hit {
		r.hits++
	}
}

func rates(m map[string]*ratio) map[string]float64 {
	out := make(map[string]float64, len(m))
	for key, r := range m {
		out[key] = float64(r.hits) / float64(r.total)
	}
	return out
}

package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"membench"
	"membench/internal/adapter"
)

var distractorTopics = []string{
	"weather", "sports", "cooking", "travel", "movies", "music",
	"technology", "science", "history", "art", "books", "games",
	"fitness", "gardening", "photography", "pets", "fashion", "food",
}

var distractorTemplates = []string{
	"I really enjoy %s. It's one of my favorite things.",
	"Have you heard the latest news about %s?",
	"I was thinking about %s the other day.",
	"My friend told me something interesting about %s.",
	"I read an article about %s recently.",
	"What do you think about %s?",
	"Let me tell you about my experience with %s.",
	"I'm planning to learn more about %s.",
}

// factCorrection tests consistency: plant a fact, bury it under
// distractor turns, update it, repeat, then ask for the current value.
// The answer is graded correct (latest version), stale (an older
// version), or hallucinated (no version at all) by literal containment.
type factCorrection struct {
	base
	versions              int
	distractorsPerVersion int
	factType              string
}

func newFactCorrection() *factCorrection {
	return &factCorrection{
		base:                  newBase("chronicle", "vector_rag", "baseline"),
		versions:              5,
		distractorsPerVersion: 100,
		factType:              "email",
	}
}

func (s *factCorrection) Name() string { return "fact_correction" }
func (s *factCorrection) Description() string {
	return "Test retrieval of most recent fact version"
}
func (s *factCorrection) Guarantee() string { return "consistency" }

func (s *factCorrection) Configure(cfg map[string]any) {
	s.configure(cfg)
	s.versions = cfgInt(cfg, "versions", s.versions)
	s.distractorsPerVersion = cfgInt(cfg, "distractors_per_version", s.distractorsPerVersion)
	s.factType = cfgString(cfg, "fact_type", s.factType)
}

func (s *factCorrection) Run(ctx context.Context, mem adapter.Memory, gen membench.Generator, trials int, progress func()) membench.ScenarioResult {
	startedAt := nowStamp()
	results := runLoop(ctx, mem, trials, progress, func(ctx context.Context, trialID int) (membench.TrialResult, error) {
		return s.trial(ctx, mem, gen)
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

func (s *factCorrection) trial(ctx context.Context, mem adapter.Memory, gen membench.Generator) (membench.TrialResult, error) {
	start := time.Now()

	values := s.factValues()
	eventsWritten := 0

	for i, value := range values {
		fact := membench.NewEvent(s.formatFact(value), "fact_update")
		fact.Metadata["fact_type"] = s.factType
		fact.Metadata["version"] = i + 1
		fact.Metadata["value"] = value
		if _, err := mem.WriteEvent(ctx, fact); err != nil {
			return membench.TrialResult{}, err
		}
		eventsWritten++

		// No distractors after the final version: the latest fact stays
		// the most recent write.
		if i == len(values)-1 {
			break
		}
		for d := 0; d < s.distractorsPerVersion; d++ {
			if _, err := mem.WriteEvent(ctx, membench.NewEvent(s.distractor(), "conversation")); err != nil {
				return membench.TrialResult{}, err
			}
			eventsWritten++
		}
	}
	writeTime := millisSince(start)

	queryStart := time.Now()
	res, err := mem.Query(ctx, s.formatQuery(), gen)
	if err != nil {
		return membench.TrialResult{}, err
	}
	queryTime := millisSince(queryStart)

	grade, matchedVersion := gradeResponse(res.Response, values)

	metrics := map[string]any{
		"grade":                   grade,
		"expected_value":          values[len(values)-1],
		"versions":                s.versions,
		"distractors_per_version": s.distractorsPerVersion,
		"events_written":          eventsWritten,
		"context_events":          len(res.ContextEvents),
		"context_tokens":          res.ContextTokens,
		"write_time_ms":           writeTime,
		"query_time_ms":           queryTime,
	}
	if matchedVersion > 0 {
		metrics["matched_version"] = matchedVersion
	}

	return membench.TrialResult{
		Success:      grade == "correct",
		Metrics:      metrics,
		RawOutput:    res.Response,
		TimingMillis: millisSince(start),
	}, nil
}

func (s *factCorrection) factValues() []string {
	values := make([]string, s.versions)
	for i := range values {
		v := i + 1
		switch s.factType {
		case "email":
			values[i] = fmt.Sprintf("user_v%d@example.com", v)
		case "phone":
			values[i] = fmt.Sprintf("555-000-%04d", v)
		case "address":
			values[i] = fmt.Sprintf("%d Main Street, City %d", v*100, v)
		case "budget":
			values[i] = fmt.Sprintf("$%d", v*10000)
		default:
			values[i] = fmt.Sprintf("value_v%d", v)
		}
	}
	return values
}

func (s *factCorrection) formatFact(value string) string {
	switch s.factType {
	case "email":
		return "My email address is " + value
	case "phone":
		return "My phone number is " + value
	case "address":
		return "My address is " + value
	case "budget":
		return "My budget is " + value
	default:
		return "The value is " + value
	}
}

func (s *factCorrection) formatQuery() string {
	switch s.factType {
	case "email":
		return "What is my email address?"
	case "phone":
		return "What is my phone number?"
	case "address":
		return "What is my address?"
	case "budget":
		return "What is my budget?"
	default:
		return "What is the value?"
	}
}

func (s *factCorrection) distractor() string {
	topic := distractorTopics[s.rng.Intn(len(distractorTopics))]
	template := distractorTemplates[s.rng.Intn(len(distractorTemplates))]
	return fmt.Sprintf(template, topic)
}

// gradeResponse classifies a response against the planted fact versions.
// matchedVersion is zero when the response matched nothing.
func gradeResponse(response string, values []string) (grade string, matchedVersion int) {
	lower := strings.ToLower(response)

	if strings.Contains(lower, strings.ToLower(values[len(values)-1])) {
		return "correct", len(values)
	}
	for i, value := range values[:len(values)-1] {
		if strings.Contains(lower, strings.ToLower(value)) {
			return "stale", i + 1
		}
	}
	return "hallucinated", 0
}

func (s *factCorrection) aggregate(results []membench.TrialResult) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}

	correct, stale, hallucinated := 0, 0, 0
	var totalTiming, totalQueryTime float64
	staleVersions := map[string]int{}

	for _, r := range results {
		switch r.Metrics["grade"] {
		case "correct":
			correct++
		case "stale":
			stale++
			if v, ok := r.Metrics["matched_version"].(int); ok {
				staleVersions[fmt.Sprint(v)]++
			}
		case "hallucinated":
			hallucinated++
		}
		totalTiming += r.TimingMillis
		if qt, ok := r.Metrics["query_time_ms"].(float64); ok {
			totalQueryTime += qt
		}
	}

	n := float64(len(results))
	errors := len(results) - correct - stale - hallucinated

	return map[string]any{
		"correct_rate":               float64(correct) / n,
		"stale_rate":                 float64(stale) / n,
		"hallucination_rate":         float64(hallucinated) / n,
		"error_rate":                 float64(errors) / n,
		"total_trials":               len(results),
		"correct_count":              correct,
		"stale_count":                stale,
		"hallucinated_count":         hallucinated,
		"mean_timing_ms":             totalTiming / n,
		"mean_query_time_ms":         totalQueryTime / n,
		"stale_version_distribution": staleVersions,
	}
}

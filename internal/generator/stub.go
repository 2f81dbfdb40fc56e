package generator

import (
	"context"
	"strings"
	"time"

	"membench"
)

// Stub is a deterministic offline generator. It answers with the context
// line sharing the most tokens with the question, so a run's outcome
// depends only on what the backend retrieved, never on a model. This is
// the provider used in tests and dry runs.
type Stub struct{}

// NewStub creates a stub generator.
func NewStub() *Stub {
	return &Stub{}
}

func (s *Stub) Complete(_ context.Context, prompt string) (membench.Completion, error) {
	start := time.Now()
	answer := answerFromPrompt(prompt)
	return membench.Completion{
		Text:             answer,
		PromptTokens:     CountTokens(prompt),
		CompletionTokens: CountTokens(answer),
		Model:            "stub",
		LatencyMillis:    float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

// answerFromPrompt picks the context line with the highest question-token
// overlap. With no context lines the answer admits it knows nothing, the
// honest no-memory behavior.
func answerFromPrompt(prompt string) string {
	question := extractQuestion(prompt)
	qTokens := tokenSet(question)

	best := ""
	bestScore := 0
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[") {
			continue
		}
		score := 0
		for tok := range tokenSet(line) {
			if qTokens[tok] {
				score++
			}
		}
		if score > bestScore || (best == "" && score == bestScore && line != "") {
			best = line
			bestScore = score
		}
	}
	if best == "" {
		return "I don't have any information about that."
	}
	// Strip the "[n] " context marker.
	if i := strings.Index(best, "] "); i >= 0 {
		best = best[i+2:]
	}
	return best
}

func extractQuestion(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if rest, ok := strings.CutPrefix(line, "Question: "); ok {
			return rest
		}
	}
	return prompt
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(tok, ".,!?:;\"'")] = true
	}
	return set
}

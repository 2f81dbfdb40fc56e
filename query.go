package membench

import "context"

// QueryResult is the outcome of one retrieval-plus-generation round trip.
// The three timing components are reported separately so scenarios can
// attribute latency to the backend or the generator.
type QueryResult struct {
	Response        string           `json:"response"`
	ContextEvents   []map[string]any `json:"context_events"`
	ContextTokens   int              `json:"context_tokens"`
	RetrievalMillis float64          `json:"query_time_ms"`
	GenerateMillis  float64          `json:"llm_time_ms"`
	TotalMillis     float64          `json:"total_time_ms"`
}

// Completion is one answer from the generator boundary.
type Completion struct {
	Text             string  `json:"text"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Model            string  `json:"model"`
	LatencyMillis    float64 `json:"latency_ms"`
}

// TotalTokens is the prompt plus completion token count.
func (c Completion) TotalTokens() int {
	return c.PromptTokens + c.CompletionTokens
}

// Generator is the text-generation boundary. The harness treats it as an
// opaque, possibly slow, possibly failing remote call.
type Generator interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

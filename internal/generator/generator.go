// Package generator provides the LLM boundary of the harness. Scenarios
// never talk to a provider directly; they hand a prompt to a Generator
// and get back text plus token accounting. Temperature defaults to zero
// so repeated trials see the least model nondeterminism the providers
// allow.
package generator

import (
	"fmt"
	"net/http"

	"membench"
)

// Config selects and parameterizes a completion provider.
type Config struct {
	Provider    string  // "openai", "anthropic", "stub"
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
	BaseURL     string
}

// New constructs a Generator for the configured provider.
func New(cfg Config) (membench.Generator, error) {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}

	switch cfg.Provider {
	case "openai", "":
		opts := []OpenAIOption{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.BaseURL))
		}
		return NewOpenAI(cfg, opts...), nil
	case "anthropic":
		opts := []AnthropicOption{}
		if cfg.BaseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(cfg.BaseURL))
		}
		return NewAnthropic(cfg, opts...), nil
	case "stub":
		return NewStub(), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

func defaultHTTPClient() *http.Client {
	// Long enough for a slow completion; trials carry their own context
	// deadlines on top.
	return &http.Client{}
}

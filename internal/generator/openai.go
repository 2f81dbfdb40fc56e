package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"membench"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAI generates completions through the chat completions endpoint.
type OpenAI struct {
	cfg  Config
	base string
	hc   *http.Client
}

// OpenAIOption configures an OpenAI generator.
type OpenAIOption func(*OpenAI)

// WithOpenAIBaseURL points the client at a different API host.
func WithOpenAIBaseURL(base string) OpenAIOption {
	return func(g *OpenAI) { g.base = base }
}

// WithOpenAIHTTPClient overrides the HTTP client.
func WithOpenAIHTTPClient(hc *http.Client) OpenAIOption {
	return func(g *OpenAI) { g.hc = hc }
}

// NewOpenAI creates an OpenAI-backed generator.
func NewOpenAI(cfg Config, opts ...OpenAIOption) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "gpt-4-turbo-preview"
	}
	g := &OpenAI{cfg: cfg, base: defaultOpenAIBaseURL, hc: defaultHTTPClient()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *OpenAI) Complete(ctx context.Context, prompt string) (membench.Completion, error) {
	body, err := json.Marshal(map[string]any{
		"model": g.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": g.cfg.Temperature,
		"max_tokens":  g.cfg.MaxTokens,
	})
	if err != nil {
		return membench.Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.base+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return membench.Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	start := time.Now()
	resp, err := g.hc.Do(req)
	if err != nil {
		return membench.Completion{}, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return membench.Completion{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return membench.Completion{}, fmt.Errorf("openai HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return membench.Completion{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return membench.Completion{}, fmt.Errorf("openai returned no choices")
	}

	return membench.Completion{
		Text:             out.Choices[0].Message.Content,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		Model:            g.cfg.Model,
		LatencyMillis:    float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

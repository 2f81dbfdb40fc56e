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

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// Anthropic generates completions through the messages endpoint.
type Anthropic struct {
	cfg  Config
	base string
	hc   *http.Client
}

// AnthropicOption configures an Anthropic generator.
type AnthropicOption func(*Anthropic)

// WithAnthropicBaseURL points the client at a different API host.
func WithAnthropicBaseURL(base string) AnthropicOption {
	return func(g *Anthropic) { g.base = base }
}

// WithAnthropicHTTPClient overrides the HTTP client.
func WithAnthropicHTTPClient(hc *http.Client) AnthropicOption {
	return func(g *Anthropic) { g.hc = hc }
}

// NewAnthropic creates an Anthropic-backed generator.
func NewAnthropic(cfg Config, opts ...AnthropicOption) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	g := &Anthropic{cfg: cfg, base: defaultAnthropicBaseURL, hc: defaultHTTPClient()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Anthropic) Complete(ctx context.Context, prompt string) (membench.Completion, error) {
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
		g.base+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return membench.Completion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", g.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := g.hc.Do(req)
	if err != nil {
		return membench.Completion{}, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return membench.Completion{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return membench.Completion{}, fmt.Errorf("anthropic HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return membench.Completion{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Content) == 0 {
		return membench.Completion{}, fmt.Errorf("anthropic returned no content")
	}

	return membench.Completion{
		Text:             out.Content[0].Text,
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		Model:            g.cfg.Model,
		LatencyMillis:    float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

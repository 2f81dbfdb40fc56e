package vectorrag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// qdrantClient is a thin JSON client for the Qdrant REST API, covering
// only the handful of endpoints the adapter needs.
type qdrantClient struct {
	base string
	hc   *http.Client
}

func newQdrantClient(base string) *qdrantClient {
	return &qdrantClient{
		base: base,
		hc:   &http.Client{Timeout: 30 * time.Second},
	}
}

type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

func isStatus(err error, code int) bool {
	se, ok := err.(*statusError)
	return ok && se.Status == code
}

// point is one stored vector with its payload.
type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (c *qdrantClient) createCollection(ctx context.Context, name string, dim int) error {
	// PUT is idempotent for an existing collection only on some server
	// versions, so tolerate the already-exists conflict explicitly.
	err := c.do(ctx, http.MethodPut, "/collections/"+name, map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Cosine"},
	}, nil)
	if isStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}

func (c *qdrantClient) deleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil)
}

func (c *qdrantClient) upsertPoint(ctx context.Context, coll string, p point) error {
	return c.do(ctx, http.MethodPut, "/collections/"+coll+"/points?wait=true", map[string]any{
		"points": []point{p},
	}, nil)
}

// getPoint retrieves a single point by id. A missing point returns
// (nil, nil) when the server answers with an empty result rather than
// a 404, which varies across versions.
func (c *qdrantClient) getPoint(ctx context.Context, coll, id string) (*point, error) {
	var resp struct {
		Result *point `json:"result"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections/"+coll+"/points/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

type hit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *qdrantClient) search(ctx context.Context, coll string, vector []float32, limit int) ([]hit, error) {
	var resp struct {
		Result []hit `json:"result"`
	}
	err := c.do(ctx, http.MethodPost, "/collections/"+coll+"/points/search", map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *qdrantClient) healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil) == nil
}

func (c *qdrantClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

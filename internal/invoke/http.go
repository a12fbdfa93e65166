package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPClient calls a reasoning service over HTTP. A 429 response maps to
// *RateLimitError so the loop can route it to the rate limiter.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates a client for the given endpoint
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

type invokeRequest struct {
	Provider    string `json:"provider"`
	TaskID      string `json:"task_id"`
	WorkspaceID string `json:"workspace_id"`
	Prompt      string `json:"prompt"`
}

type invokeResponse struct {
	Output string `json:"output"`
}

// Invoke sends the payload and returns the service's result
func (c *HTTPClient) Invoke(ctx context.Context, provider string, payload Payload) (*Result, error) {
	body, err := json.Marshal(invokeRequest{
		Provider:    provider,
		TaskID:      payload.TaskID,
		WorkspaceID: payload.WorkspaceID,
		Prompt:      payload.Prompt,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, &RateLimitError{Provider: provider, RetryAfter: retryAfter}
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reasoning service returned %d: %s", resp.StatusCode, data)
	}

	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &Result{
		TaskID:   payload.TaskID,
		Output:   out.Output,
		Duration: time.Since(started),
	}, nil
}

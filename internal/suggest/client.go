// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultMaxRetries bounds retry attempts on transient failures.
	DefaultMaxRetries = 2

	// DefaultRequestTimeout bounds one suggestion call end to end.
	DefaultRequestTimeout = 10 * time.Second

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second
)

var (
	// ErrRateLimited indicates the backend refused the call (HTTP 429).
	// Rate-limit exhaustion is never retried by the client.
	ErrRateLimited = errors.New("suggestion backend rate limited")

	// ErrNoUsableQueries indicates a success response with zero usable
	// strings.
	ErrNoUsableQueries = errors.New("suggestion backend returned no usable queries")
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// WireMessage is one history entry sent to the suggestion backend.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// wireRequest is the outbound request body.
type wireRequest struct {
	Messages        []WireMessage `json:"messages"`
	LocationContext string        `json:"locationContext,omitempty"`
}

// WireResponse is the suggestion backend's response contract, shared with
// the server implementation.
type WireResponse struct {
	Success          bool     `json:"success"`
	SuggestedQueries []string `json:"suggestedQueries"`
	Error            string   `json:"error,omitempty"`
	Fallback         bool     `json:"fallback,omitempty"`
	Cached           bool     `json:"cached,omitempty"`
}

// =============================================================================
// CLIENT
// =============================================================================

// Client calls the suggestion backend with bounded retries. Transient
// failures (5xx, network) back off exponentially; a 429 returns
// immediately so the caller can fall back without burning the budget.
type Client struct {
	baseURL    string
	hc         *http.Client
	maxRetries int
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithMaxRetries overrides the retry budget for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRequestTimeout overrides the per-call timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// NewClient creates a suggestion backend client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		hc:         &http.Client{Timeout: DefaultRequestTimeout},
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch requests suggestions for the given history window. Any of:
// non-2xx status, success=false, or an unparsable body is returned as an
// error for the engine to absorb into its heuristic fallback.
func (c *Client) Fetch(ctx context.Context, messages []WireMessage, location string) ([]string, error) {
	body, err := json.Marshal(wireRequest{Messages: messages, LocationContext: location})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		queries, retryable, err := c.fetchOnce(ctx, body)
		if err == nil {
			return queries, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// fetchOnce performs a single attempt. The second return reports whether
// the failure is worth retrying.
func (c *Client) fetchOnce(ctx context.Context, body []byte) ([]string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/suggested-queries", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("suggestion backend error (HTTP %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("suggestion backend error (HTTP %d)", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed WireResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, false, fmt.Errorf("malformed response: %w", err)
	}
	if !parsed.Success {
		return nil, false, fmt.Errorf("suggestion backend reported failure: %s", parsed.Error)
	}
	return parsed.SuggestedQueries, false, nil
}

// calculateBackoff returns the exponential backoff delay for an attempt.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return delay
}

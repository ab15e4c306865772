// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/agrichat/internal/model"
)

// sharedStreamingClient is used for chat requests. No client timeout: the
// stream lives as long as the turn, bounded via context.
// SECURITY: TLS 1.2+ enforced
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// OutboundMessage is the provider-neutral history shape. Content is either
// a bare string or a []ContentPart.
type OutboundMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multi-part content list.
type ContentPart struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"` // data URI
}

// chatRequest is the outbound request body.
type chatRequest struct {
	Messages    []OutboundMessage  `json:"messages"`
	UserContext *model.UserContext `json:"userContext,omitempty"`
}

// BackendError reports a non-success HTTP status from the chat backend.
type BackendError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chat backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("chat backend error (HTTP %d)", e.Status)
}

// =============================================================================
// HISTORY MAPPING
// =============================================================================

// BuildHistory maps stored messages to the provider-neutral shape. A user
// message whose content is a single piece of text collapses to a bare
// string; anything richer becomes a typed part list with images as data
// URIs. Assistant messages always collapse to their flattened content.
func BuildHistory(messages []model.Message) []OutboundMessage {
	out := make([]OutboundMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != model.RoleUser {
			out = append(out, OutboundMessage{Role: string(msg.Role), Content: msg.Content})
			continue
		}

		imgs := msg.ImageParts()
		if len(imgs) == 0 {
			out = append(out, OutboundMessage{Role: string(msg.Role), Content: msg.Content})
			continue
		}

		var parts []ContentPart
		if strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, ContentPart{Type: "text", Text: msg.Content})
		}
		for _, img := range imgs {
			parts = append(parts, ContentPart{
				Type:  "image",
				Image: "data:" + img.ImageType + ";base64," + img.ImageData,
			})
		}
		out = append(out, OutboundMessage{Role: string(msg.Role), Content: parts})
	}
	return out
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat backend.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient creates a chat backend client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      sharedStreamingClient,
	}
}

// Send posts the conversation and returns the streaming response body.
// The caller owns closing the body. Non-success statuses are returned as
// *BackendError; a failed chat turn is reported once, never retried.
func (c *Client) Send(ctx context.Context, history []OutboundMessage, userCtx model.UserContext) (io.ReadCloser, error) {
	reqBody := chatRequest{Messages: history}
	if !userCtx.IsZero() {
		reqBody.UserContext = &userCtx
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &BackendError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return resp.Body, nil
}

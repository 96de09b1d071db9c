// Package messaging is the outbound delivery adapter for the conversational
// channel provider. Delivery failures are reported to the caller but are
// never fatal to a turn.
package messaging

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

// Statuses reported by Deliver.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// Client posts outbound messages to the channel provider's HTTP API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient creates a delivery client for the given provider endpoint.
func NewClient(baseURL, authToken string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("messaging: base URL must not be empty")
	}
	if strings.TrimSpace(authToken) == "" {
		return nil, errors.New("messaging: auth token must not be empty")
	}
	c := &Client{
		baseURL:    baseURL,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Deliver sends text to identity and returns the provider's delivery status.
func (c *Client) Deliver(ctx context.Context, identity, text string) (string, error) {
	body, err := json.Marshal(sendRequest{To: identity, Body: text})
	if err != nil {
		return StatusFailed, fmt.Errorf("messaging: marshal request: %w", err)
	}

	url := c.baseURL + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return StatusFailed, fmt.Errorf("messaging: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return StatusFailed, fmt.Errorf("messaging: send to %s: %w", identity, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return StatusFailed, fmt.Errorf("messaging: unexpected status %d from %s: %s",
			res.StatusCode, url, string(buf))
	}

	var payload sendResponse
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return StatusFailed, fmt.Errorf("messaging: read response: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return StatusFailed, fmt.Errorf("messaging: decode response: %w", err)
	}
	if payload.Status == "" {
		payload.Status = StatusSent
	}
	return payload.Status, nil
}

// Package botapi provides an HTTP client for the bot's v1 JSON API.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/radhhh/flae-bot/internal/domain"
)

// Client posts invocations to a running bot.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a new API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Dispatch sends inv to /v1/invocations. Transport failures are reported
// as a response so callers handle local and remote dispatch the same way.
func (c *Client) Dispatch(ctx context.Context, inv domain.Invocation) *domain.Response {
	resp, err := c.Invoke(ctx, inv)
	if err != nil {
		return &domain.Response{Summary: "❌ " + err.Error(), Ephemeral: true}
	}
	return resp
}

// Invoke sends inv and decodes the response.
func (c *Client) Invoke(ctx context.Context, inv domain.Invocation) (*domain.Response, error) {
	body, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invocation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/invocations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach bot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bot returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var out domain.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Package voice bridges the browser voice agent to ElevenLabs conversational AI.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// ErrNotConfigured means the API key or agent id is missing.
var ErrNotConfigured = errors.New("voice agent not configured")

// UpstreamError carries a non-2xx answer from ElevenLabs.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("elevenlabs responded %d: %s", e.StatusCode, e.Body)
}

// Config holds ElevenLabs credentials.
type Config struct {
	APIKey  string        `mapstructure:"api_key"`
	AgentID string        `mapstructure:"agent_id"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client requests signed conversation URLs.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Configured reports whether both the key and the agent id are set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.AgentID != ""
}

// SignedURL asks ElevenLabs for a short-lived websocket URL for the agent.
func (c *Client) SignedURL(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/convai/conversation/get_signed_url?agent_id=" +
		url.QueryEscape(c.cfg.AgentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build signed url request: %w", err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request signed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var payload struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode signed url response: %w", err)
	}
	if payload.SignedURL == "" {
		return "", errors.New("elevenlabs returned an empty signed url")
	}
	return payload.SignedURL, nil
}

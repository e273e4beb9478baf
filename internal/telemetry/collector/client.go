// Package collector provides a client that posts visit payloads to the puzzle collector.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"visitor-relay/internal/telemetry/domain"
)

// URL is the fixed collection endpoint. Not configurable.
const URL = "https://puzzle-server-0l4i.onrender.com/info"

const defaultTimeout = 10 * time.Second

// Client posts payloads as JSON to URL.
type Client struct {
	URL        string
	UserAgent  string
	HTTPClient *http.Client
}

// New returns a client for the fixed collector URL. userAgent names the sending host
// (e.g. "Netlify-Function/1.0"). httpClient may be nil.
func New(userAgent string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		URL:        URL,
		UserAgent:  userAgent,
		HTTPClient: httpClient,
	}
}

// Emit sends one payload. Returns an error if the request fails or the collector returns non-2xx.
func (c *Client) Emit(ctx context.Context, payload *domain.Payload) error {
	if payload == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("collector: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("collector: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("collector: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector: post returned %s body=%s", resp.Status, string(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

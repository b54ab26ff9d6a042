// Package mediamtx is a minimal client for the MediaMTX control API,
// covering the stream enable toggle and a health probe.
package mediamtx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client talks to one MediaMTX instance about one stream path.
type Client struct {
	baseURL string
	path    string
	http    *http.Client
}

// NewClient returns a client for the given API base URL (for example
// http://localhost:8889) and stream path. Call deadlines come from the
// caller's context.
func NewClient(baseURL, path string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		http:    &http.Client{},
	}
}

// SetStreamEnabled turns the stream output on or off.
func (c *Client) SetStreamEnabled(ctx context.Context, enabled bool) error {
	body, err := json.Marshal(struct {
		Enabled bool `json:"enabled"`
	}{enabled})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v3/paths/%s/enable", c.baseURL, c.path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach mediamtx: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("set enabled=%v: unexpected status %s", enabled, resp.Status)
	}
	return nil
}

// Healthy probes the global config endpoint and reports whether the API
// is reachable and answering.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/config/global/get", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach mediamtx: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: unexpected status %s", resp.Status)
	}
	return nil
}

// drain empties and closes a response body so the connection can be
// reused.
func drain(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

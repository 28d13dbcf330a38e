// Package client talks to a running halyard daemon over its REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grimm.is/halyard/internal/inventory"
	"grimm.is/halyard/internal/metrics"
	"grimm.is/halyard/internal/profile"
	"grimm.is/halyard/internal/result"
)

// APIError is a non-2xx response decoded from the structured error body.
type APIError struct {
	Status int
	Body   result.ErrorBody
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "API error (status %d): %s", e.Status, e.Body.Error)
	if e.Body.Details != "" {
		fmt.Fprintf(&b, " (%s)", e.Body.Details)
	}
	for _, f := range e.Body.Fields {
		fmt.Fprintf(&b, "\n  %s: %s", f.Field, f.Message)
	}
	if e.Body.Restored != nil && !*e.Body.Restored {
		b.WriteString("\n  previous profile could not be restored")
	}
	return b.String()
}

// HTTPClient is a client for the structured API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the HTTPClient.
type Option func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// NewHTTPClient creates a client for the daemon at baseURL. A bare
// host:port is treated as http://host:port.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest performs an HTTP request and decodes the JSON response.
func (c *HTTPClient) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, &apiErr.Body) != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Message is the body of operations that only report a message.
type Message struct {
	Message string `json:"message"`
}

// ProfileRef identifies a profile returned by a write operation.
type ProfileRef struct {
	ID        string `json:"id"`
	UUID      string `json:"uuid"`
	Type      string `json:"type"`
	Activated *bool  `json:"activated,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ListConnections returns the visible profiles.
func (c *HTTPClient) ListConnections(ctx context.Context) ([]profile.Summary, error) {
	var out struct {
		Connections []profile.Summary `json:"connections"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/connections", nil, &out); err != nil {
		return nil, err
	}
	return out.Connections, nil
}

// GetConnection returns the rendered settings of the profile named by ref
// (uuid or id).
func (c *HTTPClient) GetConnection(ctx context.Context, ref string, extended bool) (map[string]any, error) {
	path := "/connections/" + url.PathEscape(ref)
	if extended {
		path += "?extended=true"
	}
	var out map[string]any
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateConnection stores a new profile from a settings document.
func (c *HTTPClient) CreateConnection(ctx context.Context, doc map[string]any) (*ProfileRef, error) {
	var out ProfileRef
	if err := c.doRequest(ctx, http.MethodPost, "/connections", doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReplaceConnection replaces the stored settings of ref.
func (c *HTTPClient) ReplaceConnection(ctx context.Context, ref string, doc map[string]any) (*ProfileRef, error) {
	var out ProfileRef
	if err := c.doRequest(ctx, http.MethodPut, "/connections/"+url.PathEscape(ref), doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchConnection merges body into ref. body may carry an "activate" flag.
func (c *HTTPClient) PatchConnection(ctx context.Context, ref string, body map[string]any) (*ProfileRef, error) {
	var out ProfileRef
	if err := c.doRequest(ctx, http.MethodPatch, "/connections/"+url.PathEscape(ref), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetActive activates or deactivates ref.
func (c *HTTPClient) SetActive(ctx context.Context, ref string, active bool) (*ProfileRef, error) {
	return c.PatchConnection(ctx, ref, map[string]any{"activate": active})
}

// DeleteConnection removes ref.
func (c *HTTPClient) DeleteConnection(ctx context.Context, ref string) error {
	return c.doRequest(ctx, http.MethodDelete, "/connections/"+url.PathEscape(ref), nil, nil)
}

// ReloadConnections asks the backend to re-read profiles from disk.
func (c *HTTPClient) ReloadConnections(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/connections/reload", nil, nil)
}

// AccessPoints returns the cached scan results.
func (c *HTTPClient) AccessPoints(ctx context.Context) ([]inventory.AccessPointInfo, error) {
	var out struct {
		AccessPoints []inventory.AccessPointInfo `json:"accessPoints"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/accessPoints", nil, &out); err != nil {
		return nil, err
	}
	return out.AccessPoints, nil
}

// RequestScan starts an asynchronous access point scan.
func (c *HTTPClient) RequestScan(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPut, "/accessPoints", nil, nil)
}

// Interfaces lists the managed interface names.
func (c *HTTPClient) Interfaces(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.doRequest(ctx, http.MethodGet, "/interfaces", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Interface returns the detail of one interface.
func (c *HTTPClient) Interface(ctx context.Context, name string) (*inventory.InterfaceDetail, error) {
	var out inventory.InterfaceDetail
	if err := c.doRequest(ctx, http.MethodGet, "/interfaces/"+url.PathEscape(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InterfaceStats returns the traffic counters of one interface.
func (c *HTTPClient) InterfaceStats(ctx context.Context, name string) (*metrics.InterfaceStats, error) {
	var out metrics.InterfaceStats
	if err := c.doRequest(ctx, http.MethodGet, "/interfaces/"+url.PathEscape(name)+"/stats", nil, &out); err != nil {
		return nil, err
	}
	out.Name = name
	return &out, nil
}

// Status returns the live status of every managed device.
func (c *HTTPClient) Status(ctx context.Context) (map[string]inventory.InterfaceStatus, error) {
	var out struct {
		Status map[string]inventory.InterfaceStatus `json:"status"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return out.Status, nil
}

// Package api implements the REST port: the synchronizer's only way to reach
// the control plane over plain HTTP (split/segment changes, authentication).
// It is deliberately thin — one *http.Client, one header set, one place
// status codes get turned into errors — the same shape as the teacher's
// Fetcher abstraction over a concrete transport.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Metadata identifies this SDK instance to the control plane, attached to
// every request as a trio of headers.
type Metadata struct {
	SDKVersion  string
	MachineName string
	MachineIP   string
}

func (m Metadata) headers() http.Header {
	h := make(http.Header, 4)
	h.Set("SplitSDKVersion", m.SDKVersion)
	if m.MachineName != "" {
		h.Set("SplitSDKMachineName", m.MachineName)
	}
	if m.MachineIP != "" {
		h.Set("SplitSDKMachineIP", m.MachineIP)
	}
	return h
}

// ClientConfig controls connection behavior for the shared HTTP client.
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Metadata       Metadata
}

// DefaultClientConfig mirrors the control plane's documented defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: 1500 * time.Millisecond,
		ReadTimeout:    5000 * time.Millisecond,
	}
}

// Client wraps net/http with the headers, auth, and error mapping every REST
// port operation needs.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
}

// NewClient builds a Client from cfg, defaulting any zero-valued timeout.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 1500 * time.Millisecond
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5000 * time.Millisecond
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.ConnectTimeout + cfg.ReadTimeout,
		},
	}
}

// StatusError is returned whenever the control plane answers outside 2xx; the
// synchronizer and auth flows branch on StatusCode to decide retry policy.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("api: building request: %w", err)
	}
	c.applyHeaders(req)

	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()

	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("api: encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("api: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyHeaders(req)
	return c.do(req, nil)
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.cfg.Metadata.headers() {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(out); err != nil {
		return fmt.Errorf("api: decoding response: %w", err)
	}
	return nil
}

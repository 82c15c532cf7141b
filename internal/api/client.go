// Package api implements the session-authenticated REST client for the
// Lantern appliance. Authentication is lazy: the first request logs in, and
// a request rejected with an invalid-session error is retried exactly once
// after re-authenticating.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lanternops/lanternbot/internal/config"
	"github.com/lanternops/lanternbot/internal/logger"
	"github.com/lanternops/lanternbot/internal/metrics"
)

const apiPrefix = "/api/v1"

// BackendError is the structured error envelope returned by the appliance.
// Errors carry a severity level, a numeric type code, and free text
type BackendError struct {
	Level int    `json:"level"`
	Type  int    `json:"type"`
	Text  string `json:"text"`
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("appliance error (level %d, type %d): %s", e.Level, e.Type, e.Text)
}

// InvalidSession reports whether the error is the session-expiry rejection
func (e *BackendError) InvalidSession() bool {
	return e.Level == 1 && e.Type == 7 && e.Text == "Invalid session ID"
}

// NotFound reports whether the error is an object-lookup failure
func (e *BackendError) NotFound() bool {
	return strings.Contains(e.Text, "Could not find element")
}

// PermissionDenied reports whether the appliance refused the operation
func (e *BackendError) PermissionDenied() bool {
	return e.Text == "Permission denied"
}

// envelope is the slice-of-errors wrapper present on failed responses
type envelope struct {
	Error []BackendError `json:"error"`
}

// Client performs HTTP requests against the appliance API, holding one
// session token and refreshing it in place
type Client struct {
	baseURL  string
	username string
	password string
	window   time.Duration
	http     *http.Client
	log      *logger.Logger
	stats    *metrics.Collector

	mu       sync.Mutex
	token    string
	deadline time.Time
}

// New creates an API client from configuration. No network I/O happens
// until the first request
func New(cfg *config.APIConfig, log *logger.Logger) *Client {
	window := time.Duration(cfg.TokenWindowSeconds) * time.Second
	if window <= 0 {
		window = 5 * time.Minute
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if log == nil {
		log = logger.Default()
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		window:   window,
		http:     &http.Client{Timeout: timeout, Transport: transport},
		log:      log.WithComponent("api"),
		stats:    metrics.Default(),
	}
}

// BaseURL returns the appliance root URL, used to build web links
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs a GET with optional query parameters
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, path, params, nil)
}

// Post performs a POST with a JSON body
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, path, nil, body)
}

// Put performs a PUT with a JSON body
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPut, path, nil, body)
}

// Delete performs a DELETE on an identified resource
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.request(ctx, http.MethodDelete, path, nil, nil)
}

// request runs one API call with the ensure-auth policy: authenticate lazily,
// and on an invalid-session rejection re-authenticate and retry exactly once
func (c *Client) request(ctx context.Context, method, path string, params url.Values, body any) (json.RawMessage, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, method, path, params, body)
	if bErr, ok := asBackendError(err); ok && bErr.InvalidSession() {
		c.log.Debug("session rejected, re-authenticating")
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
		return c.do(ctx, method, path, params, body)
	}
	return raw, err
}

func asBackendError(err error) (*BackendError, bool) {
	if err == nil {
		return nil, false
	}
	bErr, ok := err.(*BackendError)
	return bErr, ok
}

// ensureToken authenticates when no token is held or the client-side
// countdown has elapsed
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.Lock()
	valid := c.token != "" && time.Now().Before(c.deadline)
	c.mu.Unlock()

	if valid {
		return nil
	}
	return c.authenticate(ctx)
}

// authenticate exchanges credentials for a fresh session token
func (c *Client) authenticate(ctx context.Context) error {
	creds := map[string]string{"username": c.username, "password": c.password}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+apiPrefix+"/sessions", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse auth response: %w", err)
	}
	if result.Session == "" {
		return fmt.Errorf("auth failed: no session token returned")
	}

	c.mu.Lock()
	c.token = result.Session
	c.deadline = time.Now().Add(c.window)
	c.mu.Unlock()

	c.log.Debug("authenticated, token valid for %s", c.window)
	return nil
}

// do performs one HTTP exchange and surfaces a *BackendError when the parsed
// body carries the error envelope
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any) (json.RawMessage, error) {
	c.stats.IncrementAPIRequest()

	u := c.baseURL + apiPrefix + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		c.stats.IncrementAPIError()
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		c.stats.IncrementAPIError()
		return nil, fmt.Errorf("failed to parse %s %s response: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Error) > 0 {
		c.stats.IncrementAPIError()
		bErr := env.Error[0]
		return raw, &bErr
	}

	return raw, nil
}

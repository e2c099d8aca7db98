// Package api implements the remote server transport: the login exchange,
// event submission, and the in-memory token cache.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"smsrelay-agent/internal/infra/logger"
)

// defaultTimeout bounds each request end to end.
const defaultTimeout = 30 * time.Second

// StatusError is a non-2xx response from the server. It carries the decoded
// error body when the server sent one.
type StatusError struct {
	StatusCode int
	Body       *APIError
}

func (e *StatusError) Error() string {
	if e.Body != nil && e.Body.Error != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body.Error)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Unauthorized reports whether the response was a 401, which means the
// bearer token must be re-acquired.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Client is a thin wrapper over the remote HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// NewClient creates a Client for the given base URL. A zero timeout selects
// the 30 s default.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Sub("ApiClient"),
	}
}

// Authenticate performs the login exchange: Basic auth header, empty body.
// On success the server hands back a bearer token and its validity window.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", nil)
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Errorf("Authentication failed: %d", resp.StatusCode)
		return nil, statusError(resp.StatusCode, body)
	}

	var auth AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("parse login response: %w", err)
	}
	if auth.Token == "" {
		return nil, fmt.Errorf("login response missing token")
	}

	c.log.Debugf("Authentication successful")
	return &auth, nil
}

// Submit uploads one event. A nil return means the server accepted it.
// A 401 surfaces as a *StatusError with Unauthorized() == true so the
// caller can invalidate its cached token.
func (c *Client) Submit(ctx context.Context, token string, payload *SubmitRequest) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sms/add", bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.log.Debugf("Event accepted: %d", resp.StatusCode)
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	c.log.Warnf("Submission rejected: %d", resp.StatusCode)
	return statusError(resp.StatusCode, body)
}

func statusError(code int, body []byte) *StatusError {
	se := &StatusError{StatusCode: code}
	if len(body) > 0 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			se.Body = &apiErr
		}
	}
	return se
}

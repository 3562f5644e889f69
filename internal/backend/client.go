// Package backend is a thin client for the agent backend's side-channel
// HTTP endpoints: session metadata retrieval before a call and call-log
// finalization after it. These are plain request/response calls with no
// state machine; failures are reported to the caller and never affect the
// audio path.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Option configures a [Client] during construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client. Primarily used in
// tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client calls the backend's JSON endpoints under a fixed base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the backend at baseURL (scheme and host, no
// trailing slash required).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SessionInfo is the metadata the backend holds for a session.
type SessionInfo struct {
	SessionID   string         `json:"session_id"`
	PatientInfo map[string]any `json:"patient_info"`
}

// CallTurn is one conversational turn recorded during a session.
type CallTurn struct {
	Role      string    `json:"role"` // "user" or "agent"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CallLog is the record finalized at session teardown.
type CallLog struct {
	Outcome string     `json:"outcome"`
	Turns   []CallTurn `json:"turns,omitempty"`
}

// GetSessionInfo fetches the backend's metadata for sessionID.
func (c *Client) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	url := fmt.Sprintf("%s/api/patient-info/%s", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: session info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend: session info: unexpected status %d", resp.StatusCode)
	}

	var info SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("backend: decode session info: %w", err)
	}
	return &info, nil
}

// FinalizeCall posts the session's call log and marks the call ended.
func (c *Client) FinalizeCall(ctx context.Context, sessionID string, log CallLog) error {
	body, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("backend: marshal call log: %w", err)
	}

	url := fmt.Sprintf("%s/api/end-call/%s", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: finalize call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend: finalize call: unexpected status %d", resp.StatusCode)
	}
	return nil
}

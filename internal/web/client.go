package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jfmyers9/spotlog/internal/daemon"
)

// APIError is a non-2xx answer from a running daemon
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// Client talks to the control surface of a running daemon
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the daemon listening on addr. addr may be
// host:port or a full URL.
func NewClient(addr string) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	return &Client{
		baseURL:    strings.TrimSuffix(addr, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Status returns the daemon's current status
func (c *Client) Status(ctx context.Context) (daemon.Status, error) {
	return c.do(ctx, http.MethodGet, "/api/status")
}

// Start asks the daemon to begin polling
func (c *Client) Start(ctx context.Context) (daemon.Status, error) {
	return c.do(ctx, http.MethodPost, "/api/start")
}

// Stop asks the daemon to stop polling
func (c *Client) Stop(ctx context.Context) (daemon.Status, error) {
	return c.do(ctx, http.MethodPost, "/api/stop")
}

func (c *Client) do(ctx context.Context, method, path string) (daemon.Status, error) {
	var status daemon.Status

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return status, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return status, fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return status, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return status, &APIError{Status: resp.StatusCode, Message: errResp.Error}
		}
		return status, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, &status); err != nil {
		return status, fmt.Errorf("failed to decode status: %w", err)
	}
	return status, nil
}

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iBHunt91/FossaWorkV2-sub002/internal/automation/domain"
)

// ClientConfig holds engine adapter configuration. RunTimeout bounds the
// visit-automation call, which runs for minutes on large sites; the other
// calls use RequestTimeout.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RunTimeout     time.Duration
}

// Client is the HTTP adapter for the automation engine service. Timeouts are
// applied per call through the request context rather than on the underlying
// http.Client, since the run call outlives any sane client-wide timeout.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	runTimeout     time.Duration
	logger         *slog.Logger
}

// NewClient creates an engine adapter.
func NewClient(cfg *ClientConfig, logger *slog.Logger) *Client {
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{},
		requestTimeout: requestTimeout,
		runTimeout:     runTimeout,
		logger:         logger,
	}
}

// CreateSession asks the engine to open a new browser session.
func (c *Client) CreateSession(ctx context.Context, sessionID string) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}

	err := c.post(ctx, "/api/v1/sessions", map[string]string{"session_id": sessionID}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("engine refused session %s: %s", sessionID, resp.Error)
	}
	return nil
}

// Login authenticates the session against the portal. A false result with a
// nil error means the portal rejected the credentials.
func (c *Client) Login(ctx context.Context, sessionID string, creds domain.Credentials) (bool, error) {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}

	path := fmt.Sprintf("/api/v1/sessions/%s/login", sessionID)
	if err := c.post(ctx, path, creds, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// RunVisitAutomation drives the full form-filling run for one visit. Expected
// to take on the order of minutes, proportional to the total step count.
func (c *Client) RunVisitAutomation(ctx context.Context, sessionID, targetURL string, units []UnitConfig) (*RunResult, error) {
	body := struct {
		TargetURL string       `json:"target_url"`
		Units     []UnitConfig `json:"units"`
	}{TargetURL: targetURL, Units: units}

	var result RunResult

	runCtx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/v1/sessions/%s/run", sessionID)
	if err := c.postWithContext(runCtx, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CloseSession releases the engine session. Best effort; the engine reaps
// orphaned sessions on its own timer as well.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	url := c.baseURL + fmt.Sprintf("/api/v1/sessions/%s", sessionID)

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build close request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("engine returned status %d closing session %s", resp.StatusCode, sessionID)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.postWithContext(reqCtx, path, body, out)
}

func (c *Client) postWithContext(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("engine returned status %d for %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode engine response: %w", err)
		}
	}

	c.logger.Debug("Engine call completed",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}

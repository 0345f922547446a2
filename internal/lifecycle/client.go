package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Action is a remote lifecycle command.
type Action string

const (
	ActionSuspend Action = "suspend"
	ActionResume  Action = "resume"
)

// ActionError is a non-success response from the remote API.
type ActionError struct {
	Action     Action
	ServiceID  string
	StatusCode int
	Body       string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %q: remote API returned %d: %s", e.Action, e.ServiceID, e.StatusCode, e.Body)
}

// Client issues lifecycle commands and status queries against the
// remote service-management API. It performs exactly one remote call
// per invocation; retry policy belongs to the caller.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "lifecycle"),
	}
}

// Perform issues a suspend or resume command for the service. Any
// non-2xx response surfaces as *ActionError.
func (c *Client) Perform(ctx context.Context, serviceID string, action Action, credential string) error {
	url := fmt.Sprintf("%s/v1/services/%s/%s", c.baseURL, serviceID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", action, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	c.logger.Info("issuing lifecycle action", "service", serviceID, "action", action)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %q: %w", action, serviceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ActionError{
			Action:     action,
			ServiceID:  serviceID,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return nil
}

// Status queries the service and returns its raw reported status
// string. A response whose shape carries no recognizable status field
// is an error.
func (c *Client) Status(ctx context.Context, serviceID, credential string) (string, error) {
	url := fmt.Sprintf("%s/v1/services/%s", c.baseURL, serviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("status %q: %w", serviceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %q: remote API returned %d", serviceID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("status %q: read body: %w", serviceID, err)
	}
	status, ok := ExtractStatus(body)
	if !ok {
		return "", fmt.Errorf("status %q: no status field in response", serviceID)
	}
	return status, nil
}

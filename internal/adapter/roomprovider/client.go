// Package roomprovider is the adapter for the external real-time media
// service. It creates and destroys rooms over the provider's admin HTTP API
// and mints capability-scoped access tokens signed with the API secret.
package roomprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"github.com/stagecast-live/stagecast/internal/adapter/metrics"
	"github.com/stagecast-live/stagecast/internal/platform/retry"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	adminTokenTTL      = time.Minute
)

// Config holds the provider connection settings.
type Config struct {
	// BaseURL is the admin API endpoint.
	BaseURL string
	// WSURL is the transport endpoint clients connect to with a token.
	WSURL     string
	APIKey    string
	APISecret string
}

// Client talks to the room provider. A circuit breaker shields the service
// from a flapping provider; transient failures are retried with backoff.
type Client struct {
	baseURL    string
	wsURL      string
	apiKey     string
	apiSecret  []byte
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	policy     retry.Policy
	clock      clockwork.Clock
}

func NewClient(cfg Config, clock clockwork.Clock) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "room-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		baseURL:    cfg.BaseURL,
		wsURL:      cfg.WSURL,
		apiKey:     cfg.APIKey,
		apiSecret:  []byte(cfg.APISecret),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		breaker:    breaker,
		policy: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
		},
		clock: clock,
	}
}

// Endpoint returns the transport URL clients join rooms through.
func (c *Client) Endpoint() string {
	return c.wsURL
}

// CreateRoom allocates a uniquely named room. A room that already exists is
// treated as success so a retried start can re-enter safely.
func (c *Client) CreateRoom(ctx context.Context, name string) error {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("failed to marshal create room request: %w", err)
	}

	status, err := c.do(ctx, "create_room", http.MethodPost, "/v1/rooms", body)
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		return nil
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("create room %s: unexpected status %d", name, status)
	}
	return nil
}

// DeleteRoom destroys a room by name. A missing room counts as success: the
// desired end state (room gone) already holds.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	path := "/v1/rooms/" + url.PathEscape(name)

	status, err := c.do(ctx, "delete_room", http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("delete room %s: unexpected status %d", name, status)
	}
	return nil
}

// do runs one admin API request through the breaker with retries on
// transport errors and 5xx responses. It returns the final HTTP status;
// 4xx statuses are handed back to the caller to interpret.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (int, error) {
	start := c.clock.Now()
	defer func() {
		metrics.ProviderRequestDuration.WithLabelValues(op).Observe(c.clock.Since(start).Seconds())
	}()

	status, err := retry.Do(ctx, c.policy, isTransient, func() (int, error) {
		result, err := c.breaker.Execute(func() (any, error) {
			status, err := c.roundTrip(ctx, method, path, body)
			if err != nil {
				return 0, err
			}
			// 5xx counts against the breaker; 4xx is the caller's problem.
			if status >= 500 {
				return 0, &serverError{status: status}
			}
			return status, nil
		})
		if err != nil {
			return 0, err
		}
		return result.(int), nil
	})
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues(op, "error").Inc()
		return 0, err
	}

	metrics.ProviderRequestsTotal.WithLabelValues(op, "ok").Inc()
	return status, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build provider request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	adminToken, err := c.mintAdminToken()
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.status)
}

func isTransient(err error) bool {
	switch err {
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		// The breaker is shedding load; retrying immediately only feeds it.
		return false
	}
	return true
}

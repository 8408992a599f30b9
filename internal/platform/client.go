// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

/*
Package platform talks to the chat platform's REST API.

Client implements the detection collaborators that need the platform:

  - Directory: member and channel lookups for audit snapshots
  - ContentSource: trailing-message sweep after a detected burst
  - ContentRemover: single and bulk message deletion
  - Restrictor: timeouts, recorded as "mute" incidents

Every request passes through a client-side token bucket (x/time/rate) and a
circuit breaker (sony/gobreaker). HTTP 429 responses are retried honoring
Retry-After; other 4xx responses are returned as *APIError without tripping
the breaker.
*/
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/burstguard/internal/config"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
)

const (
	breakerName = "platform-api"

	// maxRateLimitRetries bounds retries of HTTP 429 responses.
	maxRateLimitRetries = 3

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 512
)

// APIError is a non-2xx response from the platform.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client is a rate-limited, circuit-broken platform REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[[]byte]

	// retryBaseDelay is the first 429 backoff when no Retry-After is sent.
	retryBaseDelay time.Duration
}

// NewClient creates a client from cfg.
func NewClient(cfg *config.PlatformConfig) *Client {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= maxFailures
			if trip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening platform circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.RecordCircuitBreakerTransition(name, stateToString(from), stateToString(to), stateToFloat(to))
		},
		IsSuccessful: isSuccessful,
	})

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.Token,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cb:             cb,
		retryBaseDelay: time.Second,
	}
}

// isSuccessful treats client errors as breaker successes: the platform
// answered, the request was just not acceptable.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
	}
	return errors.Is(err, context.Canceled)
}

// State returns the circuit breaker state name.
func (c *Client) State() string {
	return stateToString(c.cb.State())
}

type requestConfig struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	reason string
}

// do executes a request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, rc requestConfig, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var payload []byte
	if rc.body != nil {
		var err error
		if payload, err = json.Marshal(rc.body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, rc, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Ctx(ctx).Warn().Err(err).Str("path", rc.path).Msg("[CIRCUIT BREAKER] Request rejected")
		}
		return err
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// roundTrip sends one logical request, retrying HTTP 429 with backoff.
func (c *Client) roundTrip(ctx context.Context, rc requestConfig, payload []byte) ([]byte, error) {
	reqURL := c.baseURL + rc.path
	if len(rc.query) > 0 {
		reqURL += "?" + rc.query.Encode()
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader = http.NoBody
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, rc.method, reqURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if rc.reason != "" {
			req.Header.Set("X-Audit-Log-Reason", url.PathEscape(rc.reason))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read response: %w", readErr)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return data, nil
		case resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries:
			delay := retryDelay(resp.Header.Get("Retry-After"), c.retryBaseDelay<<attempt)
			logging.Ctx(ctx).Warn().Dur("retry_delay", delay).Int("attempt", attempt+1).Str("path", rc.path).Msg("Platform API rate limited (HTTP 429), retrying")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		default:
			if len(data) > maxErrorBody {
				data = data[:maxErrorBody]
			}
			return nil, &APIError{Method: rc.method, Path: rc.path, Status: resp.StatusCode, Body: string(data)}
		}
	}
}

// retryDelay parses a Retry-After value in (possibly fractional) seconds.
func retryDelay(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
)

const maxResponseBytes = 4 << 20

// Observer receives one call per provider round trip (after retries).
type Observer func(provider string, duration time.Duration, err error)

// Client is a provider HTTP client with pooled transport, circuit breaker,
// retry, and health accounting.
type Client struct {
	name     string
	http     *http.Client
	breaker  *CircuitBreaker
	retry    RetryConfig
	health   *HealthTracker
	observer Observer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithRetry replaces the retry policy.
func WithRetry(cfg RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// WithBreaker replaces the circuit breaker configuration.
func WithBreaker(cfg CircuitBreakerConfig) ClientOption {
	return func(c *Client) { c.breaker = NewCircuitBreaker(cfg) }
}

// WithHealth reports outcomes to a shared tracker.
func WithHealth(h *HealthTracker) ClientOption {
	return func(c *Client) { c.health = h }
}

// WithObserver installs a metrics hook.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient swaps the underlying client (tests use httptest clients).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for the named provider.
func NewClient(name string, opts ...ClientOption) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	c := &Client{
		name:    name,
		http:    &http.Client{Transport: transport, Timeout: 10 * time.Second},
		breaker: NewCircuitBreaker(CircuitBreakerConfig{}),
		retry:   FastRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.health != nil {
		c.health.Attach(name, c.breaker)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

// GetJSON fetches url and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := c.Do(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

// PostJSON encodes in as the request body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.name, err)
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}

	body, err := c.Do(ctx, http.MethodPost, url, h, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

// Do performs the request with retry and circuit breaking. Exhausted failures
// come back as a provider AppError wrapping the last cause; 4xx responses are
// returned as *HTTPError without counting against the provider's health.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	start := time.Now()
	var payload []byte
	var clientErr error

	err := RetryWithConfig(ctx, c.retry, func() error {
		return c.breaker.Call(func() error {
			b, status, err := c.roundTrip(ctx, method, url, headers, body)
			if err != nil {
				return err
			}
			if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
				return NewHTTPError(status, http.StatusText(status), url)
			}
			if status >= 400 {
				clientErr = NewHTTPError(status, http.StatusText(status), url)
				return nil
			}
			payload, clientErr = b, nil
			return nil
		})
	})

	duration := time.Since(start)
	if c.observer != nil {
		c.observer(c.name, duration, err)
	}
	if c.health != nil {
		if err != nil {
			c.health.RecordFailure(c.name, err)
		} else {
			c.health.RecordSuccess(c.name)
		}
	}

	if err != nil {
		return nil, errors.NewProviderError(c.name, err)
	}
	if clientErr != nil {
		return nil, clientErr
	}
	return payload, nil
}

func (c *Client) roundTrip(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

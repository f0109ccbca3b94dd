// Package upstream is the HTTP client for the hosted video API the proxy
// routes forward to.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the hosted video API.
const DefaultBaseURL = "https://yunwu.ai/v1"

// Static errors for upstream client operations.
var (
	// ErrAPIKeyRequired is returned when a call is made without an API key.
	ErrAPIKeyRequired = errors.New("upstream: API key is required")
	// ErrJobIDRequired is returned when a query is made without a job ID.
	ErrJobIDRequired = errors.New("upstream: job ID is required")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("upstream: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("upstream: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("upstream: request failed")
)

// StatusError is a non-2xx answer from the upstream API.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.Code, string(e.Body))
}

// Unwrap maps the status code onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code >= 500:
		return ErrServerError
	case e.Code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrRequestFailed
	}
}

// Client defines the calls the proxy makes against the upstream API. Both
// return the raw response body so it can be relayed or reshaped.
type Client interface {
	// Create submits a generation job.
	Create(ctx context.Context, apiKey string, body any) ([]byte, error)

	// Query returns the current state of a job.
	Query(ctx context.Context, apiKey, id string) ([]byte, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	baseBackoff time.Duration
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		if u != "" {
			hc.baseURL = u
		}
	}
}

// WithRateLimit caps outbound requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(hc *HTTPClient) {
		if rps <= 0 {
			hc.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		hc.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries sets the maximum number of retries for transient query failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new upstream HTTP client.
func NewClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxRetries:  2,
		baseBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create posts body to /video/create. It is never retried: a timed out
// create may still have started a job upstream.
func (c *HTTPClient) Create(ctx context.Context, apiKey string, body any) ([]byte, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/video/create", apiKey, bodyBytes)
}

// Query fetches /video/query?id=. Transient failures are retried with
// exponential backoff.
func (c *HTTPClient) Query(ctx context.Context, apiKey, id string) ([]byte, error) {
	if id == "" {
		return nil, ErrJobIDRequired
	}
	u := c.baseURL + "/video/query?id=" + url.QueryEscape(id)
	return c.doRequestWithRetry(ctx, http.MethodGet, u, apiKey)
}

// doRequestWithRetry performs a GET with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, u, apiKey string) ([]byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("upstream: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		body, err := c.doRequest(ctx, method, u, apiKey, nil)
		if err == nil {
			return body, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("upstream: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request and returns the response body.
func (c *HTTPClient) doRequest(ctx context.Context, method, u, apiKey string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("upstream: rate limit wait: %w", err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("upstream: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("upstream: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("upstream: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{Code: resp.StatusCode, Body: respBody}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: se}
		}
		return nil, se
	}

	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

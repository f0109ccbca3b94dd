// Package apiclient implements job.Transport against the proxy routes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/videogen/internal/job"
	"github.com/maauso/videogen/internal/provider"
)

// DefaultBaseURL is where the proxy listens by default.
const DefaultBaseURL = "http://localhost:8080"

// ErrRequestFailed is wrapped by StatusError.
var ErrRequestFailed = errors.New("apiclient: request failed")

// StatusError is a non-2xx answer from the proxy.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apiclient: status %d: %s", e.Code, strings.TrimSpace(string(e.Body)))
}

// Unwrap returns ErrRequestFailed.
func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

// Client sends create and detail requests to the proxy.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check that Client implements job.Transport.
var _ job.Transport = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// New creates a Client for the proxy at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create posts body to the adapter's create endpoint.
func (c *Client) Create(ctx context.Context, a provider.Adapter, body any) (job.CreateResult, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return job.CreateResult{}, fmt.Errorf("apiclient: marshal request: %w", err)
	}
	respBody, err := c.do(ctx, http.MethodPost, c.baseURL+a.CreateEndpoint(), data)
	if err != nil {
		return job.CreateResult{}, err
	}

	var resp struct {
		ID     any    `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return job.CreateResult{}, fmt.Errorf("apiclient: unmarshal response: %w", err)
	}
	return job.CreateResult{ID: idString(resp.ID), Status: resp.Status}, nil
}

// Detail fetches the adapter's detail endpoint for id. An unparsable body
// yields a nil document and no error.
func (c *Client) Detail(ctx context.Context, a provider.Adapter, id, token string) (any, error) {
	q := url.Values{}
	q.Set("id", id)
	if token != "" {
		q.Set("token", token)
	}
	respBody, err := c.do(ctx, http.MethodGet, c.baseURL+a.DetailEndpoint()+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return nil, nil
	}
	return doc, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("apiclient: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

// idString accepts string and numeric ids.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// Package edge provides a client for the backend's remote aggregation
// functions. Responses come back as raw JSON: the backend is free to answer
// with a bare object, a bare array, or a wrapped {rows, count} object, and
// normalization is the caller's concern.
package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client defines the remote aggregation function operations.
type Client interface {
	// Call invokes the named aggregation function with the given parameters
	// and returns the undecoded response body.
	Call(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error)
}

// APIError is a failed call's decoded error payload. Status is the HTTP
// status; Code and Message come from the body when the backend supplies
// them.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("edge: %s (code %s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("edge: %s (status %d)", e.Message, e.Status)
}

// Option configures the edge client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing calls at rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates an edge client.
func New(apiKey, baseURL string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Call(ctx context.Context, fn string, params map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "edge: rate limit wait for %s", fn)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrapf(err, "edge: marshal params for %s", fn)
	}

	url := fmt.Sprintf("%s/rpc/%s", c.baseURL, fn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "edge: build request for %s", fn)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "edge: call %s", fn)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "edge: read response for %s", fn)
	}

	zap.L().Debug("edge call",
		zap.String("fn", fn),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}

	return json.RawMessage(data), nil
}

// decodeAPIError builds an APIError from an error response body. Bodies vary
// between {"code":..,"message":..} and {"error":..}; both are accepted.
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// Package apiclient implements the HTTP client the dashboard uses to reach the marketing
// engine API. Every failure is normalized into *Error with a Kind, and any 401 response
// fires the unauthorized hook so the owning session store can clear itself.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cesarg777/marketing-ai-engine-sub001/internal/telemetry"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBody    = 64 << 10
	retryBaseDelay  = 200 * time.Millisecond
	defaultRetries  = 1
	contentTypeJSON = "application/json"
)

// Client talks to the marketing engine API on behalf of one browser session.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	token          func() string
	onUnauthorized func()
	maxRetries     int
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends a fixed bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = func() string { return token } }
}

// WithTokenSource sends the token returned by fn with every request.
func WithTokenSource(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// WithUnauthorizedHook registers fn to be called on every 401 response.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithRetries sets how many times idempotent requests are retried after a network
// failure or a 502/503/504 response.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      func() string { return "" },
		maxRetries: defaultRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request describes one API call.
type request struct {
	operation   string
	method      string
	path        string
	body        []byte
	contentType string
}

// do executes req, retrying idempotent requests on transient failures, and decodes
// a 2xx JSON body into out when out is non-nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	attempts := 1
	if req.method == http.MethodGet {
		attempts += c.maxRetries
	}

	var err error
retry:
	for attempt := 1; ; attempt++ {
		err = c.doOnce(ctx, req, out)
		if err == nil || attempt >= attempts || !retryable(err) {
			break
		}
		delay := time.Duration(attempt) * retryBaseDelay
		c.logger.Debug("retrying API request", "operation", req.operation, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			err = &Error{Kind: KindNetwork, Message: "request cancelled", Err: ctx.Err()}
			break retry
		case <-time.After(delay):
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	telemetry.APIClientRequestsTotal.WithLabelValues(req.operation, outcome).Inc()
	return err
}

func (c *Client) doOnce(ctx context.Context, req request, out any) error {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return &Error{Kind: KindBackend, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("Accept", contentTypeJSON)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if token := c.token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if id := telemetry.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &Error{
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    extractMessage(raw),
		}
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindBackend, StatusCode: resp.StatusCode, Message: "failed to decode response", Err: err}
	}
	return nil
}

// retryable reports whether a failed attempt may be repeated.
func retryable(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Kind == KindNetwork {
		return !errors.Is(apiErr.Err, context.Canceled) && !errors.Is(apiErr.Err, context.DeadlineExceeded)
	}
	switch apiErr.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// extractMessage pulls a human readable message out of an error body. The API sends
// {"error": ...}; "detail" and "message" are accepted for other backends.
func extractMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message"} {
		if s, ok := body[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return b, nil
}

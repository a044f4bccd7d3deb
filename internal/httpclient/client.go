package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// defaultTimeout bounds a request when neither the client nor the
	// request names one.
	defaultTimeout = 30 * time.Second

	// maxResponseSize caps how much of a body is read into memory.
	maxResponseSize = 10 * 1024 * 1024

	// maxBodyExcerpt caps the body sample attached to warn logs.
	maxBodyExcerpt = 1024
)

// Client is a shareable instrumented HTTP client.
type Client struct {
	http    *http.Client
	logger  *slog.Logger
	headers map[string]string
}

// Option customizes Client construction.
type Option func(*Client)

// WithTimeout overrides the client-wide request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithDefaultHeader adds a header sent on every request unless the request
// itself overrides it.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithTransport swaps the underlying round tripper. Tests use this to stub
// the network.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// New builds a Client. A nil logger falls back to the default.
func New(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// Timeout bounds this call only; zero inherits the client timeout.
	Timeout time.Duration
}

// Response is the outcome of a completed HTTP exchange.
type Response struct {
	StatusCode int
	// OK is true for any 2xx status.
	OK      bool
	Headers http.Header
	Body    []byte
	Latency time.Duration
}

// Do executes the request. Transport failures and unreadable bodies are
// errors; any completed exchange, whatever its status code, is a Response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("request without url")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		c.logger.Debug("HTTP request failed.", "method", method, "url", req.URL, "latency", latency, "error", err)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		OK:         httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
		Headers:    httpResp.Header,
		Body:       data,
		Latency:    latency,
	}

	if resp.OK {
		c.logger.Debug("HTTP request completed.",
			"method", method, "url", req.URL, "status", resp.StatusCode, "latency", latency)
	} else {
		c.logger.Warn("HTTP request returned non-success status.",
			"method", method, "url", req.URL, "status", resp.StatusCode,
			"latency", latency, "body_excerpt", excerpt(data))
	}
	return resp, nil
}

// excerpt trims a body down to a log-friendly sample.
func excerpt(body []byte) string {
	if len(body) <= maxBodyExcerpt {
		return string(body)
	}
	return string(body[:maxBodyExcerpt]) + "...(truncated)"
}

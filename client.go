package zenwave

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Client is an HTTP client assembling the zenwave middlewares (timeout, rate
// limiting, deduplication, token management, caching, redirect following and
// retry) over an arbitrary transport Endpoint. It is safe for concurrent use.
//
// The stack is ordered outermost to innermost: Timeout, RateLimit,
// Deduplicate, auth (OAuth2 or static), Cache, FollowRedirect, Retry, user
// middleware, transport. Unconfigured layers are skipped.
type Client struct {
	transport  Endpoint
	timeout    *Timeout
	rateLimit  *RateLimit
	dedup      *Deduplicate
	oauth2     *OAuth2ClientCredentials
	auth       Middleware
	cache      *Cache
	redirect   *FollowRedirect
	retry      *Retry
	middleware []Middleware

	metrics *MetricsCollector
	logger  Logger
	debug   *DebugConfig

	chain           Endpoint
	validationError error
}

// DebugConfig controls debug logging.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled debug configuration with request
// logging pre-selected.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		LogRequests:  true,
		RequestIDGen: defaultRequestID,
	}
}

var requestCounter atomic.Uint64

func defaultRequestID() string {
	return "req-" + strconv.FormatUint(requestCounter.Add(1), 10)
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		transport: EndpointFunc((&http.Client{}).Do),
		redirect:  NewFollowRedirect(),
		debug:     DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	client.wireMetrics()
	client.chain = client.buildChain()

	return client
}

// wireMetrics hands the collector to every configured layer.
func (c *Client) wireMetrics() {
	if c.metrics == nil {
		return
	}
	if c.cache != nil {
		c.cache.metrics = c.metrics
	}
	if c.redirect != nil {
		c.redirect.metrics = c.metrics
	}
	if c.retry != nil {
		c.retry.metrics = c.metrics
	}
	if c.oauth2 != nil {
		c.oauth2.metrics = c.metrics
	}
	if c.timeout != nil {
		c.timeout.metrics = c.metrics
	}
	if c.rateLimit != nil {
		c.rateLimit.metrics = c.metrics
	}
	if c.dedup != nil {
		c.dedup.metrics = c.metrics
	}
}

func (c *Client) buildChain() Endpoint {
	endpoint := Decorate(c.transport, c.middleware...)
	if c.retry != nil {
		endpoint = c.retry.Wrap(endpoint)
	}
	if c.redirect != nil {
		endpoint = c.redirect.Wrap(endpoint)
	}
	if c.cache != nil {
		endpoint = c.cache.Wrap(endpoint)
	}
	if c.oauth2 != nil {
		endpoint = c.oauth2.Wrap(endpoint)
	} else if c.auth != nil {
		auth := c.auth
		endpoint = Decorate(endpoint, auth)
	}
	if c.dedup != nil {
		endpoint = c.dedup.Wrap(endpoint)
	}
	if c.rateLimit != nil {
		endpoint = c.rateLimit.Wrap(endpoint)
	}
	if c.timeout != nil {
		endpoint = c.timeout.Wrap(endpoint)
	}
	return endpoint
}

// Endpoint exposes the assembled middleware chain, letting callers compose
// further layers on top or dispatch requests directly.
func (c *Client) Endpoint() Endpoint {
	return c.chain
}

// Do executes a prepared *http.Request through the middleware stack.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	endpoint := endpointLabel(req)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("starting request", "requestID", requestID, "method", req.Method, "url", req.URL.String(), "endpoint", endpoint)
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(req.Method, endpoint)
	}

	resp, err := c.chain.RoundTrip(req)

	if c.metrics != nil {
		c.metrics.RecordRequestEnd(req.Method, endpoint)
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		c.metrics.RecordRequest(req.Method, endpoint, statusCode, time.Since(start))
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			c.metrics.RecordError(clientErr.Type, req.Method, endpoint)
		} else if err != nil {
			c.metrics.RecordError(ErrorTypeTransport, req.Method, endpoint)
		}
	}

	if err != nil && c.debug != nil && c.debug.Enabled && c.logger != nil {
		c.logger.Warn("request failed", "requestID", requestID, "error", err.Error())
	}

	return resp, err
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Head performs an HTTP HEAD with context.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Put performs an HTTP PUT with the given content type.
func (c *Client) Put(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Delete performs an HTTP DELETE with context.
func (c *Client) Delete(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// endpointLabel derives a low-cardinality host+path label for metrics.
func endpointLabel(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}

	host := req.URL.Host
	path := req.URL.Path

	var builder strings.Builder
	builder.WriteString(host)
	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}

package zenwave

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// WithTransport sets the innermost Endpoint the stack dispatches to.
func WithTransport(transport Endpoint) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithHTTPClient dispatches requests through the given net/http client.
// Redirect following should usually be disabled on it, as the FollowRedirect
// middleware handles redirects itself.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.transport = EndpointFunc(client.Do)
	}
}

// WithTimeout bounds every request to d via the Timeout middleware.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = NewTimeout(d)
	}
}

// WithRateLimit throttles outgoing requests to r per second with the given
// burst, suspending callers until a token is available.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) {
		c.rateLimit = NewRateLimit(r, burst)
	}
}

// WithDeduplication coalesces identical in-flight GET/HEAD requests.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedup = NewDeduplicate()
	}
}

// WithCache enables the HTTP response cache.
func WithCache() Option {
	return func(c *Client) {
		c.cache = NewCache()
	}
}

// WithCustomCache installs a pre-built cache middleware, letting callers
// share one entry table across clients.
func WithCustomCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithMaxRedirects overrides the redirect bound (default 10).
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		c.redirect = NewFollowRedirectWithLimit(n)
	}
}

// WithoutRedirects disables redirect following entirely.
func WithoutRedirects() Option {
	return func(c *Client) {
		c.redirect = nil
	}
}

// WithRetry retries transport failures up to maxRetries times with capped
// exponential backoff between minDelay and maxDelay.
func WithRetry(maxRetries int, minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry = NewRetry(maxRetries).MinDelay(minDelay).MaxDelay(maxDelay)
	}
}

// WithRetryJitter adds a random jitter fraction to the retry backoff.
func WithRetryJitter(factor float64) Option {
	return func(c *Client) {
		if c.retry != nil {
			c.retry.Jitter(factor)
		}
	}
}

// WithRetryCondition restricts which transport errors are retried.
func WithRetryCondition(fn RetryCondition) Option {
	return func(c *Client) {
		if c.retry != nil {
			c.retry.Condition(fn)
		}
	}
}

// WithOAuth2 manages bearer tokens via the OAuth2 client credentials flow.
func WithOAuth2(tokenURL, clientID, clientSecret string) Option {
	return func(c *Client) {
		c.oauth2 = NewOAuth2ClientCredentials(tokenURL, clientID, clientSecret)
	}
}

// WithOAuth2Middleware installs a pre-configured OAuth2 middleware.
func WithOAuth2Middleware(m *OAuth2ClientCredentials) Option {
	return func(c *Client) {
		c.oauth2 = m
	}
}

// WithBearerAuth attaches a static bearer token to requests lacking one.
func WithBearerAuth(token string) Option {
	return func(c *Client) {
		c.auth = BearerAuth(token)
	}
}

// WithBasicAuth attaches basic credentials to requests lacking auth.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.auth = BasicAuth(username, password)
	}
}

// WithMiddleware adds user middleware between the retry layer and the
// transport, outermost first.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the current configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateTransportConfig()...)
	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateTimeoutConfig()...)
	problems = append(problems, c.validateOAuth2Config()...)
	problems = append(problems, c.validateMiddlewareConfig()...)

	if len(problems) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}
	return nil
}

func (c *Client) validateTransportConfig() []string {
	var problems []string
	if c.transport == nil {
		problems = append(problems, "transport cannot be nil")
	}
	return problems
}

func (c *Client) validateRetryConfig() []string {
	var problems []string
	if c.retry != nil {
		if c.retry.maxRetries < 0 {
			problems = append(problems, "maxRetries must be non-negative")
		}
		if c.retry.minDelay <= 0 {
			problems = append(problems, "retry minDelay must be positive")
		}
		if c.retry.maxDelay < c.retry.minDelay {
			problems = append(problems, "retry maxDelay must be greater than or equal to minDelay")
		}
	}
	return problems
}

func (c *Client) validateTimeoutConfig() []string {
	var problems []string
	if c.timeout != nil && c.timeout.duration <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	return problems
}

func (c *Client) validateOAuth2Config() []string {
	var problems []string
	if c.oauth2 != nil {
		if c.oauth2.tokenURL == "" {
			problems = append(problems, "oauth2 token URL must be set")
		}
		if c.oauth2.clientID == "" {
			problems = append(problems, "oauth2 client id must be set")
		}
		if c.oauth2.safetyWindow < 0 {
			problems = append(problems, "oauth2 safety window must be non-negative")
		}
		if c.auth != nil {
			problems = append(problems, "oauth2 and static auth cannot both be configured")
		}
	}
	return problems
}

func (c *Client) validateMiddlewareConfig() []string {
	var problems []string
	for i, middleware := range c.middleware {
		if middleware == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}
	return problems
}

package zenwave

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit is a middleware throttling outgoing requests with a token bucket.
// In blocking mode (default) it suspends the request chain until a token is
// available or the request context is cancelled; in non-blocking mode it
// fails fast with a rate-limit error.
type RateLimit struct {
	limiter  *rate.Limiter
	blocking bool
	metrics  *MetricsCollector
}

// NewRateLimit creates a blocking rate limit of r requests per second with
// the given burst.
func NewRateLimit(r rate.Limit, burst int) *RateLimit {
	return &RateLimit{limiter: rate.NewLimiter(r, burst), blocking: true}
}

// NonBlocking switches the middleware to fail-fast behavior.
func (l *RateLimit) NonBlocking() *RateLimit {
	l.blocking = false
	return l
}

// Wrap decorates next with rate limiting.
func (l *RateLimit) Wrap(next Endpoint) Endpoint {
	return EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return l.Handle(req, next)
	})
}

// Handle implements the Middleware contract.
func (l *RateLimit) Handle(req *http.Request, next Endpoint) (*http.Response, error) {
	if l.blocking {
		if err := l.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	} else if !l.limiter.Allow() {
		if l.metrics != nil {
			l.metrics.RecordRateLimited(req.Method, endpointLabel(req))
		}
		return nil, &ClientError{
			Type:    ErrorTypeRateLimit,
			Message: "rate limit exceeded",
			Method:  req.Method,
			URL:     req.URL.String(),
		}
	}
	return next.RoundTrip(req)
}

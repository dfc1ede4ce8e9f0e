package zenwave

import (
	"net/http"
)

// Endpoint is the minimal request/response operation exposed by a transport
// or a middleware stack. Implementations may consume the request body; callers
// that need to replay a request must snapshot it first (see snapshotBody).
type Endpoint interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// EndpointFunc adapts a plain function to the Endpoint interface.
type EndpointFunc func(*http.Request) (*http.Response, error)

func (f EndpointFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps exactly one inner Endpoint and itself satisfies the
// Endpoint contract once decorated, enabling arbitrary stacking.
type Middleware func(req *http.Request, next Endpoint) (*http.Response, error)

// Decorate layers middlewares over inner. The first middleware is outermost:
// Decorate(t, A, B) dispatches caller to A, then B, then t.
func Decorate(inner Endpoint, middleware ...Middleware) Endpoint {
	current := inner
	for i := len(middleware) - 1; i >= 0; i-- {
		m := middleware[i]
		next := current
		current = EndpointFunc(func(r *http.Request) (*http.Response, error) {
			return m(r, next)
		})
	}
	return current
}

// Option represents a configuration option for Client.
type Option func(*Client)

// RetryCondition determines whether a transport error should be retried.
// Received responses are never retried, whatever their status.
type RetryCondition func(err error) bool

// CacheCondition determines whether a request may go through the cache.
type CacheCondition func(req *http.Request) bool

// DeduplicationKeyFunc builds a key identifying identical in-flight requests.
type DeduplicationKeyFunc func(*http.Request) string

// DeduplicationCondition decides whether a request is eligible for coalescing.
type DeduplicationCondition func(req *http.Request) bool

package zenwave

import (
	"net/http"
	"net/url"
	"time"

	"github.com/zen-rs/zenwave/internal/backoff"
)

// Retry is a middleware that retries requests failing with a transport error.
// It does not retry requests that received a valid HTTP response, even if the
// status code indicates an error (500, 503, ...).
//
// The request body is snapshotted into bytes before the first attempt so each
// retry replays identical content; streaming bodies must be buffered before
// entering this middleware.
type Retry struct {
	maxRetries int
	minDelay   time.Duration
	maxDelay   time.Duration
	strategy   backoff.Strategy
	condition  RetryCondition
	metrics    *MetricsCollector
}

// retrySnapshot captures everything needed to rebuild an identical request
// before every attempt.
type retrySnapshot struct {
	method string
	url    *url.URL
	header http.Header
	body   []byte
}

// NewRetry creates the middleware with the given attempt bound and default
// delays (100ms minimum, 5s maximum).
func NewRetry(maxRetries int) *Retry {
	return &Retry{
		maxRetries: maxRetries,
		minDelay:   100 * time.Millisecond,
		maxDelay:   5 * time.Second,
		strategy:   backoff.Exponential{},
		condition:  func(error) bool { return true },
	}
}

// MinDelay sets the minimum delay between retries.
func (r *Retry) MinDelay(d time.Duration) *Retry {
	r.minDelay = d
	return r
}

// MaxDelay sets the maximum delay between retries.
func (r *Retry) MaxDelay(d time.Duration) *Retry {
	r.maxDelay = d
	return r
}

// Jitter switches the backoff to an exponential-jitter strategy with the
// given factor in [0, 1].
func (r *Retry) Jitter(factor float64) *Retry {
	r.strategy = backoff.ExponentialJitter{Jitter: factor}
	return r
}

// Condition restricts which transport errors are retried.
func (r *Retry) Condition(fn RetryCondition) *Retry {
	r.condition = fn
	return r
}

// Wrap decorates next with retries.
func (r *Retry) Wrap(next Endpoint) Endpoint {
	return EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return r.Handle(req, next)
	})
}

// Handle implements the Middleware contract.
func (r *Retry) Handle(req *http.Request, next Endpoint) (*http.Response, error) {
	body, err := snapshotBody(req)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeTransport,
			Message: "failed to buffer request body for retries",
			Cause:   err,
			Method:  req.Method,
			URL:     req.URL.String(),
		}
	}
	snapshot := retrySnapshot{
		method: req.Method,
		url:    req.URL,
		header: req.Header.Clone(),
		body:   body,
	}

	attempts := 0
	current := req
	for {
		resp, err := next.RoundTrip(current)
		if err == nil {
			return resp, nil
		}

		attempts++
		if attempts > r.maxRetries || !r.condition(err) {
			return nil, err
		}

		delay := r.strategy.Delay(attempts, r.minDelay, r.maxDelay)
		if r.metrics != nil {
			r.metrics.RecordRetry(snapshot.method, endpointLabel(req), attempts)
		}

		// Suspend only this request chain; bail out if the caller gives up.
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		}

		current = snapshot.rebuild(req)
	}
}

// rebuild constructs a fresh request from the snapshot, independent of
// whatever the transport consumed on the previous attempt.
func (s *retrySnapshot) rebuild(original *http.Request) *http.Request {
	req := &http.Request{
		Method:     s.method,
		URL:        s.url,
		Header:     s.header.Clone(),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Host:       original.Host,
	}
	req = req.WithContext(original.Context())
	restoreBody(req, s.body)
	return req
}

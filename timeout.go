package zenwave

import (
	"context"
	"net/http"
	"time"
)

// Timeout is a middleware that fails requests exceeding the configured
// duration. The inner call races a timer; when the timer wins, the inner call
// is cancelled through its context and abandoned. Side effects the transport
// produced up to that point are not rolled back.
type Timeout struct {
	duration time.Duration
	metrics  *MetricsCollector
}

// NewTimeout constructs a timeout middleware limiting requests to d.
func NewTimeout(d time.Duration) *Timeout {
	return &Timeout{duration: d}
}

// Wrap decorates next with the timeout.
func (t *Timeout) Wrap(next Endpoint) Endpoint {
	return EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return t.Handle(req, next)
	})
}

type timeoutResult struct {
	resp *http.Response
	err  error
}

// Handle implements the Middleware contract.
func (t *Timeout) Handle(req *http.Request, next Endpoint) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)

	done := make(chan timeoutResult, 1)
	go func() {
		resp, err := next.RoundTrip(req)
		done <- timeoutResult{resp, err}
	}()

	timer := time.NewTimer(t.duration)
	defer timer.Stop()

	select {
	case result := <-done:
		return result.resp, result.err
	case <-timer.C:
		cancel()
		if t.metrics != nil {
			t.metrics.RecordTimeout(req.Method, endpointLabel(req))
		}
		return nil, &ClientError{
			Type:    ErrorTypeTimeout,
			Message: "request timed out after " + t.duration.String(),
			Method:  req.Method,
			URL:     req.URL.String(),
		}
	}
}

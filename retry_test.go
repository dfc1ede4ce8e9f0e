package zenwave

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"
)

// flakyEndpoint fails the first failures attempts with a transport error,
// then succeeds. It records every body it receives.
type flakyEndpoint struct {
	failures int
	calls    int
	bodies   []string
}

var errConnReset = errors.New("connection reset by peer")

func (e *flakyEndpoint) RoundTrip(req *http.Request) (*http.Response, error) {
	e.calls++
	body := ""
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		body = string(data)
	}
	e.bodies = append(e.bodies, body)
	if e.calls <= e.failures {
		return nil, errConnReset
	}
	return newResponse(http.StatusOK, nil, "ok"), nil
}

func fastRetry(maxRetries int) *Retry {
	return NewRetry(maxRetries).MinDelay(time.Millisecond).MaxDelay(5 * time.Millisecond)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	backend := &flakyEndpoint{failures: 2}
	retry := fastRetry(3)

	resp, err := retry.Handle(newRequest(t, "GET", "http://example.com/", nil), backend)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if body := readBody(t, resp); body != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
	if backend.calls != 3 {
		t.Errorf("expected N+1 = 3 attempts, got %d", backend.calls)
	}
}

func TestRetryExhaustsBudgetAndReturnsError(t *testing.T) {
	backend := &flakyEndpoint{failures: 10}
	retry := fastRetry(2)

	_, err := retry.Handle(newRequest(t, "GET", "http://example.com/", nil), backend)
	if !errors.Is(err, errConnReset) {
		t.Fatalf("expected transport error after exhaustion, got %v", err)
	}
	if backend.calls != 3 {
		t.Errorf("expected maxRetries+1 = 3 attempts, got %d", backend.calls)
	}
}

func TestRetryReplaysBodyOnEveryAttempt(t *testing.T) {
	backend := &flakyEndpoint{failures: 1}
	retry := fastRetry(3)

	req := newRequest(t, "POST", "http://example.com/upload", nil)
	restoreBody(req, []byte("payload"))
	if _, err := retry.Handle(req, backend); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if len(backend.bodies) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(backend.bodies))
	}
	for i, body := range backend.bodies {
		if body != "payload" {
			t.Errorf("attempt %d: expected body 'payload', got %q", i+1, body)
		}
	}
}

func TestRetryDoesNotRetryHTTPErrorResponses(t *testing.T) {
	backend := newCountingEndpoint("boom", nil)
	backend.status = http.StatusInternalServerError
	retry := fastRetry(3)

	resp, err := retry.Handle(newRequest(t, "GET", "http://example.com/", nil), backend)
	if err != nil {
		t.Fatalf("a received response must be returned, got error %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected the 500 to pass through, got %d", resp.StatusCode)
	}
	if backend.count() != 1 {
		t.Errorf("5xx responses must not be retried, got %d calls", backend.count())
	}
}

func TestRetryHonorsCondition(t *testing.T) {
	backend := &flakyEndpoint{failures: 10}
	retry := fastRetry(3).Condition(func(err error) bool { return false })

	_, err := retry.Handle(newRequest(t, "GET", "http://example.com/", nil), backend)
	if !errors.Is(err, errConnReset) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if backend.calls != 1 {
		t.Errorf("condition=false must prevent retries, got %d calls", backend.calls)
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	backend := &flakyEndpoint{failures: 100}
	retry := NewRetry(100).MinDelay(50 * time.Millisecond).MaxDelay(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	req := newRequest(t, "GET", "http://example.com/", nil).WithContext(ctx)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := retry.Handle(req, backend)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if backend.calls > 2 {
		t.Errorf("cancellation must stop the retry loop, got %d calls", backend.calls)
	}
}

package zenwave

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

// slowEndpoint answers after a delay unless its context fires first.
type slowEndpoint struct {
	delay time.Duration
}

func (e *slowEndpoint) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-time.After(e.delay):
		return newResponse(http.StatusOK, nil, "slow"), nil
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
}

func TestTimeoutCompletesBeforeDeadline(t *testing.T) {
	timeout := NewTimeout(100 * time.Millisecond)
	backend := &slowEndpoint{delay: 5 * time.Millisecond}

	resp, err := timeout.Handle(newRequest(t, "GET", "http://example.com/", nil), backend)
	if err != nil {
		t.Fatalf("request should finish before timeout: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestTimeoutErrorsAfterDeadline(t *testing.T) {
	timeout := NewTimeout(5 * time.Millisecond)
	backend := &slowEndpoint{delay: 200 * time.Millisecond}

	_, err := timeout.Handle(newRequest(t, "GET", "http://example.com/", nil), backend)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		t.Fatalf("expected ClientError, got %v", err)
	}
	if clientErr.HTTPStatus() != http.StatusGatewayTimeout {
		t.Errorf("timeout must map to 504, got %d", clientErr.HTTPStatus())
	}
}

func TestTimeoutCancelsInnerCall(t *testing.T) {
	cancelled := make(chan struct{})
	backend := EndpointFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		close(cancelled)
		return nil, req.Context().Err()
	})
	timeout := NewTimeout(5 * time.Millisecond)

	if _, err := timeout.Handle(newRequest(t, "GET", "http://example.com/", nil), backend); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("losing the race must cancel the inner call")
	}
}

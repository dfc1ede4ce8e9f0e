package zenwave

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// gateEndpoint blocks until released, then answers; counts invocations.
type gateEndpoint struct {
	calls   atomic.Int64
	release chan struct{}
}

func (e *gateEndpoint) RoundTrip(*http.Request) (*http.Response, error) {
	e.calls.Add(1)
	<-e.release
	return newResponse(http.StatusOK, nil, "shared"), nil
}

func TestDeduplicateCoalescesConcurrentGETs(t *testing.T) {
	backend := &gateEndpoint{release: make(chan struct{})}
	dedup := NewDeduplicate()

	const workers = 5
	var wg sync.WaitGroup
	bodies := make([]string, workers)
	errs := make([]error, workers)
	started := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			resp, err := dedup.Handle(newRequest(t, "GET", "http://example.com/data", nil), backend)
			errs[i] = err
			if err == nil {
				bodies[i] = readBody(t, resp)
			}
		}(i)
	}

	for i := 0; i < workers; i++ {
		<-started
	}
	time.Sleep(10 * time.Millisecond) // let waiters attach to the entry
	close(backend.release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if bodies[i] != "shared" {
			t.Errorf("worker %d: expected 'shared', got %q", i, bodies[i])
		}
	}
	if backend.calls.Load() != 1 {
		t.Errorf("expected 1 backend call for coalesced requests, got %d", backend.calls.Load())
	}
}

func TestDeduplicateSkipsMutatingMethods(t *testing.T) {
	backend := newCountingEndpoint("done", nil)
	dedup := NewDeduplicate()

	for i := 0; i < 2; i++ {
		resp, err := dedup.Handle(newRequest(t, "POST", "http://example.com/submit", nil), backend)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		_ = readBody(t, resp)
	}

	if backend.count() != 2 {
		t.Errorf("POST requests must not be coalesced, got %d calls", backend.count())
	}
}

func TestDeduplicateKeyDistinguishesURLs(t *testing.T) {
	a := newRequest(t, "GET", "http://example.com/a", nil)
	b := newRequest(t, "GET", "http://example.com/b", nil)
	if DefaultDeduplicationKeyFunc(a) == DefaultDeduplicationKeyFunc(b) {
		t.Error("different URLs must produce different keys")
	}
}

func TestDeduplicateWaiterGetsIndependentBody(t *testing.T) {
	backend := &gateEndpoint{release: make(chan struct{})}
	dedup := NewDeduplicate()

	done := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			resp, err := dedup.Handle(newRequest(t, "GET", "http://example.com/data", nil), backend)
			if err != nil {
				done <- "error: " + err.Error()
				return
			}
			done <- readBody(t, resp)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(backend.release)

	for i := 0; i < 2; i++ {
		if body := <-done; body != "shared" {
			t.Errorf("each caller must read the full body independently, got %q", body)
		}
	}
}

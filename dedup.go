package zenwave

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sync"
	"time"
)

// Deduplicate is a middleware coalescing identical in-flight requests: one
// owner dispatches to the inner endpoint, buffers the response and every
// concurrent caller with the same key receives an independent copy. By
// default only GET and HEAD requests are coalesced.
type Deduplicate struct {
	mu        sync.Mutex
	entries   map[string]*dedupEntry
	keyFunc   DeduplicationKeyFunc
	condition DeduplicationCondition
	metrics   *MetricsCollector
}

// dedupEntry represents an in-flight request shared between callers.
type dedupEntry struct {
	status int
	header http.Header
	body   []byte
	err    error
	done   chan struct{}
}

// NewDeduplicate creates the middleware with default key and condition.
func NewDeduplicate() *Deduplicate {
	return &Deduplicate{
		entries:   make(map[string]*dedupEntry),
		keyFunc:   DefaultDeduplicationKeyFunc,
		condition: DefaultDeduplicationCondition,
	}
}

// KeyFunc overrides key derivation for in-flight requests.
func (d *Deduplicate) KeyFunc(fn DeduplicationKeyFunc) *Deduplicate {
	d.keyFunc = fn
	return d
}

// Condition overrides which requests are eligible for coalescing.
func (d *Deduplicate) Condition(fn DeduplicationCondition) *Deduplicate {
	d.condition = fn
	return d
}

// Wrap decorates next with request coalescing.
func (d *Deduplicate) Wrap(next Endpoint) Endpoint {
	return EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return d.Handle(req, next)
	})
}

// Handle implements the Middleware contract.
func (d *Deduplicate) Handle(req *http.Request, next Endpoint) (*http.Response, error) {
	if !d.condition(req) {
		return next.RoundTrip(req)
	}
	key := d.keyFunc(req)

	d.mu.Lock()
	if entry, exists := d.entries[key]; exists {
		d.mu.Unlock()
		if d.metrics != nil {
			d.metrics.RecordDeduplicationHit(req.Method, endpointLabel(req))
		}
		return entry.wait(req)
	}
	entry := &dedupEntry{done: make(chan struct{})}
	d.entries[key] = entry
	d.mu.Unlock()

	resp, err := next.RoundTrip(req)
	if err == nil {
		entry.status = resp.StatusCode
		entry.header = resp.Header.Clone()
		entry.body, err = bufferResponseBody(resp)
		if err != nil {
			resp = nil
		}
	}
	entry.err = err
	close(entry.done)

	// Entries linger briefly so near-simultaneous duplicates still coalesce.
	time.AfterFunc(100*time.Millisecond, func() {
		d.mu.Lock()
		delete(d.entries, key)
		d.mu.Unlock()
	})

	return resp, err
}

// wait blocks until the owning request completes or the context cancels,
// then returns an independently consumable response copy.
func (e *dedupEntry) wait(req *http.Request) (*http.Response, error) {
	select {
	case <-e.done:
		if e.err != nil {
			return nil, e.err
		}
		return &http.Response{
			StatusCode:    e.status,
			Header:        e.header.Clone(),
			Body:          io.NopCloser(bytes.NewReader(e.body)),
			ContentLength: int64(len(e.body)),
		}, nil
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
}

// DefaultDeduplicationKeyFunc builds a key from method + URL, adding a body
// hash for mutating verbs with a replayable body.
func DefaultDeduplicationKeyFunc(req *http.Request) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(req.Method))
	if req.URL != nil {
		_, _ = h.Write([]byte(req.URL.String()))
	}

	if req.GetBody != nil && (req.Method == http.MethodPost || req.Method == http.MethodPut || req.Method == http.MethodPatch) {
		if body, err := req.GetBody(); err == nil {
			bodyHash := sha256.New()
			_, _ = io.Copy(bodyHash, body)
			_ = body.Close()
			_, _ = h.Write(bodyHash.Sum(nil))
		}
	}

	return fmt.Sprintf("%x", h.Sum64())
}

// DefaultDeduplicationCondition coalesces GET and HEAD requests only.
func DefaultDeduplicationCondition(req *http.Request) bool {
	return req.Method == http.MethodGet || req.Method == http.MethodHead
}

package zenwave

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Cache is a middleware implementing an in-memory HTTP cache. It honors the
// core caching directives (Cache-Control, Expires, ETag, Last-Modified) so it
// can serve fresh responses locally and transparently revalidate stale
// entries with conditional requests. Only GET requests are cached, keyed by
// absolute URI, one entry per key.
//
// A Cache instance is safe for concurrent use; the entry table is guarded by
// a single mutex and no critical section spans the inner dispatch.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*cachedEntry
	condition CacheCondition
	metrics   *MetricsCollector
}

// NewCache creates an empty in-memory cache middleware.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cachedEntry)}
}

// Condition restricts which requests may go through the cache. Requests the
// condition rejects are dispatched directly.
func (c *Cache) Condition(fn CacheCondition) *Cache {
	c.condition = fn
	return c
}

// cachedEntry is a stored response plus the metadata needed to decide
// freshness and drive revalidation.
type cachedEntry struct {
	status         int
	header         http.Header
	body           []byte
	storedAt       time.Time
	freshness      *time.Duration
	mustRevalidate bool
	etag           string
	lastModified   string
}

func (e *cachedEntry) isFresh(now time.Time) bool {
	return e.freshness != nil && now.Sub(e.storedAt) < *e.freshness
}

func (e *cachedEntry) canRevalidate() bool {
	return e.etag != "" || e.lastModified != ""
}

func (e *cachedEntry) applyConditionalHeaders(header http.Header) {
	if e.etag != "" {
		header.Set("If-None-Match", e.etag)
	}
	if e.lastModified != "" {
		header.Set("If-Modified-Since", e.lastModified)
	}
}

// updateFrom304 refreshes the entry after a successful revalidation: merge
// the allow-listed headers, recompute freshness from the merged metadata and
// reset the stored-at clock.
func (e *cachedEntry) updateFrom304(resp *http.Response, now time.Time) {
	e.storedAt = now
	for _, name := range []string{"Cache-Control", "ETag", "Expires", "Date", "Last-Modified"} {
		if value := resp.Header.Get(name); value != "" {
			e.header.Set(name, value)
		}
	}
	if etag := e.header.Get("ETag"); etag != "" {
		e.etag = etag
	}
	if lastModified := e.header.Get("Last-Modified"); lastModified != "" {
		e.lastModified = lastModified
	}

	cc := parseCacheControl(resp.Header.Values("Cache-Control"))
	if cc.MaxAge != nil {
		e.freshness = cc.MaxAge
	}
	if cc.NoCache || cc.MustRevalidate {
		e.mustRevalidate = true
	}
	if cc.MaxAge == nil {
		if d := expiresIn(e.header, now); d != nil {
			e.freshness = d
		}
	}
}

// toResponse synthesizes a response from the entry. The Age header is always
// inserted, overwriting whatever the snapshot carried.
func (e *cachedEntry) toResponse(now time.Time) *http.Response {
	header := e.header.Clone()
	age := int(now.Sub(e.storedAt) / time.Second)
	if age < 0 {
		age = 0
	}
	header.Set("Age", strconv.Itoa(age))

	return &http.Response{
		StatusCode:    e.status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.body)),
		ContentLength: int64(len(e.body)),
	}
}

func cacheKey(req *http.Request) (string, bool) {
	if req.Method != http.MethodGet || req.URL == nil {
		return "", false
	}
	return req.URL.String(), true
}

// Wrap decorates next with the cache.
func (c *Cache) Wrap(next Endpoint) Endpoint {
	return EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return c.Handle(req, next)
	})
}

// Handle implements the Middleware contract.
func (c *Cache) Handle(req *http.Request, next Endpoint) (*http.Response, error) {
	key, ok := cacheKey(req)
	if !ok {
		return next.RoundTrip(req)
	}
	if c.condition != nil && !c.condition(req) {
		return next.RoundTrip(req)
	}
	endpoint := endpointLabel(req)

	requestCC := parseCacheControl(req.Header.Values("Cache-Control"))
	if requestCC.NoStore {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return next.RoundTrip(req)
	}

	now := time.Now()
	var pending *cachedEntry

	c.mu.Lock()
	if entry, exists := c.entries[key]; exists {
		if !requestCC.NoCache && !entry.mustRevalidate && entry.isFresh(now) {
			resp := entry.toResponse(now)
			c.mu.Unlock()
			if c.metrics != nil {
				c.metrics.RecordCacheHit(req.Method, endpoint)
			}
			return resp, nil
		}

		entryRequiresRevalidation := entry.mustRevalidate || !entry.isFresh(now)
		needsRevalidation := requestCC.NoCache || entryRequiresRevalidation
		if needsRevalidation && entry.canRevalidate() {
			// Detach the entry while the conditional request is in flight so
			// the table never holds an entry that is being reconciled.
			delete(c.entries, key)
			pending = entry
		} else if entryRequiresRevalidation {
			delete(c.entries, key)
			if c.metrics != nil {
				c.metrics.RecordCacheEviction(endpoint)
			}
		}
	}
	c.mu.Unlock()

	if pending != nil {
		pending.applyConditionalHeaders(req.Header)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(req.Method, endpoint)
	}

	resp, err := next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified {
		if pending == nil {
			// 304 with nothing to reconcile against is a server-side protocol
			// violation; hand the raw response back.
			return resp, nil
		}
		if resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		now = time.Now()
		pending.updateFrom304(resp, now)
		out := pending.toResponse(now)
		c.mu.Lock()
		c.entries[key] = pending
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.RecordCacheRevalidation(endpoint)
		}
		return out, nil
	}

	responseCC := parseCacheControl(resp.Header.Values("Cache-Control"))
	authPresent := req.Header.Get("Authorization") != ""
	allowShared := !authPresent || responseCC.Public
	if !allowShared || responseCC.NoStore {
		return resp, nil
	}

	now = time.Now()
	freshness := responseFreshness(responseCC, resp.Header, now)
	mustRevalidate := responseCC.NoCache || responseCC.MustRevalidate || requestCC.NoCache
	if freshness == nil && !mustRevalidate {
		// Nothing makes the entry servable or revalidatable later.
		return resp, nil
	}

	body, err := bufferResponseBody(resp)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeCacheBody,
			Message: "failed to buffer response body for caching",
			Cause:   err,
			Method:  req.Method,
			URL:     req.URL.String(),
		}
	}

	header := resp.Header.Clone()
	header.Del("Age")
	entry := &cachedEntry{
		status:         resp.StatusCode,
		header:         header,
		body:           body,
		storedAt:       now,
		freshness:      freshness,
		mustRevalidate: mustRevalidate,
		etag:           header.Get("ETag"),
		lastModified:   header.Get("Last-Modified"),
	}

	c.mu.Lock()
	c.entries[key] = entry
	size := len(c.entries)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RecordCacheSize("default", size)
	}

	return entry.toResponse(now), nil
}

// Clear removes all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cachedEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

package zenwave

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

// recordingEndpoint scripts a sequence of responses and records each request
// it sees (method, URL, headers, body).
type recordingEndpoint struct {
	t         *testing.T
	responses []*http.Response
	requests  []recordedRequest
}

type recordedRequest struct {
	method string
	url    string
	header http.Header
	body   string
}

func (e *recordingEndpoint) RoundTrip(req *http.Request) (*http.Response, error) {
	body := ""
	if req.Body != nil && req.Body != http.NoBody {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			e.t.Fatalf("failed to read request body: %v", err)
		}
		body = string(data)
	}
	e.requests = append(e.requests, recordedRequest{
		method: req.Method,
		url:    req.URL.String(),
		header: req.Header.Clone(),
		body:   body,
	})
	if len(e.requests) > len(e.responses) {
		e.t.Fatalf("unexpected request %d", len(e.requests))
	}
	return e.responses[len(e.requests)-1], nil
}

func redirectResponse(status int, location string) *http.Response {
	return newResponse(status, map[string]string{"Location": location}, "")
}

func TestRedirect302DowngradesPOSTToGET(t *testing.T) {
	backend := &recordingEndpoint{t: t, responses: []*http.Response{
		redirectResponse(http.StatusFound, "/next"),
		newResponse(http.StatusOK, nil, "done"),
	}}
	follow := NewFollowRedirect()

	req := newRequest(t, "POST", "http://example.com/form", strings.NewReader("payload"))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := follow.Handle(req, backend)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if body := readBody(t, resp); body != "done" {
		t.Errorf("expected final body 'done', got %q", body)
	}

	second := backend.requests[1]
	if second.method != "GET" {
		t.Errorf("302 must downgrade POST to GET, got %s", second.method)
	}
	if second.url != "http://example.com/next" {
		t.Errorf("relative Location must resolve against current URL, got %s", second.url)
	}
	if second.body != "" {
		t.Errorf("downgraded request must carry no body, got %q", second.body)
	}
	if second.header.Get("Content-Type") != "" {
		t.Error("Content-Type must be dropped when the body is dropped")
	}
}

func TestRedirect307PreservesMethodAndBody(t *testing.T) {
	backend := &recordingEndpoint{t: t, responses: []*http.Response{
		redirectResponse(http.StatusTemporaryRedirect, "http://example.com/other"),
		newResponse(http.StatusOK, nil, "done"),
	}}
	follow := NewFollowRedirect()

	req := newRequest(t, "POST", "http://example.com/form", strings.NewReader("payload"))
	if _, err := follow.Handle(req, backend); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	second := backend.requests[1]
	if second.method != "POST" {
		t.Errorf("307 must preserve the method, got %s", second.method)
	}
	if second.body != "payload" {
		t.Errorf("307 must replay the original body, got %q", second.body)
	}
}

func TestRedirect303AlwaysDowngradesToGET(t *testing.T) {
	backend := &recordingEndpoint{t: t, responses: []*http.Response{
		redirectResponse(http.StatusSeeOther, "/result"),
		newResponse(http.StatusOK, nil, "done"),
	}}
	follow := NewFollowRedirect()

	req := newRequest(t, "PUT", "http://example.com/job", strings.NewReader("data"))
	if _, err := follow.Handle(req, backend); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if backend.requests[1].method != "GET" {
		t.Errorf("303 must downgrade to GET, got %s", backend.requests[1].method)
	}
}

func TestRedirect301LeavesGETUntouched(t *testing.T) {
	backend := &recordingEndpoint{t: t, responses: []*http.Response{
		redirectResponse(http.StatusMovedPermanently, "/moved"),
		newResponse(http.StatusOK, nil, "done"),
	}}
	follow := NewFollowRedirect()

	if _, err := follow.Handle(newRequest(t, "GET", "http://example.com/old", nil), backend); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if backend.requests[1].method != "GET" {
		t.Errorf("301 must leave GET untouched, got %s", backend.requests[1].method)
	}
}

func TestRedirectStripsCredentialsCrossHostAndStaysStripped(t *testing.T) {
	backend := &recordingEndpoint{t: t, responses: []*http.Response{
		redirectResponse(http.StatusFound, "http://other.example.org/hop"),
		redirectResponse(http.StatusFound, "http://example.com/back"),
		newResponse(http.StatusOK, nil, "done"),
	}}
	follow := NewFollowRedirect()

	req := newRequest(t, "GET", "http://example.com/start", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Cookie", "session=abc")
	if _, err := follow.Handle(req, backend); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	crossHost := backend.requests[1]
	if crossHost.header.Get("Authorization") != "" {
		t.Error("Authorization must be stripped on a cross-host hop")
	}
	if crossHost.header.Get("Cookie") != "" {
		t.Error("Cookie must be stripped on a cross-host hop")
	}

	// The third hop returns to the original host; stripping is sticky.
	backToOrigin := backend.requests[2]
	if backToOrigin.header.Get("Authorization") != "" {
		t.Error("Authorization must remain stripped after returning to the original host")
	}
	if backToOrigin.header.Get("Cookie") != "" {
		t.Error("Cookie must remain stripped after returning to the original host")
	}
}

func TestRedirectKeepsCredentialsSameHost(t *testing.T) {
	backend := &recordingEndpoint{t: t, responses: []*http.Response{
		redirectResponse(http.StatusFound, "/hop"),
		newResponse(http.StatusOK, nil, "done"),
	}}
	follow := NewFollowRedirect()

	req := newRequest(t, "GET", "http://example.com/start", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if _, err := follow.Handle(req, backend); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if backend.requests[1].header.Get("Authorization") != "Bearer secret" {
		t.Error("same-host hops must keep the Authorization header")
	}
}

func TestRedirectTooManyRedirects(t *testing.T) {
	backend := EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return redirectResponse(http.StatusFound, "/loop"), nil
	})
	follow := NewFollowRedirectWithLimit(3)

	_, err := follow.Handle(newRequest(t, "GET", "http://example.com/loop", nil), backend)
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}
}

func TestRedirectMissingLocation(t *testing.T) {
	backend := EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return newResponse(http.StatusFound, nil, ""), nil
	})
	follow := NewFollowRedirect()

	_, err := follow.Handle(newRequest(t, "GET", "http://example.com/", nil), backend)
	if !errors.Is(err, ErrMissingLocation) {
		t.Fatalf("expected ErrMissingLocation, got %v", err)
	}
}

func TestRedirectInvalidLocation(t *testing.T) {
	backend := EndpointFunc(func(req *http.Request) (*http.Response, error) {
		return redirectResponse(http.StatusFound, "http://%zz invalid"), nil
	})
	follow := NewFollowRedirect()

	_, err := follow.Handle(newRequest(t, "GET", "http://example.com/", nil), backend)
	if !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
}

func TestRedirectDropsHostAndContentLength(t *testing.T) {
	backend := &recordingEndpoint{t: t, responses: []*http.Response{
		redirectResponse(http.StatusTemporaryRedirect, "/hop"),
		newResponse(http.StatusOK, nil, "done"),
	}}
	follow := NewFollowRedirect()

	req := newRequest(t, "POST", "http://example.com/start", strings.NewReader("data"))
	req.Header.Set("Host", "stale.example.com")
	req.Header.Set("Content-Length", "4")
	if _, err := follow.Handle(req, backend); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	second := backend.requests[1]
	if second.header.Get("Host") != "" {
		t.Error("Host header must be dropped on redirect")
	}
	if second.header.Get("Content-Length") != "" {
		t.Error("Content-Length header must be dropped on redirect")
	}
}

package zenwave

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
)

// newResponse builds an in-memory response the way a transport would.
func newResponse(status int, headers map[string]string, body string) *http.Response {
	header := http.Header{}
	for name, value := range headers {
		header.Set(name, value)
	}
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
	}
}

// countingEndpoint replays a fixed response and counts invocations.
type countingEndpoint struct {
	calls   atomic.Int64
	status  int
	headers map[string]string
	body    string
}

func newCountingEndpoint(body string, headers map[string]string) *countingEndpoint {
	return &countingEndpoint{status: http.StatusOK, headers: headers, body: body}
}

func (e *countingEndpoint) RoundTrip(*http.Request) (*http.Response, error) {
	e.calls.Add(1)
	return newResponse(e.status, e.headers, e.body), nil
}

func (e *countingEndpoint) count() int {
	return int(e.calls.Load())
}

func newRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()
	return string(body)
}

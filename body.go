package zenwave

import (
	"bytes"
	"io"
	"net/http"
)

// maxBufferedBody bounds how much of a body is materialized into memory when
// a middleware needs replayable bytes.
const maxBufferedBody = 10 * 1024 * 1024

// snapshotBody materializes a request body into bytes so it can be replayed.
// The request is left with a fresh reader over the same bytes and a GetBody
// that hands out further copies. A body stream is consumable exactly once;
// this is the single point where it is forced into replayable form.
func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBufferedBody))
	closeErr := req.Body.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}
	restoreBody(req, body)
	return body, nil
}

// restoreBody installs a replayable byte body on the request.
func restoreBody(req *http.Request, body []byte) {
	if len(body) == 0 {
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		req.ContentLength = 0
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.ContentLength = int64(len(body))
}

// bufferResponseBody reads a response body fully into bytes and replaces it
// with an equivalent in-memory reader, so the response stays consumable.
func bufferResponseBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBufferedBody))
	if err != nil && err != io.EOF {
		_ = resp.Body.Close()
		return nil, err
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

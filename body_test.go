package zenwave

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestSnapshotBodyMakesRequestReplayable(t *testing.T) {
	req := newRequest(t, "POST", "http://example.com/", strings.NewReader("payload"))

	body, err := snapshotBody(req)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("unexpected snapshot %q", body)
	}

	// The body survives a full read plus a GetBody replay.
	first, _ := io.ReadAll(req.Body)
	if string(first) != "payload" {
		t.Errorf("restored body reads %q", first)
	}
	reader, err := req.GetBody()
	if err != nil {
		t.Fatalf("GetBody failed: %v", err)
	}
	second, _ := io.ReadAll(reader)
	if string(second) != "payload" {
		t.Errorf("replayed body reads %q", second)
	}
	if req.ContentLength != int64(len("payload")) {
		t.Errorf("ContentLength = %d", req.ContentLength)
	}
}

func TestSnapshotBodyNilBody(t *testing.T) {
	req := newRequest(t, "GET", "http://example.com/", nil)
	body, err := snapshotBody(req)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if body != nil {
		t.Errorf("expected nil snapshot, got %q", body)
	}
}

func TestRestoreBodyEmpty(t *testing.T) {
	req := newRequest(t, "POST", "http://example.com/", strings.NewReader("x"))
	restoreBody(req, nil)
	if req.Body != http.NoBody {
		t.Error("empty restore should install http.NoBody")
	}
	if req.ContentLength != 0 {
		t.Errorf("ContentLength = %d", req.ContentLength)
	}
}

func TestBufferResponseBodyKeepsResponseReadable(t *testing.T) {
	resp := newResponse(http.StatusOK, nil, "content")
	body, err := bufferResponseBody(resp)
	if err != nil {
		t.Fatalf("buffer failed: %v", err)
	}
	if string(body) != "content" {
		t.Errorf("unexpected buffer %q", body)
	}
	if got := readBody(t, resp); got != "content" {
		t.Errorf("response body reads %q after buffering", got)
	}
}

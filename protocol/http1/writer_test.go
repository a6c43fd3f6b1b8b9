// File: protocol/http1/writer_test.go
// License: Apache-2.0

package http1

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/eddelbuettel/httpuv/api"
)

// Round-trip property: a serialized response read back with the standard
// library client yields the same status, headers, and body.
func TestAppendResponseRoundtrip(t *testing.T) {
	resp := api.NewResponse(200)
	resp.Header.Set("Content-Type", "text/plain")
	resp.Body = []byte("ok")

	raw := AppendResponse(nil, resp, int64(len(resp.Body)), false, false)

	parsed, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		t.Fatalf("ReadResponse failed: %v", err)
	}
	defer parsed.Body.Close()

	if parsed.StatusCode != 200 {
		t.Errorf("status = %d, want 200", parsed.StatusCode)
	}
	if ct := parsed.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q", ct)
	}
	if parsed.Header.Get("Date") == "" {
		t.Error("Date header missing")
	}
	if cl := parsed.Header.Get("Content-Length"); cl != "2" {
		t.Errorf("Content-Length = %q, want 2", cl)
	}
	body, _ := io.ReadAll(parsed.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
}

func TestAppendResponseHeadSuppressesBody(t *testing.T) {
	resp := api.NewResponse(200)
	resp.Body = []byte("not sent")

	raw := AppendResponse(nil, resp, int64(len(resp.Body)), true, false)
	s := string(raw)
	if strings.Contains(s, "not sent") {
		t.Error("HEAD response carried a body")
	}
	if !strings.Contains(s, "Content-Length: 8\r\n") {
		t.Errorf("HEAD response lost Content-Length:\n%s", s)
	}
}

func TestAppendResponseConnectionHeader(t *testing.T) {
	raw := AppendResponse(nil, api.NewResponse(204), 0, false, true)
	if !strings.Contains(string(raw), "Connection: close\r\n") {
		t.Errorf("missing Connection: close in\n%s", raw)
	}
	raw = AppendResponse(nil, api.NewResponse(200), 0, false, false)
	if !strings.Contains(string(raw), "Connection: keep-alive\r\n") {
		t.Errorf("missing Connection: keep-alive in\n%s", raw)
	}
}

func TestAppendResponseFileBodyLength(t *testing.T) {
	resp := api.NewResponse(200)
	resp.File = &api.FileBody{Path: "/tmp/x", Length: 1234}

	raw := AppendResponse(nil, resp, 1234, false, false)
	if !strings.Contains(string(raw), "Content-Length: 1234\r\n") {
		t.Errorf("file body length not serialized:\n%s", raw)
	}
	if !bytes.HasSuffix(raw, []byte("\r\n\r\n")) {
		t.Error("file-backed response must end at the header section")
	}
}

func TestAppendResponseBadStatusClamped(t *testing.T) {
	resp := api.NewResponse(0)
	raw := AppendResponse(nil, resp, 0, false, false)
	if !bytes.HasPrefix(raw, []byte("HTTP/1.1 500 ")) {
		t.Errorf("status line = %q", bytes.SplitN(raw, []byte("\r\n"), 2)[0])
	}
}

func TestSwitchingProtocols(t *testing.T) {
	raw := SwitchingProtocols("s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")
	parsed, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		t.Fatalf("ReadResponse failed: %v", err)
	}
	if parsed.StatusCode != 101 {
		t.Errorf("status = %d, want 101", parsed.StatusCode)
	}
	if parsed.Header.Get("Sec-WebSocket-Accept") != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Error("accept header lost")
	}
}

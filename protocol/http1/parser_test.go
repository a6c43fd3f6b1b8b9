// File: protocol/http1/parser_test.go
// License: Apache-2.0

package http1

import (
	"bytes"
	"errors"
	"testing"

	"github.com/eddelbuettel/httpuv/api"
)

func feedAll(t *testing.T, p *Parser, data []byte) *api.Request {
	t.Helper()
	n, done, err := p.Feed(data)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if !done {
		t.Fatalf("request incomplete after %d of %d bytes", n, len(data))
	}
	return p.Take()
}

func TestParseSimpleGet(t *testing.T) {
	raw := []byte("GET /index?q=1 HTTP/1.1\r\nHost: example.test\r\nAccept: */*\r\n\r\n")
	req := feedAll(t, NewParser(0, 0), raw)

	if req.Method != "GET" || req.Path != "/index" || req.Query != "q=1" || req.Proto != "HTTP/1.1" {
		t.Errorf("request line parsed as %q %q %q %q", req.Method, req.Path, req.Query, req.Proto)
	}
	if req.Header.Get("host") != "example.test" {
		t.Errorf("Host = %q", req.Header.Get("host"))
	}
	if len(req.Body) != 0 {
		t.Errorf("unexpected body %q", req.Body)
	}
}

func TestParseContentLengthBody(t *testing.T) {
	raw := []byte("POST /submit HTTP/1.1\r\nHost: h\r\nContent-Length: 11\r\n\r\nhello world")
	req := feedAll(t, NewParser(0, 0), raw)
	if string(req.Body) != "hello world" {
		t.Errorf("body = %q", req.Body)
	}
}

func TestParseChunkedBody(t *testing.T) {
	raw := []byte("POST /up HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nWiki\r\n5\r\npedia\r\n0\r\nX-Trailer: t\r\n\r\n")
	req := feedAll(t, NewParser(0, 0), raw)
	if string(req.Body) != "Wikipedia" {
		t.Errorf("body = %q", req.Body)
	}
}

// Feeding a request split at every possible boundary must parse identically
// to feeding it in one call.
func TestParseChunkBoundaryIndependence(t *testing.T) {
	raw := []byte("POST /a/b?x=y HTTP/1.1\r\nHost: h\r\nX-One: 1\r\nX-One: 2\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n3\r\nabc\r\n3\r\ndef\r\n0\r\n\r\n")
	want := feedAll(t, NewParser(0, 0), raw)

	for split := 1; split < len(raw); split++ {
		p := NewParser(0, 0)
		n1, done, err := p.Feed(raw[:split])
		if err != nil {
			t.Fatalf("split %d: first Feed failed: %v", split, err)
		}
		rest := raw[split:]
		if !done {
			var n2 int
			n2, done, err = p.Feed(rest)
			if err != nil || !done {
				t.Fatalf("split %d: second Feed done=%v err=%v", split, done, err)
			}
			rest = rest[n2:]
		} else {
			rest = raw[n1:]
		}
		if len(rest) != 0 {
			t.Fatalf("split %d: %d unconsumed bytes", split, len(rest))
		}

		got := p.Take()
		if got.Method != want.Method || got.Path != want.Path || got.Query != want.Query {
			t.Fatalf("split %d: request line mismatch", split)
		}
		if got.Header.Get("x-one") != want.Header.Get("x-one") {
			t.Fatalf("split %d: header mismatch %q", split, got.Header.Get("x-one"))
		}
		if !bytes.Equal(got.Body, want.Body) {
			t.Fatalf("split %d: body %q, want %q", split, got.Body, want.Body)
		}
	}
}

func TestParsePipelinedStopsAtBoundary(t *testing.T) {
	raw := []byte("GET /first HTTP/1.1\r\nHost: h\r\n\r\nGET /second HTTP/1.1\r\nHost: h\r\n\r\n")
	p := NewParser(0, 0)

	n, done, err := p.Feed(raw)
	if err != nil || !done {
		t.Fatalf("first request: done=%v err=%v", done, err)
	}
	if req := p.Take(); req.Path != "/first" {
		t.Errorf("first path = %q", req.Path)
	}

	_, done, err = p.Feed(raw[n:])
	if err != nil || !done {
		t.Fatalf("second request: done=%v err=%v", done, err)
	}
	if req := p.Take(); req.Path != "/second" {
		t.Errorf("second path = %q", req.Path)
	}
}

func TestParseRepeatedHeadersJoin(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nHost: h\r\nAccept: text/html\r\nAccept: text/plain\r\n\r\n")
	req := feedAll(t, NewParser(0, 0), raw)
	if req.Header.Get("Accept") != "text/html, text/plain" {
		t.Errorf("Accept = %q", req.Header.Get("Accept"))
	}
}

func TestParseExpectContinue(t *testing.T) {
	raw := []byte("POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 2\r\nExpect: 100-continue\r\n\r\n")
	p := NewParser(0, 0)
	if _, done, err := p.Feed(raw); err != nil || done {
		t.Fatalf("headers: done=%v err=%v", done, err)
	}
	if !p.TakeContinue() {
		t.Fatal("interim 100 response not signalled")
	}
	if p.TakeContinue() {
		t.Fatal("interim 100 response signalled twice")
	}
	if _, done, err := p.Feed([]byte("ok")); err != nil || !done {
		t.Fatalf("body: done=%v err=%v", done, err)
	}
	if req := p.Take(); string(req.Body) != "ok" {
		t.Errorf("body = %q", req.Body)
	}
}

func TestParseMalformedRequestLine(t *testing.T) {
	p := NewParser(0, 0)
	if _, _, err := p.Feed([]byte("NONSENSE\r\n\r\n")); !errors.Is(err, api.ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestParseHeaderLimit(t *testing.T) {
	p := NewParser(64, 0)
	raw := []byte("GET / HTTP/1.1\r\nX-Padding: " + string(bytes.Repeat([]byte{'a'}, 256)) + "\r\n\r\n")
	if _, _, err := p.Feed(raw); !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("err = %v, want ErrHeaderTooLarge", err)
	}
}

func TestParseBodyLimit(t *testing.T) {
	p := NewParser(0, 4)
	raw := []byte("POST / HTTP/1.1\r\nHost: h\r\nContent-Length: 10\r\n\r\n0123456789")
	if _, _, err := p.Feed(raw); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("err = %v, want ErrBodyTooLarge", err)
	}
}

func TestShouldClose(t *testing.T) {
	mk := func(proto, conn string) *api.Request {
		h := make(api.Header)
		if conn != "" {
			h.Set("Connection", conn)
		}
		return &api.Request{Proto: proto, Header: h}
	}
	if ShouldClose(mk("HTTP/1.1", "")) {
		t.Error("HTTP/1.1 default must keep alive")
	}
	if !ShouldClose(mk("HTTP/1.1", "close")) {
		t.Error("Connection: close ignored")
	}
	if !ShouldClose(mk("HTTP/1.0", "")) {
		t.Error("HTTP/1.0 default must close")
	}
	if ShouldClose(mk("HTTP/1.0", "keep-alive")) {
		t.Error("HTTP/1.0 keep-alive ignored")
	}
}

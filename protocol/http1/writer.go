// File: protocol/http1/writer.go
// Package http1 implements incremental HTTP/1.1 request parsing and response
// serialization for the connection engine.
// License: Apache-2.0
//
// Response serialization. The serializer produces the status line, the
// header section with engine-supplied defaults (Date, Content-Length,
// Connection), and any in-memory body bytes. File-backed bodies are streamed
// by the connection's write queue, so only their length appears here.

package http1

import (
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"time"

	"github.com/eddelbuettel/httpuv/api"
)

// ContinueResponse is the interim response written when a request carries
// Expect: 100-continue.
const ContinueResponse = "HTTP/1.1 100 Continue\r\n\r\n"

// SwitchingProtocols serializes the 101 response completing a WebSocket
// opening handshake.
func SwitchingProtocols(accept string) []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n")
}

// AppendResponse serializes resp onto dst and returns the extended slice.
// bodyLen is the total body length (in-memory or file-backed); close selects
// the Connection header. For HEAD requests the header section is identical
// but no body bytes are appended.
func AppendResponse(dst []byte, resp *api.Response, bodyLen int64, head, close bool) []byte {
	status := resp.Status
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	reason := http.StatusText(status)
	if reason == "" {
		reason = "Status"
	}

	if resp.Header == nil {
		resp.Header = make(api.Header)
	}
	h := resp.Header
	if h.Get("Date") == "" {
		h.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if !bodyForbidden(status) && h.Get("Content-Length") == "" {
		h.Set("Content-Length", strconv.FormatInt(bodyLen, 10))
	}
	if h.Get("Connection") == "" {
		if close {
			h.Set("Connection", "close")
		} else {
			h.Set("Connection", "keep-alive")
		}
	}

	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	dst = append(dst, reason...)
	dst = append(dst, '\r', '\n')

	// Stable field order keeps serialization deterministic for tests and
	// diffing.
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dst = append(dst, textproto.CanonicalMIMEHeaderKey(k)...)
		dst = append(dst, ':', ' ')
		dst = append(dst, h[k]...)
		dst = append(dst, '\r', '\n')
	}
	dst = append(dst, '\r', '\n')

	if !head && resp.File == nil && !bodyForbidden(status) {
		dst = append(dst, resp.Body...)
	}
	return dst
}

// bodyForbidden reports whether a status code forbids a message body.
func bodyForbidden(status int) bool {
	return status < 200 || status == http.StatusNoContent || status == http.StatusNotModified
}

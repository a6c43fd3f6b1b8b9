// File: protocol/upgrader.go
// Package protocol implements the WebSocket wire protocol.
// License: Apache-2.0
//
// RFC 6455 opening handshake validation and Sec-WebSocket-Accept
// computation. On success the caller writes a 101 response carrying the
// returned accept value and switches the connection into WebSocket mode; on
// failure the connection stays in HTTP mode and answers with a plain error
// response.

package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"

	"github.com/eddelbuettel/httpuv/api"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// RequiredWebSocketVersion is the only protocol version served.
const RequiredWebSocketVersion = "13"

// Handshake validation errors.
var (
	ErrNotUpgrade          = errors.New("not a websocket upgrade request")
	ErrMissingWebSocketKey = errors.New("missing Sec-WebSocket-Key header")
	ErrBadWebSocketVersion = errors.New("unsupported WebSocket version; only '13' is supported")
)

// IsUpgradeRequest reports whether req asks to switch to the WebSocket
// protocol. It checks the token lists of the Connection and Upgrade fields
// case-insensitively.
func IsUpgradeRequest(req *api.Request) bool {
	return req.Header.Contains("Connection", "upgrade") &&
		req.Header.Contains("Upgrade", "websocket")
}

// Upgrade validates the handshake request and returns the value for the
// Sec-WebSocket-Accept response header.
func Upgrade(req *api.Request) (string, error) {
	if req.Method != "GET" || !IsUpgradeRequest(req) {
		return "", ErrNotUpgrade
	}
	if req.Header.Get("Sec-WebSocket-Version") != RequiredWebSocketVersion {
		return "", ErrBadWebSocketVersion
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return "", ErrMissingWebSocketKey
	}
	return AcceptKey(key), nil
}

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

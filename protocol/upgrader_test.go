// File: protocol/upgrader_test.go
// License: Apache-2.0

package protocol

import (
	"errors"
	"testing"

	"github.com/eddelbuettel/httpuv/api"
)

func upgradeRequest() *api.Request {
	h := make(api.Header)
	h.Set("Host", "example.test")
	h.Set("Connection", "Upgrade")
	h.Set("Upgrade", "websocket")
	h.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	h.Set("Sec-WebSocket-Version", "13")
	return &api.Request{Method: "GET", Path: "/chat", Proto: "HTTP/1.1", Header: h}
}

func TestUpgradeAcceptKeyVector(t *testing.T) {
	// Key/accept pair from RFC 6455 section 1.3.
	accept, err := Upgrade(upgradeRequest())
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if accept != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Errorf("accept = %q, want s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", accept)
	}
}

func TestUpgradeTokenListHeaders(t *testing.T) {
	req := upgradeRequest()
	req.Header.Set("Connection", "keep-alive, Upgrade")
	if !IsUpgradeRequest(req) {
		t.Fatal("token list Connection header not recognized")
	}
}

func TestUpgradeMissingKey(t *testing.T) {
	req := upgradeRequest()
	req.Header.Del("Sec-WebSocket-Key")
	if _, err := Upgrade(req); !errors.Is(err, ErrMissingWebSocketKey) {
		t.Fatalf("err = %v, want ErrMissingWebSocketKey", err)
	}
}

func TestUpgradeBadVersion(t *testing.T) {
	req := upgradeRequest()
	req.Header.Set("Sec-WebSocket-Version", "8")
	if _, err := Upgrade(req); !errors.Is(err, ErrBadWebSocketVersion) {
		t.Fatalf("err = %v, want ErrBadWebSocketVersion", err)
	}
}

func TestUpgradeRequiresGET(t *testing.T) {
	req := upgradeRequest()
	req.Method = "POST"
	if _, err := Upgrade(req); !errors.Is(err, ErrNotUpgrade) {
		t.Fatalf("err = %v, want ErrNotUpgrade", err)
	}
}

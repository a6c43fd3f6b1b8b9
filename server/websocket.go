// File: server/websocket.go
// Package server - the host-visible WebSocket handle.
// License: Apache-2.0
//
// The handle is the Connection's counterpart across the dispatch boundary.
// It deliberately holds no pointer to the connection: operations go through
// an id-keyed lookup table owned by the server, and the entry is removed
// when the connection closes. Send and Close on a handle whose connection is
// gone therefore observe "absent" deterministically and no-op instead of
// dangling.

package server

import (
	"github.com/eddelbuettel/httpuv/api"
	"github.com/eddelbuettel/httpuv/protocol"
)

type webSocket struct {
	srv *Server
	id  uint64
	req *api.Request

	onMessage  []func(binary bool, data []byte)
	onClose    []func()
	closeFired bool
}

var _ api.WebSocket = (*webSocket)(nil)

func newWebSocket(srv *Server, id uint64, req *api.Request) *webSocket {
	return &webSocket{srv: srv, id: id, req: req}
}

// OnMessage registers a message callback; callbacks run in registration
// order for every delivered message.
func (w *webSocket) OnMessage(cb func(binary bool, data []byte)) {
	w.onMessage = append(w.onMessage, cb)
}

// OnClose registers a close callback, fired exactly once.
func (w *webSocket) OnClose(cb func()) {
	w.onClose = append(w.onClose, cb)
}

// Send writes one message to the peer. A handle whose connection has closed
// silently ignores the call.
func (w *webSocket) Send(data []byte, binary bool) error {
	c := w.srv.lookupWS(w.id)
	if c == nil {
		return nil
	}
	opcode := byte(protocol.OpcodeText)
	if binary {
		opcode = protocol.OpcodeBinary
	}
	return c.sendFrame(opcode, data)
}

// Close initiates the closing handshake; a no-op once the connection is
// gone.
func (w *webSocket) Close() error {
	c := w.srv.lookupWS(w.id)
	if c == nil {
		return nil
	}
	c.startClose(protocol.CloseNormalClosure, "")
	return nil
}

// Request returns the upgrade request.
func (w *webSocket) Request() *api.Request { return w.req }

func (w *webSocket) messageCallbacks() []func(bool, []byte) { return w.onMessage }

func (w *webSocket) closeCallbacks() []func() {
	if w.closeFired {
		return nil
	}
	w.closeFired = true
	return w.onClose
}

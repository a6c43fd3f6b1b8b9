// File: api/app.go
// Package api defines the contracts shared between the engine and host code.
// License: Apache-2.0
//
// App is the dispatch-boundary contract: the engine turns socket bytes into
// Request values and WebSocket events, hands them to the App, and writes
// whatever comes back. The engine never calls host code anywhere else.

package api

// App is the host-supplied application object. Both methods run on the
// goroutine that services the event loop; they must not block indefinitely.
//
// Call receives one fully assembled HTTP request and returns the response to
// serialize. Returning nil is treated as an application failure and produces
// a 500 response.
//
// OnWSOpen is invoked once per successful WebSocket upgrade with the handle
// for the new connection. Message and close callbacks are registered on the
// handle itself, not implemented by the App.
type App interface {
	Call(req *Request) *Response
	OnWSOpen(ws WebSocket)
}

// WebSocket is the host-visible handle for one upgraded connection. The
// handle holds a weak reference: it never keeps the underlying connection
// alive, and once the connection is gone Send and Close become silent no-ops.
type WebSocket interface {
	// OnMessage registers a callback fired for every complete message, in
	// arrival order. binary reports whether the message arrived in a binary
	// frame; data is valid only for the duration of the call.
	OnMessage(cb func(binary bool, data []byte))

	// OnClose registers a callback fired exactly once when the connection
	// closes, regardless of which side initiated it.
	OnClose(cb func())

	// Send writes one message. binary selects a binary frame, otherwise the
	// payload is sent as a UTF-8 text frame. Sending on a closed connection
	// is a no-op.
	Send(data []byte, binary bool) error

	// Close initiates the closing handshake. Closing an already closed
	// connection is a no-op.
	Close() error

	// Request returns the HTTP request that initiated the upgrade.
	Request() *Request
}

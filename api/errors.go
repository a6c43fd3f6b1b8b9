// File: api/errors.go
// Package api defines the contracts shared between the engine and host code.
// License: Apache-2.0
//
// Common error values used across the library.

package api

import "errors"

// Sentinel errors. Call sites wrap these with fmt.Errorf("...: %w", err)
// so callers can classify failures with errors.Is.
var (
	// ErrBind is returned by server start when the listening socket cannot
	// be created, bound, or put into the listening state (port in use,
	// insufficient privilege, bad address).
	ErrBind = errors.New("bind failed")

	// ErrServerStopped is returned by operations on a server whose Stop has
	// already completed. Double-stop is a safe no-op reporting this value.
	ErrServerStopped = errors.New("server stopped")

	// ErrConnectionClosed is returned when an operation is attempted on a
	// connection that has already been torn down.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrProtocol marks malformed HTTP or WebSocket traffic. It is fatal to
	// the offending connection only.
	ErrProtocol = errors.New("protocol error")

	// ErrMessageTooBig marks a frame or reassembled message exceeding the
	// configured limits.
	ErrMessageTooBig = errors.New("message too big")

	// ErrNilApp is returned by server start when no application object is
	// supplied.
	ErrNilApp = errors.New("nil app")
)

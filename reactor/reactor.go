// File: reactor/reactor.go
// Package reactor provides the poll-mode event demultiplexer underneath the
// server: file descriptors are registered with a readiness interest and a
// callback, and Wait dispatches callbacks for every descriptor that became
// ready within one bounded polling cycle.
// License: Apache-2.0

package reactor

// Event is a bitmask of readiness conditions.
type Event uint32

const (
	// Readable indicates the descriptor has bytes to read or a pending
	// accept.
	Readable Event = 1 << iota
	// Writable indicates the descriptor can accept writes without blocking.
	Writable
	// Closed indicates an error or hangup condition on the descriptor.
	Closed
)

// Callback is invoked by Wait for each ready descriptor. Callbacks run on
// the goroutine calling Wait; they may Add, Modify, or Remove descriptors,
// including the one being dispatched.
type Callback func(fd int, ev Event)

// File: server/config.go
// Package server implements the connection and protocol engine: the listening
// socket, the host-pumped event loop, per-connection HTTP and WebSocket state
// machines, and the dispatch boundary into host application logic.
// License: Apache-2.0

package server

import "log"

// Config holds all engine tuning parameters.
type Config struct {
	IOBufferSize    int   // size of pooled socket/file read buffers
	Backlog         int   // listen(2) backlog
	MaxHeaderBytes  int   // request header section limit, answered with 431
	MaxBodyBytes    int64 // request body limit, answered with 413
	MaxFramePayload int64 // single WebSocket frame payload limit
	MaxMessageSize  int64 // reassembled WebSocket message limit, closed with 1009
	WriteHighWater  int   // queued outbound bytes above which reads pause
	WriteLowWater   int   // queued outbound bytes below which reads resume
	Logger          *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		IOBufferSize:    64 * 1024,
		Backlog:         128,
		MaxHeaderBytes:  8 * 1024,
		MaxBodyBytes:    32 << 20,
		MaxFramePayload: 1 << 20,
		MaxMessageSize:  4 << 20,
		WriteHighWater:  256 * 1024,
		WriteLowWater:   64 * 1024,
		Logger:          log.Default(),
	}
}

// Option customizes server initialization.
type Option func(*Config)

// WithLogger routes engine diagnostics to l.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithBacklog overrides the listen backlog.
func WithBacklog(n int) Option {
	return func(c *Config) { c.Backlog = n }
}

// WithIOBufferSize sets the pooled read buffer size.
func WithIOBufferSize(n int) Option {
	return func(c *Config) { c.IOBufferSize = n }
}

// WithBodyLimit caps the buffered request body size.
func WithBodyLimit(n int64) Option {
	return func(c *Config) { c.MaxBodyBytes = n }
}

// WithMessageLimit caps reassembled WebSocket message size.
func WithMessageLimit(n int64) Option {
	return func(c *Config) { c.MaxMessageSize = n }
}

// WithWriteWatermarks sets the backpressure thresholds: reads on a
// connection pause when its queued outbound bytes exceed high and resume
// once they drain below low.
func WithWriteWatermarks(high, low int) Option {
	return func(c *Config) {
		c.WriteHighWater = high
		c.WriteLowWater = low
	}
}

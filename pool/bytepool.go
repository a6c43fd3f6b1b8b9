// File: pool/bytepool.go
// Package pool provides the byte buffer primitive used for socket reads and
// streamed response bodies.
// License: Apache-2.0

package pool

import "sync"

// Buffer is a fixed-size byte buffer on loan from a BytePool. It has no
// protocol knowledge; the engine fills it from a socket or a file and
// releases it when the bytes have been copied out or written.
type Buffer struct {
	b    []byte
	pool *BytePool
}

// Bytes returns the full backing slice.
func (b *Buffer) Bytes() []byte { return b.b }

// Release returns the buffer to its pool. The caller must not touch the
// slice afterwards.
func (b *Buffer) Release() {
	if b.pool != nil {
		b.pool.put(b)
	}
}

// BytePool hands out fixed-size Buffers backed by a sync.Pool.
type BytePool struct {
	size int
	p    sync.Pool
}

// NewBytePool creates a pool of buffers of the given size.
func NewBytePool(size int) *BytePool {
	bp := &BytePool{size: size}
	bp.p.New = func() any {
		return &Buffer{b: make([]byte, size), pool: bp}
	}
	return bp
}

// Get returns a buffer of the pool's fixed size.
func (p *BytePool) Get() *Buffer {
	return p.p.Get().(*Buffer)
}

// Size returns the fixed buffer size for this pool.
func (p *BytePool) Size() int { return p.size }

func (p *BytePool) put(b *Buffer) {
	p.p.Put(b)
}

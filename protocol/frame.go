// File: protocol/frame.go
// Package protocol implements the WebSocket wire protocol.
// License: Apache-2.0
//
// Frame type and encoder. Server-to-client frames are never masked; the
// masked encoding path exists for test clients exercising the server.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
)

// Frame is one decoded WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  byte
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// EncodeFrame serializes one frame. When mask is set a fresh masking key is
// generated and applied, as a client would; servers must encode with
// mask=false.
func EncodeFrame(opcode byte, fin bool, payload []byte, mask bool) []byte {
	b0 := opcode & 0x0F
	if fin {
		b0 |= FinBit
	}

	var maskBit byte
	if mask {
		maskBit = MaskBit
	}

	plen := len(payload)
	var hdr []byte
	switch {
	case plen <= 125:
		hdr = []byte{b0, byte(plen) | maskBit}
	case plen <= 0xFFFF:
		hdr = make([]byte, 4)
		hdr[0] = b0
		hdr[1] = 126 | maskBit
		binary.BigEndian.PutUint16(hdr[2:], uint16(plen))
	default:
		hdr = make([]byte, 10)
		hdr[0] = b0
		hdr[1] = 127 | maskBit
		binary.BigEndian.PutUint64(hdr[2:], uint64(plen))
	}

	if !mask {
		buf := make([]byte, len(hdr)+plen)
		copy(buf, hdr)
		copy(buf[len(hdr):], payload)
		return buf
	}

	var key [4]byte
	rand.Read(key[:])
	buf := make([]byte, len(hdr)+4+plen)
	copy(buf, hdr)
	copy(buf[len(hdr):], key[:])
	out := buf[len(hdr)+4:]
	for i, b := range payload {
		out[i] = b ^ key[i%4]
	}
	return buf
}

// ClosePayload builds the payload of a close frame: a two-byte big-endian
// status code followed by an optional UTF-8 reason.
func ClosePayload(code int, reason string) []byte {
	p := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(p, uint16(code))
	copy(p[2:], reason)
	return p
}

// ParseClosePayload extracts the status code and reason from a close frame
// payload. An empty payload maps to CloseNoStatusRcvd.
func ParseClosePayload(p []byte) (code int, reason string) {
	if len(p) < 2 {
		return CloseNoStatusRcvd, ""
	}
	return int(binary.BigEndian.Uint16(p)), string(p[2:])
}

func maskInPlace(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}

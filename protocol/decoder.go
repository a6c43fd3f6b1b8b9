// File: protocol/decoder.go
// Package protocol implements the WebSocket wire protocol.
// License: Apache-2.0
//
// Incremental frame decoder. The connection accumulates unparsed socket
// bytes and offers them to Decode after every read; the decoder consumes
// exactly one frame per call, so the result is independent of how the bytes
// were split across reads.

package protocol

import (
	"fmt"

	"github.com/eddelbuettel/httpuv/api"
)

// DefaultMaxPayload bounds single-frame payloads for decoders configured
// without an explicit limit, so a hostile 64-bit length field cannot force a
// huge allocation before any payload byte has arrived.
const DefaultMaxPayload = 64 << 20

// Decoder decodes frames from an accumulated byte buffer.
type Decoder struct {
	// MaxPayload bounds the payload of a single frame. Zero applies
	// DefaultMaxPayload.
	MaxPayload int64
	// RequireMask enforces the client-to-server masking rule. Servers set
	// it; an unmasked frame then becomes a protocol error.
	RequireMask bool
}

// Decode attempts to decode one complete frame from the front of buf. It
// returns the frame and the number of bytes consumed. When buf does not yet
// hold a complete frame it returns (nil, 0, nil) and the caller retries
// after the next read. Frame payloads are unmasked copies; buf may be
// reused immediately.
func (d *Decoder) Decode(buf []byte) (*Frame, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}
	if buf[0]&RsvBits != 0 {
		return nil, 0, fmt.Errorf("%w: reserved frame bits set", api.ErrProtocol)
	}

	fin := buf[0]&FinBit != 0
	opcode := buf[0] & 0x0F
	masked := buf[1]&MaskBit != 0
	length := int64(buf[1] & 0x7F)
	offset := 2

	if !IsControl(opcode) && !IsData(opcode) {
		return nil, 0, fmt.Errorf("%w: unknown opcode 0x%x", api.ErrProtocol, opcode)
	}
	if IsControl(opcode) {
		if !fin {
			return nil, 0, fmt.Errorf("%w: fragmented control frame", api.ErrProtocol)
		}
		if length > MaxControlPayloadLen {
			return nil, 0, fmt.Errorf("%w: control frame payload exceeds 125 bytes", api.ErrProtocol)
		}
	}
	if d.RequireMask && !masked {
		return nil, 0, fmt.Errorf("%w: unmasked client frame", api.ErrProtocol)
	}

	switch length {
	case 126:
		if len(buf) < offset+2 {
			return nil, 0, nil
		}
		length = int64(buf[offset])<<8 | int64(buf[offset+1])
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return nil, 0, nil
		}
		length = 0
		for i := 0; i < 8; i++ {
			length = length<<8 | int64(buf[offset+i])
		}
		if length < 0 {
			return nil, 0, fmt.Errorf("%w: negative payload length", api.ErrProtocol)
		}
		offset += 8
	}

	limit := d.MaxPayload
	if limit <= 0 {
		limit = DefaultMaxPayload
	}
	if length > limit {
		return nil, 0, fmt.Errorf("%w: frame payload of %d bytes", api.ErrMessageTooBig, length)
	}

	var key [4]byte
	if masked {
		if len(buf) < offset+4 {
			return nil, 0, nil
		}
		copy(key[:], buf[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, buf[offset:total])
	if masked {
		maskInPlace(payload, key)
	}

	return &Frame{
		Fin:     fin,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: key,
		Payload: payload,
	}, total, nil
}

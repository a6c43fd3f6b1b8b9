// File: protocol/constants.go
// Package protocol implements the WebSocket wire protocol: frame codec,
// fragmentation rules, and the RFC 6455 opening handshake.
// License: Apache-2.0

package protocol

const (
	// Opcodes.
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA

	// Frame limits.
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // 2 base + 8 extended length + 4 mask key

	// Bit masks for the first two header bytes.
	FinBit  = 0x80
	RsvBits = 0x70
	MaskBit = 0x80

	// Close codes.
	CloseNormalClosure      = 1000
	CloseGoingAway          = 1001
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	CloseNoStatusRcvd       = 1005
	CloseAbnormalClosure    = 1006
	CloseInvalidPayloadData = 1007
	ClosePolicyViolation    = 1008
	CloseMessageTooBig      = 1009
	CloseInternalServerErr  = 1011
)

// IsControl reports whether opcode is a control opcode.
func IsControl(opcode byte) bool { return opcode&0x8 != 0 }

// IsData reports whether opcode starts or continues a data message.
func IsData(opcode byte) bool {
	return opcode == OpcodeText || opcode == OpcodeBinary || opcode == OpcodeContinuation
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hostlink implements the serial protocol between the converter's
// comm core and a host tool.
//
// A packet is framed by START and END bytes. Everything in between is byte
// stuffed: a length byte, the 8-byte device address (little-endian), a CBOR
// message [type, payload map] and a big-endian CRC-16-CCITT over the length,
// address and CBOR bytes.
//
// The same framing runs over a serial port or over WebSocket binary messages.
package hostlink

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	MaxPacketSize  = 128 // 14 overhead + 114 payload
	MaxPayloadSize = 114
	AddressSize    = 8
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Special addresses
const (
	AddressBroadcast = 0x0000000000000000
	AddressStateless = 0xFFFFFFFFFFFFFFFF
)

// Message types - Requests (Host → Device) 0x10-0x2F
const (
	MsgSdoRequest      = 0x10
	MsgTelemetryConfig = 0x16
	MsgPingRequest     = 0x2F
)

// Message types - Device data (Device → Host) 0x30-0x3F
const (
	MsgSdoResponse  = 0x30
	MsgTelemetry    = 0x31
	MsgCellData     = 0x32
	MsgFaultReport  = 0x33
	MsgLinkStats    = 0x34
	MsgPingResponse = 0x3F
)

// Message types - Errors (Device → Host) 0xE0-0xEF
const (
	MsgErrorInvalidCmd = 0xE0
	MsgErrorBusy       = 0xE1 // SDO request dropped, previous one still pending
)

// Decoder states
const (
	stateIdle = iota
	stateLength
	stateAddress
	statePayload
	stateCRC1
	stateCRC2
	stateEnd // CRC complete, waiting for END
)

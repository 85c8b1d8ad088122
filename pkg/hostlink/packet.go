// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import "time"

// Packet is a decoded host-link packet.
type Packet struct {
	length      uint8
	address     uint64
	cborPayload []byte // [msg_type, payload_map]
	crc         uint16
	timestamp   time.Time

	// Parsed lazily from cborPayload
	msgType    uint8
	payloadMap map[int]any
	parsed     bool
	parseErr   error
}

// NewPacket creates a packet from a message type and payload map. The CBOR
// encoding and CRC are computed when it is encoded.
func NewPacket(address uint64, msgType uint8, payload map[int]any) *Packet {
	return &Packet{
		address:    address,
		msgType:    msgType,
		payloadMap: payload,
		parsed:     true,
		timestamp:  time.Now(),
	}
}

func (p *Packet) ensureParsed() {
	if p.parsed {
		return
	}
	p.parsed = true
	if len(p.cborPayload) == 0 {
		return
	}
	p.msgType, p.payloadMap, p.parseErr = ParseCBORMessage(p.cborPayload)
}

// Length returns the CBOR payload length of a decoded packet.
func (p *Packet) Length() uint8 {
	return p.length
}

// Address returns the 64-bit device address.
func (p *Packet) Address() uint64 {
	return p.address
}

// Type returns the message type.
func (p *Packet) Type() uint8 {
	p.ensureParsed()
	return p.msgType
}

// Payload returns the raw CBOR bytes of a decoded packet.
func (p *Packet) Payload() []byte {
	return p.cborPayload
}

// PayloadMap returns the decoded payload map (nil for empty payloads).
func (p *Packet) PayloadMap() map[int]any {
	p.ensureParsed()
	return p.payloadMap
}

// ParseError returns any error from parsing the CBOR payload.
func (p *Packet) ParseError() error {
	p.ensureParsed()
	return p.parseErr
}

// CRC returns the received CRC.
func (p *Packet) CRC() uint16 {
	return p.crc
}

// Timestamp returns when the packet was decoded or built.
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// IsBroadcast returns true if the packet is addressed to all devices.
func (p *Packet) IsBroadcast() bool {
	return p.address == AddressBroadcast
}

// IsStateless returns true if the packet uses the stateless address.
func (p *Packet) IsStateless() bool {
	return p.address == AddressStateless
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"encoding/binary"
	"fmt"
)

// Encode builds a complete wire-formatted packet: framing, byte stuffing and
// CRC included.
func Encode(address uint64, msgType uint8, payloadMap map[int]any) ([]byte, error) {
	cborPayload, err := encodeCBORPayload(msgType, payloadMap)
	if err != nil {
		return nil, fmt.Errorf("hostlink: encode CBOR payload: %w", err)
	}
	if len(cborPayload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: CBOR payload %d bytes (max %d)", ErrTooLarge, len(cborPayload), MaxPayloadSize)
	}

	// length + address + CBOR payload, covered by the CRC
	data := make([]byte, 1+AddressSize+len(cborPayload), 1+AddressSize+len(cborPayload)+2)
	data[0] = uint8(len(cborPayload))
	binary.LittleEndian.PutUint64(data[1:9], address)
	copy(data[9:], cborPayload)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)
	packet := make([]byte, 0, len(stuffed)+2)
	packet = append(packet, StartByte)
	packet = append(packet, stuffed...)
	packet = append(packet, EndByte)
	return packet, nil
}

// EncodePacket encodes a Packet to wire format.
func EncodePacket(p *Packet) ([]byte, error) {
	return Encode(p.Address(), p.Type(), p.PayloadMap())
}

// MustEncode is EncodePacket for packets built by this package's
// constructors, whose payloads always fit. It panics on error.
func MustEncode(p *Packet) []byte {
	data, err := EncodePacket(p)
	if err != nil {
		panic(err)
	}
	return data
}

// stuffBytes replaces START, END and ESC with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		switch {
		case escapeNext:
			result = append(result, b^EscXor)
			escapeNext = false
		case b == EscByte:
			escapeNext = true
		default:
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("%w: incomplete escape sequence at end of data", ErrMalformed)
	}
	return result, nil
}

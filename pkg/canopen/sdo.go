// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canopen

import (
	"encoding/binary"
	"fmt"
)

// Command specifiers (bits 5-7 of byte 0)
const (
	RequestWrite  uint8 = 1
	RequestRead   uint8 = 2
	ResponseRead  uint8 = 2
	ResponseWrite uint8 = 3
)

// SDO byte 0 layout
const (
	sizeIndicatedBit = 1 << 0
	expeditedBit     = 1 << 1
	emptyShift       = 2
	emptyMask        = 0x3
	commandShift     = 5
	commandMask      = 0x7
)

// Packet is one 8-byte SDO frame.
type Packet [8]byte

// Message is a decoded SDO frame.
//
//	byte 0     bit 0 size indicated, bit 1 expedited, bits 2-3 empty bytes,
//	           bit 4 reserved, bits 5-7 command specifier
//	bytes 1-2  index, little-endian
//	byte 3     subindex
//	bytes 4-7  data
type Message struct {
	Command       uint8
	Expedited     bool
	SizeIndicated bool
	Empty         uint8 // bytes of Data not in use
	Index         uint16
	Subindex      uint8
	Data          Data
}

// NewReadRequest builds a read request.
func NewReadRequest(index uint16, subindex uint8) Message {
	return Message{Command: RequestRead, Index: index, Subindex: subindex}
}

// NewWriteRequest builds an expedited write request for a value of type t.
func NewWriteRequest(index uint16, subindex uint8, t DataType, d Data) Message {
	return Message{
		Command:       RequestWrite,
		Expedited:     true,
		SizeIndicated: true,
		Empty:         uint8(4 - t.Size()),
		Index:         index,
		Subindex:      subindex,
		Data:          d,
	}
}

// Pack encodes the message.
func (m Message) Pack() Packet {
	var p Packet
	p[0] = (m.Command & commandMask) << commandShift
	p[0] |= (m.Empty & emptyMask) << emptyShift
	if m.Expedited {
		p[0] |= expeditedBit
	}
	if m.SizeIndicated {
		p[0] |= sizeIndicatedBit
	}
	binary.LittleEndian.PutUint16(p[1:3], m.Index)
	p[3] = m.Subindex
	copy(p[4:8], m.Data[:])
	return p
}

// Unpack decodes a frame.
func Unpack(p Packet) Message {
	m := Message{
		Command:       (p[0] >> commandShift) & commandMask,
		Expedited:     p[0]&expeditedBit != 0,
		SizeIndicated: p[0]&sizeIndicatedBit != 0,
		Empty:         (p[0] >> emptyShift) & emptyMask,
		Index:         binary.LittleEndian.Uint16(p[1:3]),
		Subindex:      p[3],
	}
	copy(m.Data[:], p[4:8])
	return m
}

func (m Message) String() string {
	return fmt.Sprintf("cs=%d idx=0x%04X.%02X data=% X", m.Command, m.Index, m.Subindex, m.Data[:])
}

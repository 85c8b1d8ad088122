// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"errors"
	"fmt"
	"time"
)

// Decode errors
var (
	ErrCRCMismatch   = errors.New("hostlink: CRC mismatch")
	ErrInvalidLength = errors.New("hostlink: invalid length")
	ErrUnexpectedEnd = errors.New("hostlink: unexpected END byte")
	ErrMalformed     = errors.New("hostlink: malformed payload")
	ErrTooLarge      = errors.New("hostlink: payload too large")
)

// Decoder is the byte-at-a-time packet decoder state machine.
type Decoder struct {
	state        int
	buffer       [MaxPacketSize]byte
	bufferIndex  int
	escapeNext   bool
	addressBytes int
	packet       *Packet
	rawBuffer    []byte // raw bytes including framing
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		rawBuffer: make([]byte, 0, MaxPacketSize*2),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.addressBytes = 0
	d.escapeNext = false
	d.packet = nil
	d.rawBuffer = d.rawBuffer[:0]
}

// RawBytes returns the raw bytes accumulated since the last START.
func (d *Decoder) RawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte feeds one byte to the decoder. It returns a packet once a
// complete, CRC-valid frame has been received and nil otherwise. Any error
// resets the decoder to idle.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	if !d.escapeNext {
		switch b {
		case StartByte:
			d.Reset()
			d.rawBuffer = append(d.rawBuffer, b)
			d.state = stateLength
			return nil, nil
		case EndByte:
			return d.finish()
		case EscByte:
			if d.state != stateIdle {
				d.escapeNext = true
			}
			return nil, nil
		}
	} else {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength:
		if b > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidLength, b, MaxPayloadSize)
		}
		d.packet = &Packet{length: b}
		d.push(b)
		d.addressBytes = 0
		d.state = stateAddress

	case stateAddress:
		d.packet.address |= uint64(b) << (d.addressBytes * 8)
		d.push(b)
		d.addressBytes++
		if d.addressBytes == AddressSize {
			if d.packet.length == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}

	case statePayload:
		d.push(b)
		if d.bufferIndex == 1+AddressSize+int(d.packet.length) {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.packet.crc = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.packet.crc |= uint16(b)
		d.state = stateEnd

	default:
		d.Reset()
		return nil, fmt.Errorf("%w: trailing byte after CRC", ErrInvalidLength)
	}
	return nil, nil
}

// push stores a byte covered by the CRC. The length byte bounds the packet, so
// the buffer cannot overflow.
func (d *Decoder) push(b byte) {
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++
}

func (d *Decoder) finish() (*Packet, error) {
	if d.state != stateEnd {
		state := d.state
		d.Reset()
		if state == stateIdle {
			return nil, nil
		}
		return nil, fmt.Errorf("%w in state %d", ErrUnexpectedEnd, state)
	}

	packet := d.packet
	if calculated := CalculateCRC(d.buffer[:d.bufferIndex]); packet.crc != calculated {
		d.Reset()
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, packet.crc)
	}

	packet.cborPayload = append([]byte(nil), d.buffer[1+AddressSize:d.bufferIndex]...)
	packet.timestamp = time.Now()
	d.Reset()
	return packet, nil
}

// Decode feeds a byte slice to the decoder and returns every complete packet.
// Decode errors are returned alongside and do not stop decoding.
func (d *Decoder) Decode(data []byte) ([]*Packet, []error) {
	var (
		packets []*Packet
		errs    []error
	)
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}

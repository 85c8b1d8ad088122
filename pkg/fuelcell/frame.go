// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fuelcell

import (
	"errors"
	"fmt"
)

// Framing-layer errors, each counted separately.
var (
	ErrStartBit    = errors.New("fuelcell: start bit not dominant")
	ErrRTRBit      = errors.New("fuelcell: remote frame")
	ErrIDEBit      = errors.New("fuelcell: extended identifier")
	ErrReservedBit = errors.New("fuelcell: reserved bit set")
	ErrCRC         = errors.New("fuelcell: CRC mismatch")
	ErrInvalidID   = errors.New("fuelcell: frame ID out of range")
)

// CRC-15-CAN
const (
	crc15Polynomial = 0x4599
	crc15Mask       = 0x7FFF
)

// Frame is one classic CAN data frame as seen above the bit-stuffing layer.
type Frame struct {
	SOF      uint8 // start of frame, 0 is dominant
	ID       uint16
	RTR      bool
	IDE      bool
	Reserved bool
	DLC      uint8
	Data     [8]byte
	CRC      uint16
}

// NewDataFrame builds a well-formed 8-byte data frame with its CRC.
func NewDataFrame(id uint16, data [8]byte) Frame {
	f := Frame{ID: id & 0x7FF, DLC: 8, Data: data}
	f.CRC = f.ComputeCRC()
	return f
}

// ComputeCRC returns the CRC-15 over SOF, identifier, control field and data.
func (f Frame) ComputeCRC() uint16 {
	var crc uint16
	feed := func(value uint32, width int) {
		for i := width - 1; i >= 0; i-- {
			bit := uint16(value>>uint(i)) & 1
			next := bit ^ (crc >> 14 & 1)
			crc = (crc << 1) & crc15Mask
			if next != 0 {
				crc ^= crc15Polynomial
			}
		}
	}

	feed(uint32(f.SOF&1), 1)
	feed(uint32(f.ID), 11)
	feed(boolBit(f.RTR), 1)
	feed(boolBit(f.IDE), 1)
	feed(boolBit(f.Reserved), 1)
	feed(uint32(f.DLC), 4)
	n := int(f.DLC)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	for _, b := range f.Data[:n] {
		feed(uint32(b), 8)
	}
	return crc
}

// Check validates the framing fields in wire order: start bit, RTR, IDE,
// reserved bit, then CRC.
func (f Frame) Check() error {
	switch {
	case f.SOF != 0:
		return ErrStartBit
	case f.RTR:
		return ErrRTRBit
	case f.IDE:
		return ErrIDEBit
	case f.Reserved:
		return ErrReservedBit
	}
	if crc := f.ComputeCRC(); crc != f.CRC {
		return fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, crc, f.CRC)
	}
	return nil
}

func (f Frame) String() string {
	return fmt.Sprintf("id=0x%03X dlc=%d data=% X crc=0x%04X", f.ID, f.DLC, f.Data[:], f.CRC)
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

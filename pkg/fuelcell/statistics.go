// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fuelcell

import (
	"errors"
	"fmt"
)

// Statistics counts link traffic and protocol errors by class.
type Statistics struct {
	RxFrames       uint64
	ValidFrames    uint64
	StartBitErrors uint64
	RTRErrors      uint64
	IDEErrors      uint64
	ReservedErrors uint64
	CRCErrors      uint64
	InvalidIDs     uint64
	RxOverruns     uint64
	TxFrames       uint64
	TxFailures     uint64
	CommandsSent   uint64
	CommandsStart  uint64
	CommandsStop   uint64
}

// Record counts one received frame and the error it produced, if any.
func (s *Statistics) Record(err error) {
	s.RxFrames++
	switch {
	case err == nil:
		s.ValidFrames++
	case errors.Is(err, ErrStartBit):
		s.StartBitErrors++
	case errors.Is(err, ErrRTRBit):
		s.RTRErrors++
	case errors.Is(err, ErrIDEBit):
		s.IDEErrors++
	case errors.Is(err, ErrReservedBit):
		s.ReservedErrors++
	case errors.Is(err, ErrCRC):
		s.CRCErrors++
	case errors.Is(err, ErrInvalidID):
		s.InvalidIDs++
	}
}

// FramingErrors returns the sum of all framing-layer error counters.
func (s *Statistics) FramingErrors() uint64 {
	return s.StartBitErrors + s.RTRErrors + s.IDEErrors + s.ReservedErrors + s.CRCErrors
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	result := "=== Fuel Cell Link ===\n"
	result += fmt.Sprintf("Rx Frames:       %8d\n", s.RxFrames)
	result += fmt.Sprintf("Valid Frames:    %8d\n", s.ValidFrames)

	if fe := s.FramingErrors(); fe > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", fe)
		if s.StartBitErrors > 0 {
			result += fmt.Sprintf("  Start Bit:        %5d\n", s.StartBitErrors)
		}
		if s.RTRErrors > 0 {
			result += fmt.Sprintf("  RTR Bit:          %5d\n", s.RTRErrors)
		}
		if s.IDEErrors > 0 {
			result += fmt.Sprintf("  IDE Bit:          %5d\n", s.IDEErrors)
		}
		if s.ReservedErrors > 0 {
			result += fmt.Sprintf("  Reserved Bit:     %5d\n", s.ReservedErrors)
		}
		if s.CRCErrors > 0 {
			result += fmt.Sprintf("  CRC:              %5d\n", s.CRCErrors)
		}
	}
	if s.InvalidIDs > 0 {
		result += fmt.Sprintf("Invalid IDs:     %8d\n", s.InvalidIDs)
	}
	if s.RxOverruns > 0 {
		result += fmt.Sprintf("Rx Overruns:     %8d\n", s.RxOverruns)
	}

	result += fmt.Sprintf("Tx Frames:       %8d\n", s.TxFrames)
	if s.TxFailures > 0 {
		result += fmt.Sprintf("Tx Failures:     %8d\n", s.TxFailures)
	}
	result += fmt.Sprintf("Commands:        %8d (start %d, stop %d)\n", s.CommandsSent, s.CommandsStart, s.CommandsStop)
	result += "======================\n"

	return result
}

// Reset resets all counters
func (s *Statistics) Reset() {
	*s = Statistics{}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fuelcell implements the process-data link to the remote fuel-cell
// stack controller.
//
// The converter transmits one TPDO every TPDOPeriod carrying a start/stop
// command and its measured input voltage and current. Each fuel cell answers
// with one RPDO on frame ID BaseID+cellIndex carrying temperature, voltages,
// current and a status bitfield.
//
// The comm core owns the Link (transport, framing checks, cell table). The
// control core talks to it through a Controller, which only sees IPC signals
// and cell-table snapshots.
package fuelcell

// Frame identifiers
const (
	DefaultBaseID = 0x180 // RPDO of cell 0
	DefaultTPDOID = 0x200
	MaxCells      = 8
)

// Command is the TPDO command byte.
type Command uint8

// TPDO commands
const (
	CmdIdle  Command = 0x00
	CmdStart Command = 0x96
	CmdStop  Command = 0x69
)

func (c Command) String() string {
	switch c {
	case CmdIdle:
		return "IDLE"
	case CmdStart:
		return "START"
	case CmdStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Status is the RPDO status bitfield.
type Status uint8

// Status bits
const (
	StatusStart      Status = 1 << 0
	StatusRun        Status = 1 << 1
	StatusOverheat   Status = 1 << 2
	StatusLowCharge  Status = 1 << 3
	StatusConnection Status = 1 << 4 // cell 0 only
	StatusPressure   Status = 1 << 5 // cell 0 only
	StatusHydro      Status = 1 << 6 // cell 0 only
)

// StatusFaultMask covers every bit that marks a cell as faulted.
const StatusFaultMask = StatusOverheat | StatusLowCharge | StatusConnection | StatusPressure | StatusHydro

// InOperation reports whether a cell is running and not faulted.
func (s Status) InOperation() bool {
	return s&StatusRun != 0 && s&StatusFaultMask == 0
}

// Physical scaling of RPDO fields
const (
	TemperatureOffset = 40  // raw - 40 = degC
	VoltageScale      = 0.1 // V per LSB
	CurrentScale      = 0.1 // A per LSB
)

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package faults holds the system-wide error and warning registry.
//
// Errors are protection-level conditions that force the converter toward
// shutdown. Warnings only block new starts. Both are bitmasks so they can be
// read over the object dictionary in a single 32-bit transfer.
package faults

import (
	"math/bits"
	"strings"
)

// Error is a bit in the system error mask.
type Error uint32

// System errors
const (
	ErrOverVoltageIn Error = 1 << iota
	ErrUnderVoltageIn
	ErrOverVoltageOut
	ErrUnderVoltageOut
	ErrOverCurrentIn
	ErrOverTemperature
	ErrConnectionLost
	ErrCanBus
	ErrFuelCellStartupFailed
	ErrFuelCellOverheat
	ErrFuelCellLowCharge
	ErrFuelCellConnection
	ErrFuelCellPressure
	ErrFuelCellHydro

	errorSentinel
)

// AllErrors is the mask of every defined error.
const AllErrors = errorSentinel - 1

// CriticalErrors are only cleared by ResetAll.
const CriticalErrors = ErrOverCurrentIn | ErrOverVoltageOut

// Warning is a bit in the system warning mask.
type Warning uint32

// System warnings
const (
	WarnBatteryCharged Warning = 1 << iota
	WarnCanBus
	WarnCanBusOverrun
	WarnSdoRequestLost
	WarnIpcOverrun

	warningSentinel
)

// AllWarnings is the mask of every defined warning.
const AllWarnings = warningSentinel - 1

var errorNames = []struct {
	bit  Error
	name string
}{
	{ErrOverVoltageIn, "OVER_VOLTAGE_IN"},
	{ErrUnderVoltageIn, "UNDER_VOLTAGE_IN"},
	{ErrOverVoltageOut, "OVER_VOLTAGE_OUT"},
	{ErrUnderVoltageOut, "UNDER_VOLTAGE_OUT"},
	{ErrOverCurrentIn, "OVER_CURRENT_IN"},
	{ErrOverTemperature, "OVER_TEMPERATURE"},
	{ErrConnectionLost, "CONNECTION_LOST"},
	{ErrCanBus, "CAN_BUS_ERROR"},
	{ErrFuelCellStartupFailed, "FUEL_CELL_STARTUP_FAILED"},
	{ErrFuelCellOverheat, "FUEL_CELL_OVERHEAT"},
	{ErrFuelCellLowCharge, "FUEL_CELL_LOW_CHARGE"},
	{ErrFuelCellConnection, "FUEL_CELL_CONNECTION"},
	{ErrFuelCellPressure, "FUEL_CELL_PRESSURE"},
	{ErrFuelCellHydro, "FUEL_CELL_HYDRO"},
}

var warningNames = []struct {
	bit  Warning
	name string
}{
	{WarnBatteryCharged, "BATTERY_CHARGED"},
	{WarnCanBus, "CAN_BUS_WARNING"},
	{WarnCanBusOverrun, "CAN_BUS_OVERRUN"},
	{WarnSdoRequestLost, "SDO_REQUEST_LOST"},
	{WarnIpcOverrun, "IPC_OVERRUN"},
}

// String returns the names of all set bits joined with '|', or "NONE".
func (e Error) String() string {
	if e == 0 {
		return "NONE"
	}
	var names []string
	for _, n := range errorNames {
		if e&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if rest := e &^ AllErrors; rest != 0 {
		names = append(names, "UNKNOWN")
	}
	return strings.Join(names, "|")
}

// Count returns the number of set error bits.
func (e Error) Count() int {
	return bits.OnesCount32(uint32(e))
}

// Critical reports whether any critical error bit is set.
func (e Error) Critical() bool {
	return e&CriticalErrors != 0
}

// String returns the names of all set bits joined with '|', or "NONE".
func (w Warning) String() string {
	if w == 0 {
		return "NONE"
	}
	var names []string
	for _, n := range warningNames {
		if w&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if rest := w &^ AllWarnings; rest != 0 {
		names = append(names, "UNKNOWN")
	}
	return strings.Join(names, "|")
}

// Count returns the number of set warning bits.
func (w Warning) Count() int {
	return bits.OnesCount32(uint32(w))
}

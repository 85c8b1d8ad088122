// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fuelcell

import (
	"encoding/binary"
	"math"
)

// TPDO is the converter-to-fuel-cell process data object.
//
//	byte 0     command
//	bytes 1-2  voltage, V, uint16 little-endian
//	bytes 3-4  current, A, uint16 little-endian
//	bytes 5-7  reserved, zero
type TPDO struct {
	Command Command
	Voltage uint16
	Current uint16
}

// NewTPDO builds a TPDO from physical values, clamping them to [0, 65535].
func NewTPDO(cmd Command, voltage, current float64) TPDO {
	return TPDO{
		Command: cmd,
		Voltage: clampUint16(voltage),
		Current: clampUint16(current),
	}
}

// Pack encodes the TPDO into its 8-byte wire form.
func (t TPDO) Pack() [8]byte {
	var b [8]byte
	b[0] = byte(t.Command)
	binary.LittleEndian.PutUint16(b[1:3], t.Voltage)
	binary.LittleEndian.PutUint16(b[3:5], t.Current)
	return b
}

// UnpackTPDO decodes an 8-byte TPDO.
func UnpackTPDO(b [8]byte) TPDO {
	return TPDO{
		Command: Command(b[0]),
		Voltage: binary.LittleEndian.Uint16(b[1:3]),
		Current: binary.LittleEndian.Uint16(b[3:5]),
	}
}

// RPDO is the fuel-cell-to-converter process data object.
//
//	byte 0     temperature, raw, degC = raw - TemperatureOffset
//	bytes 1-2  cell voltage, 0.1 V, uint16 little-endian
//	bytes 3-4  battery voltage, 0.1 V, uint16 little-endian
//	byte 5     status bitfield
//	bytes 6-7  current, 0.1 A, uint16 little-endian
type RPDO struct {
	Temperature    uint8
	CellVoltage    uint16
	BatteryVoltage uint16
	Status         Status
	Current        uint16
}

// Pack encodes the RPDO into its 8-byte wire form.
func (r RPDO) Pack() [8]byte {
	var b [8]byte
	b[0] = r.Temperature
	binary.LittleEndian.PutUint16(b[1:3], r.CellVoltage)
	binary.LittleEndian.PutUint16(b[3:5], r.BatteryVoltage)
	b[5] = byte(r.Status)
	binary.LittleEndian.PutUint16(b[6:8], r.Current)
	return b
}

// UnpackRPDO decodes an 8-byte RPDO.
func UnpackRPDO(b [8]byte) RPDO {
	return RPDO{
		Temperature:    b[0],
		CellVoltage:    binary.LittleEndian.Uint16(b[1:3]),
		BatteryVoltage: binary.LittleEndian.Uint16(b[3:5]),
		Status:         Status(b[5]),
		Current:        binary.LittleEndian.Uint16(b[6:8]),
	}
}

// TemperatureC returns the temperature in degC.
func (r RPDO) TemperatureC() float64 {
	return float64(r.Temperature) - TemperatureOffset
}

// CellVolts returns the cell voltage in V.
func (r RPDO) CellVolts() float64 {
	return float64(r.CellVoltage) * VoltageScale
}

// BatteryVolts returns the battery voltage in V.
func (r RPDO) BatteryVolts() float64 {
	return float64(r.BatteryVoltage) * VoltageScale
}

// Amps returns the current in A.
func (r RPDO) Amps() float64 {
	return float64(r.Current) * CurrentScale
}

// EncodeRPDO builds an RPDO from physical values.
func EncodeRPDO(temperatureC, cellV, batteryV, currentA float64, status Status) RPDO {
	t := math.Round(temperatureC + TemperatureOffset)
	if t < 0 {
		t = 0
	} else if t > math.MaxUint8 {
		t = math.MaxUint8
	}
	return RPDO{
		Temperature:    uint8(t),
		CellVoltage:    clampUint16(cellV / VoltageScale),
		BatteryVoltage: clampUint16(batteryV / VoltageScale),
		Status:         status,
		Current:        clampUint16(currentA / CurrentScale),
	}
}

func clampUint16(v float64) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(math.Round(v))
	}
}

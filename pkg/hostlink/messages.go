// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"fmt"

	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/converter"
	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
)

// MaxFaultText is the longest fault message text carried in a FAULT_REPORT.
const MaxFaultText = 64

// Telemetry is the converter snapshot streamed to the host.
type Telemetry struct {
	Uptime         uint32 // ms
	State          converter.State
	StateTime      uint32 // ms since the last transition
	VoltageIn      float64
	VoltageOut     float64
	CurrentIn      float64
	Temperature    float64
	DutyCycle      float64
	CurrentInRef   float64
	CurrentInLimit float64
	Errors         faults.Error
	Warnings       faults.Warning
}

// FaultReport carries the fault masks and one queued fault message.
type FaultReport struct {
	Errors   faults.Error
	Warnings faults.Warning
	Time     uint32
	Text     string
}

// LinkStats is the fuel-cell link counter summary.
type LinkStats struct {
	RxFrames      uint64
	ValidFrames   uint64
	FramingErrors uint64
	InvalidIDs    uint64
	RxOverruns    uint64
	TxFrames      uint64
	TxFailures    uint64
	CommandsSent  uint64
}

// NewLinkStats summarizes fuel-cell link statistics.
func NewLinkStats(s fuelcell.Statistics) LinkStats {
	return LinkStats{
		RxFrames:      s.RxFrames,
		ValidFrames:   s.ValidFrames,
		FramingErrors: s.FramingErrors(),
		InvalidIDs:    s.InvalidIDs,
		RxOverruns:    s.RxOverruns,
		TxFrames:      s.TxFrames,
		TxFailures:    s.TxFailures,
		CommandsSent:  s.CommandsSent,
	}
}

// Payload keys
const (
	keySdoFrame = 0

	keyTelemetryEnabled  = 0
	keyTelemetryInterval = 1

	keyUptime = 0

	keyTmState          = 1
	keyTmStateTime      = 2
	keyTmVoltageIn      = 3
	keyTmVoltageOut     = 4
	keyTmCurrentIn      = 5
	keyTmTemperature    = 6
	keyTmDutyCycle      = 7
	keyTmCurrentInRef   = 8
	keyTmCurrentInLimit = 9
	keyTmErrors         = 10
	keyTmWarnings       = 11

	keyCellIndex   = 0
	keyCellValid   = 1
	keyCellTemp    = 2
	keyCellVoltage = 3
	keyCellBattery = 4
	keyCellCurrent = 5
	keyCellStatus  = 6
	keyCellUpdated = 7

	keyFaultErrors   = 0
	keyFaultWarnings = 1
	keyFaultTime     = 2
	keyFaultText     = 3

	keyErrorType = 0
)

// Command builder functions create Packet structs ready for encoding.

// NewSdoRequest creates an SDO_REQUEST packet (0x10) carrying one 8-byte SDO
// frame.
func NewSdoRequest(address uint64, frame canopen.Packet) *Packet {
	return NewPacket(address, MsgSdoRequest, map[int]any{keySdoFrame: frame[:]})
}

// NewSdoResponse creates an SDO_RESPONSE packet (0x30).
func NewSdoResponse(address uint64, frame canopen.Packet) *Packet {
	return NewPacket(address, MsgSdoResponse, map[int]any{keySdoFrame: frame[:]})
}

// SdoFrame extracts the SDO frame of an SDO_REQUEST or SDO_RESPONSE.
func SdoFrame(p *Packet) (canopen.Packet, error) {
	var frame canopen.Packet
	if p.Type() != MsgSdoRequest && p.Type() != MsgSdoResponse {
		return frame, fmt.Errorf("%w: %s is not an SDO packet", ErrMalformed, FormatMessageType(p.Type()))
	}
	b, ok := GetMapBytes(p.PayloadMap(), keySdoFrame)
	if !ok || len(b) != len(frame) {
		return frame, fmt.Errorf("%w: SDO frame must be %d bytes", ErrMalformed, len(frame))
	}
	copy(frame[:], b)
	return frame, nil
}

// NewTelemetryConfig creates a TELEMETRY_CONFIG packet (0x16).
// An interval of 0 keeps the device default.
func NewTelemetryConfig(address uint64, enabled bool, intervalMs uint32) *Packet {
	return NewPacket(address, MsgTelemetryConfig, map[int]any{
		keyTelemetryEnabled:  enabled,
		keyTelemetryInterval: uint64(intervalMs),
	})
}

// DecodeTelemetryConfig reads a TELEMETRY_CONFIG payload.
func DecodeTelemetryConfig(p *Packet) (enabled bool, intervalMs uint32, err error) {
	m := p.PayloadMap()
	enabled, ok := GetMapBool(m, keyTelemetryEnabled)
	if !ok {
		return false, 0, fmt.Errorf("%w: TELEMETRY_CONFIG without enabled flag", ErrMalformed)
	}
	interval, _ := GetMapUint(m, keyTelemetryInterval)
	return enabled, uint32(interval), nil
}

// NewPingRequest creates a PING_REQUEST packet (0x2F).
func NewPingRequest(address uint64) *Packet {
	return NewPacket(address, MsgPingRequest, nil)
}

// NewPingResponse creates a PING_RESPONSE packet (0x3F) carrying the uptime.
func NewPingResponse(address uint64, uptimeMs uint32) *Packet {
	return NewPacket(address, MsgPingResponse, map[int]any{keyUptime: uint64(uptimeMs)})
}

// NewTelemetryPacket creates a TELEMETRY packet (0x31). Analog values are sent
// as float32 to fit the payload limit.
func NewTelemetryPacket(address uint64, t Telemetry) *Packet {
	return NewPacket(address, MsgTelemetry, map[int]any{
		keyUptime:           uint64(t.Uptime),
		keyTmState:          uint64(t.State),
		keyTmStateTime:      uint64(t.StateTime),
		keyTmVoltageIn:      float32(t.VoltageIn),
		keyTmVoltageOut:     float32(t.VoltageOut),
		keyTmCurrentIn:      float32(t.CurrentIn),
		keyTmTemperature:    float32(t.Temperature),
		keyTmDutyCycle:      float32(t.DutyCycle),
		keyTmCurrentInRef:   float32(t.CurrentInRef),
		keyTmCurrentInLimit: float32(t.CurrentInLimit),
		keyTmErrors:         uint64(t.Errors),
		keyTmWarnings:       uint64(t.Warnings),
	})
}

// DecodeTelemetry reads a TELEMETRY payload.
func DecodeTelemetry(p *Packet) (Telemetry, error) {
	m := p.PayloadMap()
	state, ok := GetMapUint(m, keyTmState)
	if !ok {
		return Telemetry{}, fmt.Errorf("%w: TELEMETRY without state", ErrMalformed)
	}

	var t Telemetry
	uptime, _ := GetMapUint(m, keyUptime)
	stateTime, _ := GetMapUint(m, keyTmStateTime)
	errs, _ := GetMapUint(m, keyTmErrors)
	warns, _ := GetMapUint(m, keyTmWarnings)
	t.Uptime = uint32(uptime)
	t.State = converter.State(state)
	t.StateTime = uint32(stateTime)
	t.Errors = faults.Error(errs)
	t.Warnings = faults.Warning(warns)
	t.VoltageIn, _ = GetMapFloat(m, keyTmVoltageIn)
	t.VoltageOut, _ = GetMapFloat(m, keyTmVoltageOut)
	t.CurrentIn, _ = GetMapFloat(m, keyTmCurrentIn)
	t.Temperature, _ = GetMapFloat(m, keyTmTemperature)
	t.DutyCycle, _ = GetMapFloat(m, keyTmDutyCycle)
	t.CurrentInRef, _ = GetMapFloat(m, keyTmCurrentInRef)
	t.CurrentInLimit, _ = GetMapFloat(m, keyTmCurrentInLimit)
	return t, nil
}

// NewCellData creates a CELL_DATA packet (0x32) for one fuel cell.
func NewCellData(address uint64, index int, c fuelcell.Cell) *Packet {
	return NewPacket(address, MsgCellData, map[int]any{
		keyCellIndex:   uint64(index),
		keyCellValid:   c.Valid,
		keyCellTemp:    float32(c.Temperature),
		keyCellVoltage: float32(c.CellVoltage),
		keyCellBattery: float32(c.BatteryVoltage),
		keyCellCurrent: float32(c.Current),
		keyCellStatus:  uint64(c.Status),
		keyCellUpdated: uint64(c.Updated),
	})
}

// DecodeCellData reads a CELL_DATA payload.
func DecodeCellData(p *Packet) (int, fuelcell.Cell, error) {
	m := p.PayloadMap()
	index, ok := GetMapUint(m, keyCellIndex)
	if !ok || index >= fuelcell.MaxCells {
		return 0, fuelcell.Cell{}, fmt.Errorf("%w: CELL_DATA cell index missing or out of range", ErrMalformed)
	}

	var c fuelcell.Cell
	c.Valid, _ = GetMapBool(m, keyCellValid)
	c.Temperature, _ = GetMapFloat(m, keyCellTemp)
	c.CellVoltage, _ = GetMapFloat(m, keyCellVoltage)
	c.BatteryVoltage, _ = GetMapFloat(m, keyCellBattery)
	c.Current, _ = GetMapFloat(m, keyCellCurrent)
	status, _ := GetMapUint(m, keyCellStatus)
	updated, _ := GetMapUint(m, keyCellUpdated)
	c.Status = fuelcell.Status(status)
	c.Updated = uint32(updated)
	return int(index), c, nil
}

// NewFaultReport creates a FAULT_REPORT packet (0x33). Message text longer
// than MaxFaultText is cut.
func NewFaultReport(address uint64, r FaultReport) *Packet {
	text := r.Text
	if len(text) > MaxFaultText {
		text = text[:MaxFaultText]
	}
	return NewPacket(address, MsgFaultReport, map[int]any{
		keyFaultErrors:   uint64(r.Errors),
		keyFaultWarnings: uint64(r.Warnings),
		keyFaultTime:     uint64(r.Time),
		keyFaultText:     text,
	})
}

// DecodeFaultReport reads a FAULT_REPORT payload.
func DecodeFaultReport(p *Packet) (FaultReport, error) {
	m := p.PayloadMap()
	errs, ok := GetMapUint(m, keyFaultErrors)
	if !ok {
		return FaultReport{}, fmt.Errorf("%w: FAULT_REPORT without error mask", ErrMalformed)
	}
	warns, _ := GetMapUint(m, keyFaultWarnings)
	at, _ := GetMapUint(m, keyFaultTime)
	text, _ := m[keyFaultText].(string)
	return FaultReport{
		Errors:   faults.Error(errs),
		Warnings: faults.Warning(warns),
		Time:     uint32(at),
		Text:     text,
	}, nil
}

// NewLinkStatsPacket creates a LINK_STATS packet (0x34).
func NewLinkStatsPacket(address uint64, s LinkStats) *Packet {
	return NewPacket(address, MsgLinkStats, map[int]any{
		0: s.RxFrames,
		1: s.ValidFrames,
		2: s.FramingErrors,
		3: s.InvalidIDs,
		4: s.RxOverruns,
		5: s.TxFrames,
		6: s.TxFailures,
		7: s.CommandsSent,
	})
}

// DecodeLinkStats reads a LINK_STATS payload.
func DecodeLinkStats(p *Packet) (LinkStats, error) {
	m := p.PayloadMap()
	if m == nil {
		return LinkStats{}, fmt.Errorf("%w: LINK_STATS without payload", ErrMalformed)
	}
	get := func(k int) uint64 {
		v, _ := GetMapUint(m, k)
		return v
	}
	return LinkStats{
		RxFrames:      get(0),
		ValidFrames:   get(1),
		FramingErrors: get(2),
		InvalidIDs:    get(3),
		RxOverruns:    get(4),
		TxFrames:      get(5),
		TxFailures:    get(6),
		CommandsSent:  get(7),
	}, nil
}

// NewErrorInvalidCmd creates an ERROR_INVALID_CMD packet (0xE0) naming the
// rejected message type.
func NewErrorInvalidCmd(address uint64, msgType uint8) *Packet {
	return NewPacket(address, MsgErrorInvalidCmd, map[int]any{keyErrorType: uint64(msgType)})
}

// NewErrorBusy creates an ERROR_BUSY packet (0xE1) for a dropped SDO request.
func NewErrorBusy(address uint64, frame canopen.Packet) *Packet {
	return NewPacket(address, MsgErrorBusy, map[int]any{keySdoFrame: frame[:]})
}

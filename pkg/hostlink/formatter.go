// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/fuelboost/pkg/canopen"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) addr=%016X len=%d\n",
		timestamp, FormatMessageType(p.Type()), p.Type(), p.address, p.length)

	if err := p.ParseError(); err != nil {
		return result + fmt.Sprintf("  (parse error: %v)\n", err)
	}
	return result + FormatPayload(p)
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	// Requests (0x10-0x2F)
	case MsgSdoRequest:
		return "SDO_REQUEST"
	case MsgTelemetryConfig:
		return "TELEMETRY_CONFIG"
	case MsgPingRequest:
		return "PING_REQUEST"

	// Device data (0x30-0x3F)
	case MsgSdoResponse:
		return "SDO_RESPONSE"
	case MsgTelemetry:
		return "TELEMETRY"
	case MsgCellData:
		return "CELL_DATA"
	case MsgFaultReport:
		return "FAULT_REPORT"
	case MsgLinkStats:
		return "LINK_STATS"
	case MsgPingResponse:
		return "PING_RESPONSE"

	// Errors (0xE0-0xEF)
	case MsgErrorInvalidCmd:
		return "ERROR_INVALID_CMD"
	case MsgErrorBusy:
		return "ERROR_BUSY"

	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats the payload of a packet based on its message type
func FormatPayload(p *Packet) string {
	m := p.PayloadMap()

	switch p.Type() {
	case MsgPingRequest:
		return "  (no payload)\n"

	case MsgPingResponse:
		uptime, _ := GetMapUint(m, keyUptime)
		return fmt.Sprintf("  Uptime: %s\n", formatDuration(uptime))

	case MsgSdoRequest, MsgSdoResponse, MsgErrorBusy:
		b, ok := GetMapBytes(m, keySdoFrame)
		if !ok || len(b) != 8 {
			return "  (invalid SDO frame)\n"
		}
		var frame canopen.Packet
		copy(frame[:], b)
		return fmt.Sprintf("  SDO: %s\n", canopen.Unpack(frame))

	case MsgTelemetryConfig:
		enabled, interval, err := DecodeTelemetryConfig(p)
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		return fmt.Sprintf("  Enabled: %t, Interval: %d ms\n", enabled, interval)

	case MsgTelemetry:
		t, err := DecodeTelemetry(p)
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		result := fmt.Sprintf("  State: %s for %s, Uptime: %s\n", t.State, formatDuration(uint64(t.StateTime)), formatDuration(uint64(t.Uptime)))
		result += fmt.Sprintf("  Vin: %.2f V, Vout: %.2f V, Iin: %.2f A, Temp: %.1f°C\n", t.VoltageIn, t.VoltageOut, t.CurrentIn, t.Temperature)
		result += fmt.Sprintf("  Duty: %.1f%%, Iref: %.2f A, Ilimit: %.2f A\n", t.DutyCycle*100, t.CurrentInRef, t.CurrentInLimit)
		result += fmt.Sprintf("  Errors: %s, Warnings: %s\n", t.Errors, t.Warnings)
		return result

	case MsgCellData:
		index, c, err := DecodeCellData(p)
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		if !c.Valid {
			return fmt.Sprintf("  Cell %d: no data\n", index)
		}
		return fmt.Sprintf("  Cell %d: %.1f V cell, %.1f V battery, %.1f A, %.0f°C, status=0x%02X\n",
			index, c.CellVoltage, c.BatteryVoltage, c.Current, c.Temperature, uint8(c.Status))

	case MsgFaultReport:
		r, err := DecodeFaultReport(p)
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		result := fmt.Sprintf("  Errors: %s, Warnings: %s\n", r.Errors, r.Warnings)
		if r.Text != "" {
			result += fmt.Sprintf("  [%d ms] %s\n", r.Time, r.Text)
		}
		return result

	case MsgLinkStats:
		s, err := DecodeLinkStats(p)
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		return fmt.Sprintf("  Rx: %d (%d valid, %d framing, %d invalid ID, %d overrun), Tx: %d (%d failed), Commands: %d\n",
			s.RxFrames, s.ValidFrames, s.FramingErrors, s.InvalidIDs, s.RxOverruns, s.TxFrames, s.TxFailures, s.CommandsSent)

	case MsgErrorInvalidCmd:
		t, _ := GetMapUint(m, keyErrorType)
		return fmt.Sprintf("  Rejected: %s (0x%02X)\n", FormatMessageType(uint8(t)), t)

	default:
		return fmt.Sprintf("  Payload: %v\n", m)
	}
}

func formatDuration(ms uint64) string {
	seconds := ms / 1000
	if seconds == 0 {
		return fmt.Sprintf("%d ms", ms)
	}

	const (
		secondsPerMinute = 60
		secondsPerHour   = 60 * secondsPerMinute
		secondsPerDay    = 24 * secondsPerHour
	)

	units := []struct {
		name string
		n    uint64
	}{
		{"day", seconds / secondsPerDay},
		{"hour", seconds % secondsPerDay / secondsPerHour},
		{"minute", seconds % secondsPerHour / secondsPerMinute},
		{"second", seconds % secondsPerMinute},
	}

	var parts []string
	for _, u := range units {
		switch {
		case u.n == 1:
			parts = append(parts, "1 "+u.name)
		case u.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", u.n, u.name))
		}
	}

	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hostlink

import (
	"fmt"

	"github.com/Thermoquad/fuelboost/pkg/converter"
)

// AnomalyType represents different types of packet anomalies
type AnomalyType int

// Anomaly types
const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidState
	AnomalyInvalidVoltage
	AnomalyInvalidCurrent
	AnomalyInvalidTemp
	AnomalyInvalidDuty
	AnomalyInvalidValue
)

// Plausibility bounds for telemetry values
const (
	maxVoltage     = 100.0
	maxCurrent     = 100.0
	minTemperature = -50.0
	maxTemperature = 200.0
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket checks a decoded packet for implausible values. It returns
// nil if the packet looks sane.
func ValidatePacket(p *Packet) []ValidationError {
	switch p.Type() {
	case MsgTelemetry:
		return validateTelemetry(p)
	case MsgCellData:
		return validateCellData(p)
	case MsgSdoRequest, MsgSdoResponse:
		if _, err := SdoFrame(p); err != nil {
			return []ValidationError{{Type: AnomalyLengthMismatch, Message: err.Error()}}
		}
	}
	return nil
}

func validateTelemetry(p *Packet) []ValidationError {
	t, err := DecodeTelemetry(p)
	if err != nil {
		return []ValidationError{{Type: AnomalyLengthMismatch, Message: err.Error()}}
	}

	var errs []ValidationError
	if t.State > converter.StateWait {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidState,
			Message: fmt.Sprintf("Invalid state value=%d (max %d)", t.State, converter.StateWait),
		})
	}
	for _, v := range []struct {
		name  string
		value float64
	}{{"voltage_in", t.VoltageIn}, {"voltage_out", t.VoltageOut}} {
		if v.value < 0 || v.value > maxVoltage {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidVoltage,
				Message: fmt.Sprintf("%s out of range (%.1f V, valid: 0 to %.0f V)", v.name, v.value, maxVoltage),
			})
		}
	}
	if t.CurrentIn < -maxCurrent || t.CurrentIn > maxCurrent {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidCurrent,
			Message: fmt.Sprintf("current_in out of range (%.1f A)", t.CurrentIn),
		})
	}
	if t.Temperature < minTemperature || t.Temperature > maxTemperature {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidTemp,
			Message: fmt.Sprintf("Temperature out of range (%.1f°C, valid: %.0f to %.0f°C)", t.Temperature, minTemperature, maxTemperature),
		})
	}
	if t.DutyCycle < 0 || t.DutyCycle > 1 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidDuty,
			Message: fmt.Sprintf("Duty cycle out of range (%.3f, valid: 0 to 1)", t.DutyCycle),
		})
	}
	return errs
}

func validateCellData(p *Packet) []ValidationError {
	_, c, err := DecodeCellData(p)
	if err != nil {
		return []ValidationError{{Type: AnomalyInvalidValue, Message: err.Error()}}
	}

	var errs []ValidationError
	if c.Status&0x80 != 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Reserved status bit set (status=0x%02X)", uint8(c.Status)),
		})
	}
	if c.CellVoltage < 0 || c.CellVoltage > maxVoltage {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidVoltage,
			Message: fmt.Sprintf("Cell voltage out of range (%.1f V)", c.CellVoltage),
		})
	}
	if c.Temperature < minTemperature || c.Temperature > maxTemperature {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidTemp,
			Message: fmt.Sprintf("Cell temperature out of range (%.1f°C)", c.Temperature),
		})
	}
	return errs
}

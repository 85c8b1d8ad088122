// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sim simulates the hardware around the converter: the fuel-cell
// stack with its remote controller node, the boost stage, the battery and
// the board peripherals. It lets the firmware run on a desktop.
package sim

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
)

// Config describes the simulated plant and board.
type Config struct {
	SwitchingFrequency float64 // Hz, one plant step per period

	// Fuel-cell stack, one module per reporting cell
	Cells          int
	CellVoc        float64 // V open circuit
	CellResistance float64 // ohm
	CellSpread     float64 // V, Voc drop per module index
	StartupTime    float64 // s, power-up ramp
	StopTime       float64 // s, power-down ramp
	CellHeating    float64 // degC per A above ambient

	// Boost stage
	Inductance  float64 // H
	TripCurrent float64 // A, hardware comparator
	SwitchLoss  float64 // W while switching
	Conduction  float64 // ohm, for heat only

	// Battery
	BatteryVoc0       float64 // V at zero charge
	BatterySpan       float64 // V from zero to full charge
	BatteryCapacity   float64 // Ah
	BatteryResistance float64 // ohm
	InitialCharge     float64 // 0..1

	// Heatsink
	Ambient           float64 // degC
	ThermalResistance float64 // K/W
	ThermalTau        float64 // s

	// ADC
	Noise float64 // counts, peak
	Seed  uint64

	// Fuel-cell node
	BaseID     uint16
	TPDOID     uint16
	RPDOPeriod uint32 // ms
	QueueDepth int
}

// DefaultConfig returns a five-module stack charging a 48 V battery, matching
// the converter and link defaults.
func DefaultConfig() Config {
	return Config{
		SwitchingFrequency: 20000,

		Cells:          5,
		CellVoc:        7.5,
		CellResistance: 0.1,
		CellSpread:     0.02,
		StartupTime:    3,
		StopTime:       1,
		CellHeating:    1.5,

		Inductance:  100e-6,
		TripCurrent: 25,
		SwitchLoss:  3,
		Conduction:  0.02,

		BatteryVoc0:       44,
		BatterySpan:       12,
		BatteryCapacity:   2,
		BatteryResistance: 0.05,
		InitialCharge:     0.3,

		Ambient:           25,
		ThermalResistance: 1.5,
		ThermalTau:        60,

		Noise: 2,
		Seed:  1,

		BaseID:     fuelcell.DefaultBaseID,
		TPDOID:     fuelcell.DefaultTPDOID,
		RPDOPeriod: 100,
		QueueDepth: 32,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.SwitchingFrequency <= 0:
		return errors.New("sim: switching frequency must be positive")
	case c.Cells < 1 || c.Cells > fuelcell.MaxCells:
		return fmt.Errorf("sim: cell count %d out of range [1, %d]", c.Cells, fuelcell.MaxCells)
	case c.Inductance <= 0:
		return errors.New("sim: inductance must be positive")
	case c.BatteryCapacity <= 0:
		return errors.New("sim: battery capacity must be positive")
	case c.InitialCharge < 0 || c.InitialCharge > 1:
		return fmt.Errorf("sim: initial charge %.2f out of range [0, 1]", c.InitialCharge)
	case c.ThermalTau <= 0:
		return errors.New("sim: thermal time constant must be positive")
	case c.RPDOPeriod == 0:
		return errors.New("sim: RPDO period must be positive")
	case c.QueueDepth < 1:
		return errors.New("sim: queue depth must be positive")
	}
	return nil
}

// Period returns the plant step in seconds.
func (c Config) Period() float64 {
	return 1 / c.SwitchingFrequency
}

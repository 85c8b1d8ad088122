// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package converter

import (
	"fmt"

	"github.com/Thermoquad/fuelboost/pkg/control"
)

// Config holds the converter settings. Times are in ms.
type Config struct {
	SwitchingFrequency float64 // Hz, one control step per period

	// Current-reference controller: holds the weakest cell at MinCellVoltage
	// by adjusting the input current reference. Reverse acting, so its gains
	// are negative.
	CurrentRefKP   float64
	CurrentRefKI   float64
	CurrentRefKC   float64
	MinCellVoltage float64 // V

	// Duty controller: tracks the current reference.
	DutyKP  float64
	DutyKI  float64
	DutyMin float64
	DutyMax float64

	CurrentInMin float64 // A, reference floor and ramp start
	CurrentInMax float64 // A, ramp target
	RampSeconds  float64 // duration of a full min-to-max ramp

	// Protection thresholds
	VoltageInMin   float64 // V, checked while switching
	VoltageInMax   float64 // V
	VoltageOutMin  float64 // V, checked while switching
	VoltageOutMax  float64 // V
	CurrentInTrip  float64 // A
	TemperatureMax float64 // degC
	BatteryFull    float64 // V, raises the battery-charged warning

	InputStableDelta float64 // V per tick

	ErrorEnableDelay uint32
	StartupTimeout   uint32
	ReadyDelay       uint32
	ShutdownDelay    uint32

	// Filters
	VoltageAlpha      float64
	TemperatureAlpha  float64
	CurrentWindow     int
	TemperatureWindow int
}

// DefaultConfig returns settings for a 48 V battery fed from a five-cell stack.
func DefaultConfig() Config {
	return Config{
		SwitchingFrequency: 20000,

		CurrentRefKP:   -2.0,
		CurrentRefKI:   -40.0,
		CurrentRefKC:   0.5,
		MinCellVoltage: 6.0,

		DutyKP:  0.005,
		DutyKI:  4.0,
		DutyMin: 0.0,
		DutyMax: 0.85,

		CurrentInMin: 2.0,
		CurrentInMax: 20.0,
		RampSeconds:  60,

		VoltageInMin:   20.0,
		VoltageInMax:   45.0,
		VoltageOutMin:  36.0,
		VoltageOutMax:  58.0,
		CurrentInTrip:  25.0,
		TemperatureMax: 85.0,
		BatteryFull:    54.4,

		InputStableDelta: 0.5,

		ErrorEnableDelay: 5000,
		StartupTimeout:   60000,
		ReadyDelay:       1000,
		ShutdownDelay:    2000,

		VoltageAlpha:      0.05,
		TemperatureAlpha:  0.1,
		CurrentWindow:     3,
		TemperatureWindow: 5,
	}
}

// Validate checks the settings for values the control loop cannot run with.
func (c Config) Validate() error {
	switch {
	case c.SwitchingFrequency <= 0:
		return fmt.Errorf("converter: switching frequency must be positive")
	case c.RampSeconds <= 0:
		return fmt.Errorf("converter: ramp duration must be positive")
	case c.CurrentInMin > c.CurrentInMax:
		return fmt.Errorf("converter: current range [%g, %g] is inverted", c.CurrentInMin, c.CurrentInMax)
	case c.DutyMin < 0 || c.DutyMax > 1 || c.DutyMin > c.DutyMax:
		return fmt.Errorf("converter: duty range [%g, %g] outside [0, 1]", c.DutyMin, c.DutyMax)
	case c.VoltageAlpha <= 0 || c.VoltageAlpha > 1:
		return fmt.Errorf("converter: voltage filter alpha %g outside (0, 1]", c.VoltageAlpha)
	case c.TemperatureAlpha <= 0 || c.TemperatureAlpha > 1:
		return fmt.Errorf("converter: temperature filter alpha %g outside (0, 1]", c.TemperatureAlpha)
	case c.CurrentWindow < 1 || c.TemperatureWindow < 1:
		return fmt.Errorf("converter: filter windows must hold at least one sample")
	}
	return nil
}

// Period returns the control step in seconds.
func (c Config) Period() float64 {
	return 1 / c.SwitchingFrequency
}

// RampStep returns the current reference increment per control step.
func (c Config) RampStep() float64 {
	return (c.CurrentInMax - c.CurrentInMin) / (c.RampSeconds * c.SwitchingFrequency)
}

func (c Config) currentRefPI() control.PIConfig {
	return control.PIConfig{
		KP:     c.CurrentRefKP,
		KI:     c.CurrentRefKI,
		KC:     c.CurrentRefKC,
		Dt:     c.Period(),
		OutMin: c.CurrentInMin,
		OutMax: c.CurrentInMin,
	}
}

func (c Config) dutyPI() control.PIConfig {
	return control.PIConfig{
		KP:     c.DutyKP,
		KI:     c.DutyKI,
		Dt:     c.Period(),
		OutMin: c.DutyMin,
		OutMax: c.DutyMax,
	}
}

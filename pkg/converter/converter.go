// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package converter implements the boost converter: its lifecycle state
// machine and the interrupt-rate control pipeline.
//
// The state machine is driven from the control core's main loop through Run
// and the command methods (Startup, Shutdown, StartCharging, StopCharging,
// EmergencyShutdown). The pipeline runs from the PWM period interrupt through
// ControlISR. Interrupt handlers only raise faults; Run is the single place
// that acts on them.
package converter

import (
	"sync/atomic"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/control"
	"github.com/Thermoquad/fuelboost/pkg/faults"
)

// FuelCell is the converter's view of the remote fuel-cell controller.
type FuelCell interface {
	Start() bool
	Stop() bool
	IsRunning() bool
	EnableErrors(on bool)
	ErrorsEnabled() bool
	MinCellVoltage() float64
}

// Converter is one boost converter instance.
type Converter struct {
	cfg    Config
	board  *board.Context
	faults *faults.Log
	fc     FuelCell

	state State
	since uint32
	wait  wait

	currentRef *control.BackCalcPI
	duty       *control.ClampedPI

	voltageInFilter  *control.ExponentialFilter
	voltageOutFilter *control.ExponentialFilter
	currentAFilter   *control.MedianFilter
	currentBFilter   *control.MedianFilter
	temperatureChain control.Chain

	voltageIn     float64
	voltageOut    float64
	currentIn     float64
	temperature   float64
	lastVoltageIn float64

	currentInRef   float64
	currentInLimit float64

	temperatureReady atomic.Bool
}

// New creates a converter in STANDBY. It panics if the board context is
// incomplete or the configuration is unusable.
func New(cfg Config, b *board.Context, fc FuelCell) *Converter {
	b.MustValidate()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	if fc == nil {
		panic("converter: fuel cell controller not set")
	}

	c := &Converter{
		cfg:    cfg,
		board:  b,
		faults: b.Faults,
		fc:     fc,

		currentRef: control.NewBackCalcPI(cfg.currentRefPI()),
		duty:       control.NewClampedPI(cfg.dutyPI()),

		voltageInFilter:  control.NewExponentialFilter(cfg.VoltageAlpha),
		voltageOutFilter: control.NewExponentialFilter(cfg.VoltageAlpha),
		currentAFilter:   control.NewMedianFilter(cfg.CurrentWindow),
		currentBFilter:   control.NewMedianFilter(cfg.CurrentWindow),
		temperatureChain: control.Chain{
			control.NewMedianFilter(cfg.TemperatureWindow),
			control.NewExponentialFilter(cfg.TemperatureAlpha),
		},

		currentInRef:   cfg.CurrentInMin,
		currentInLimit: cfg.CurrentInMax,
	}
	c.since = b.Now()
	b.PWM.SetEnabled(false)
	return c
}

// Startup requests STANDBY -> STARTUP. It is refused while errors or the
// battery-charged warning are present.
func (c *Converter) Startup() bool {
	return c.handle(EventStartup)
}

// Shutdown requests the orderly shutdown path of the active state.
func (c *Converter) Shutdown() {
	c.handle(EventShutdown)
}

// StartCharging requests READY -> CHARGING_START.
func (c *Converter) StartCharging() bool {
	return c.handle(EventStartCharging)
}

// StopCharging stops switching and returns to READY.
func (c *Converter) StopCharging() {
	c.handle(EventStopCharging)
}

// EmergencyShutdown stops switching and the fuel cell and goes straight to
// SHUTDOWN.
func (c *Converter) EmergencyShutdown() {
	c.handle(EventEmergencyShutdown)
}

// Run advances the state machine by one tick.
func (c *Converter) Run() {
	c.handle(EventRun)
	c.lastVoltageIn = c.voltageIn
}

// SetRelay drives the input relay by hand. It is refused outside STANDBY,
// and closing it is refused while errors are present.
func (c *Converter) SetRelay(on bool) bool {
	if c.state != StateStandby {
		return false
	}
	if on && c.faults.HasErrors() {
		return false
	}
	c.board.Relay.Set(on)
	return true
}

// Reset clears every fault and returns to STANDBY with the power stage off.
func (c *Converter) Reset() {
	c.stopPWM()
	c.board.Relay.Set(false)
	if c.state != StateStandby {
		c.fc.Stop()
	}
	c.faults.ResetAll()
	c.changeState(StateStandby)
}

// State returns the active state.
func (c *Converter) State() State {
	return c.state
}

// Timestamp returns ms since the last state transition.
func (c *Converter) Timestamp() uint32 {
	return board.Elapsed(c.board.Now(), c.since)
}

// Settings exposes the configuration for the object dictionary. Thresholds
// and delays are read on every tick; gains and filters are fixed at
// construction.
func (c *Converter) Settings() *Config {
	return &c.cfg
}

// VoltageIn returns the filtered input voltage in V.
func (c *Converter) VoltageIn() float64 {
	return c.voltageIn
}

// VoltageOut returns the filtered output voltage in V.
func (c *Converter) VoltageOut() float64 {
	return c.voltageOut
}

// CurrentIn returns the filtered input current in A.
func (c *Converter) CurrentIn() float64 {
	return c.currentIn
}

// Temperature returns the filtered heatsink temperature in degC.
func (c *Converter) Temperature() float64 {
	return c.temperature
}

// DutyCycle returns the last duty cycle written to the PWM.
func (c *Converter) DutyCycle() float64 {
	if !c.board.PWM.Enabled() {
		return 0
	}
	return c.duty.Output()
}

// CurrentInRef returns the present upper bound of the input current.
func (c *Converter) CurrentInRef() float64 {
	return c.currentInRef
}

// CurrentInSetpoint returns the output of the current-reference controller.
func (c *Converter) CurrentInSetpoint() float64 {
	return c.currentRef.Output()
}

// CurrentInLimit returns the user current limit the ramp converges to.
func (c *Converter) CurrentInLimit() float64 {
	return c.currentInLimit
}

// SetCurrentInLimit sets the input current limit. Values outside
// [CurrentInMin, CurrentInMax] are rejected. A lower limit takes effect
// immediately; a higher one is reached by the next ramp or, while CHARGING,
// on the next tick.
func (c *Converter) SetCurrentInLimit(amps float64) bool {
	if amps < c.cfg.CurrentInMin || amps > c.cfg.CurrentInMax {
		return false
	}
	c.currentInLimit = amps
	if c.currentInRef > amps {
		c.setCurrentInRef(amps)
	}
	return true
}

func (c *Converter) setCurrentInRef(amps float64) {
	c.currentInRef = amps
	c.currentRef.SetLimits(c.cfg.CurrentInMin, amps)
}

func (c *Converter) startPWM() {
	c.currentRef.Reset()
	c.duty.Reset()
	c.setCurrentInRef(c.cfg.CurrentInMin)
	c.board.PWM.SetDutyCycle(c.cfg.DutyMin)
	c.board.PWM.SetEnabled(true)
}

func (c *Converter) stopPWM() {
	c.board.PWM.SetEnabled(false)
	c.board.PWM.SetDutyCycle(0)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package board defines the hardware collaborators the firmware core talks to
// and the Context that carries them.
//
// The core never reaches for a global peripheral instance: a Context is built
// once at startup and passed to every component that needs hardware access.
package board

import (
	"context"
	"fmt"

	"github.com/Thermoquad/fuelboost/pkg/faults"
)

// Channel identifies an analog input.
type Channel uint8

// Analog inputs
const (
	ChannelVoltageIn Channel = iota
	ChannelVoltageOut
	ChannelCurrentInA // first current sample of the PWM period
	ChannelCurrentInB // second current sample, offset by half a period
	ChannelTemperature

	ChannelCount
)

var channelNames = [ChannelCount]string{
	"voltage_in",
	"voltage_out",
	"current_in_a",
	"current_in_b",
	"temperature",
}

func (c Channel) String() string {
	if c < ChannelCount {
		return channelNames[c]
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// ADC is the sampling interface.
type ADC interface {
	StartConversion(ch Channel)
	ConversionComplete(ch Channel) bool
	Read(ch Channel) uint16
}

// PWM is the power stage switching output.
type PWM interface {
	SetDutyCycle(duty float64) // 0..1
	SetEnabled(enabled bool)
	Enabled() bool
}

// Relay is the input relay between the fuel cell and the converter.
type Relay interface {
	Set(on bool)
	On() bool
}

// Clock is the millisecond system tick.
type Clock interface {
	Millis() uint32
}

// Timebase paces the control core: WaitPeriod returns once per PWM period.
type Timebase interface {
	WaitPeriod(ctx context.Context) error
}

// Calibration converts raw ADC counts to physical units.
type Calibration struct {
	Gain   float64
	Offset float64
}

// Apply returns raw*Gain + Offset.
func (c Calibration) Apply(raw uint16) float64 {
	return float64(raw)*c.Gain + c.Offset
}

// Context holds every hardware handle of one board.
type Context struct {
	ADC         ADC
	PWM         PWM
	Relay       Relay
	Clock       Clock
	Timebase    Timebase
	Faults      *faults.Log
	Calibration [ChannelCount]Calibration
}

// Validate reports the first missing collaborator.
func (c *Context) Validate() error {
	switch {
	case c.ADC == nil:
		return fmt.Errorf("board: ADC driver not set")
	case c.PWM == nil:
		return fmt.Errorf("board: PWM driver not set")
	case c.Relay == nil:
		return fmt.Errorf("board: relay driver not set")
	case c.Clock == nil:
		return fmt.Errorf("board: clock not set")
	case c.Faults == nil:
		return fmt.Errorf("board: fault log not set")
	}
	for ch, cal := range c.Calibration {
		if cal.Gain == 0 {
			return fmt.Errorf("board: calibration for %s has zero gain", Channel(ch))
		}
	}
	return nil
}

// MustValidate panics if the context is incomplete. A missing driver is a
// wiring defect, not a runtime condition.
func (c *Context) MustValidate() {
	if err := c.Validate(); err != nil {
		panic(err)
	}
}

// Sample reads a channel and applies its calibration.
func (c *Context) Sample(ch Channel) float64 {
	return c.Calibration[ch].Apply(c.ADC.Read(ch))
}

// Now returns the system tick in ms.
func (c *Context) Now() uint32 {
	return c.Clock.Millis()
}

// Elapsed returns ms since a previous tick, wrap-safe.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

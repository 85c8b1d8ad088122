// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package converter

import (
	"math"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/faults"
)

// Channels sampled every PWM period
var controlChannels = [...]board.Channel{
	board.ChannelVoltageIn,
	board.ChannelVoltageOut,
	board.ChannelCurrentInA,
	board.ChannelCurrentInB,
}

// ControlISR runs once per PWM period: sample, filter, protect, then run the
// current-reference and duty controllers while the power stage is switching.
// A period whose conversions have not completed is skipped.
func (c *Converter) ControlISR() {
	adc := c.board.ADC
	for _, ch := range controlChannels {
		if !adc.ConversionComplete(ch) {
			return
		}
	}

	c.voltageInFilter.Process(c.board.Sample(board.ChannelVoltageIn))
	c.voltageOutFilter.Process(c.board.Sample(board.ChannelVoltageOut))
	c.currentAFilter.Process(c.board.Sample(board.ChannelCurrentInA))
	c.currentBFilter.Process(c.board.Sample(board.ChannelCurrentInB))

	for _, ch := range controlChannels {
		adc.StartConversion(ch)
	}

	c.voltageIn = c.voltageInFilter.Output()
	c.voltageOut = c.voltageOutFilter.Output()
	currentA := c.currentAFilter.Output()
	currentB := c.currentBFilter.Output()

	c.protect(currentA, currentB)

	// The two samples sit either side of the inductor ripple
	c.currentIn = (currentA + currentB) / 2

	if !c.board.PWM.Enabled() {
		return
	}
	c.currentRef.Process(c.cfg.MinCellVoltage, c.fc.MinCellVoltage())
	c.duty.Process(c.currentRef.Output(), c.currentIn)
	c.board.PWM.SetDutyCycle(c.duty.Output())
}

// protect checks the filtered values against the thresholds. Critical errors
// also stop switching at once instead of waiting for the next tick.
func (c *Converter) protect(currentA, currentB float64) {
	switching := c.board.PWM.Enabled()

	if c.voltageIn > c.cfg.VoltageInMax {
		c.faults.Raise(faults.ErrOverVoltageIn)
	}
	if switching && c.voltageIn < c.cfg.VoltageInMin {
		c.faults.Raise(faults.ErrUnderVoltageIn)
	}
	if c.voltageOut > c.cfg.VoltageOutMax {
		c.trip(faults.ErrOverVoltageOut)
	}
	if switching && c.voltageOut < c.cfg.VoltageOutMin {
		c.faults.Raise(faults.ErrUnderVoltageOut)
	}
	if math.Max(currentA, currentB) > c.cfg.CurrentInTrip {
		c.trip(faults.ErrOverCurrentIn)
	}
	if c.voltageOut >= c.cfg.BatteryFull {
		c.faults.Warn(faults.WarnBatteryCharged)
	}
}

// TripISR handles the PWM trip-zone interrupt raised by the hardware
// comparator on input over-current.
func (c *Converter) TripISR() {
	c.trip(faults.ErrOverCurrentIn)
}

func (c *Converter) trip(err faults.Error) {
	c.board.PWM.SetEnabled(false)
	c.faults.Raise(err)
}

// TemperatureISR handles the temperature conversion-complete interrupt. The
// sample is filtered later by PollTemperature.
func (c *Converter) TemperatureISR() {
	c.temperatureReady.Store(true)
}

// PollTemperature runs from the main loop: filter a completed temperature
// sample, check it against the over-temperature threshold and start the
// next conversion.
func (c *Converter) PollTemperature() bool {
	if !c.temperatureReady.Swap(false) {
		return false
	}

	c.temperatureChain.Process(c.board.Sample(board.ChannelTemperature))
	c.temperature = c.temperatureChain.Output()
	c.board.ADC.StartConversion(board.ChannelTemperature)

	if c.temperature > c.cfg.TemperatureMax {
		c.faults.Raise(faults.ErrOverTemperature)
	}
	return true
}

// StartConversions kicks off the first conversion of every channel.
func (c *Converter) StartConversions() {
	for _, ch := range controlChannels {
		c.board.ADC.StartConversion(ch)
	}
	c.board.ADC.StartConversion(board.ChannelTemperature)
}

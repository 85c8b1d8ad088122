// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/converter"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
	"github.com/Thermoquad/fuelboost/pkg/ipc"
)

// Tripper is implemented by PWM drivers with a trip-zone comparator.
// TakeTrip reports and clears a latched trip event.
type Tripper interface {
	TakeTrip() bool
}

// ControlCore runs the converter. Tick is one PWM period: the interrupt
// handlers in priority order, then one main loop pass.
type ControlCore struct {
	board *board.Context
	conv  *converter.Converter
	fc    *fuelcell.Controller
	sdo   *canopen.Service

	telemetry ipc.Outbox[hostlink.Telemetry]
	ready     ipc.Sender
	peer      ipc.Receiver
}

// Converter returns the converter instance.
func (c *ControlCore) Converter() *converter.Converter {
	return c.conv
}

// FuelCell returns the fuel-cell controller facade.
func (c *ControlCore) FuelCell() *fuelcell.Controller {
	return c.fc
}

// SDO returns the SDO service.
func (c *ControlCore) SDO() *canopen.Service {
	return c.sdo
}

// Tick runs one PWM period.
func (c *ControlCore) Tick() {
	if t, ok := c.board.PWM.(Tripper); ok && t.TakeTrip() {
		c.conv.TripISR()
	}
	c.conv.ControlISR()
	if c.board.ADC.ConversionComplete(board.ChannelTemperature) {
		c.conv.TemperatureISR()
	}
	c.Step()
}

// Step is one main loop pass.
func (c *ControlCore) Step() {
	now := c.board.Now()

	c.fc.Poll(now)
	c.conv.PollTemperature()
	c.fc.CheckErrors(now)
	c.conv.Run()
	c.sdo.Run()

	c.telemetry.TryPublish(c.Snapshot())
}

// Snapshot captures the converter state for the host.
func (c *ControlCore) Snapshot() hostlink.Telemetry {
	f := c.board.Faults
	return hostlink.Telemetry{
		Uptime:         c.board.Now(),
		State:          c.conv.State(),
		StateTime:      c.conv.Timestamp(),
		VoltageIn:      c.conv.VoltageIn(),
		VoltageOut:     c.conv.VoltageOut(),
		CurrentIn:      c.conv.CurrentIn(),
		Temperature:    c.conv.Temperature(),
		DutyCycle:      c.conv.DutyCycle(),
		CurrentInRef:   c.conv.CurrentInRef(),
		CurrentInLimit: c.conv.CurrentInLimit(),
		Errors:         f.Errors(),
		Warnings:       f.Warnings(),
	}
}

// Run signals readiness, waits for the comm core and then ticks once per
// PWM period until ctx is done.
func (c *ControlCore) Run(ctx context.Context) error {
	if c.board.Timebase == nil {
		return errors.New("firmware: control core has no timebase")
	}
	if err := c.ready.Set(); err != nil {
		return fmt.Errorf("firmware: control ready: %w", err)
	}
	if err := ipc.WaitFor(ctx, c.peer); err != nil {
		return err
	}
	log.Printf("control core running")

	c.conv.StartConversions()
	for {
		if err := c.board.Timebase.WaitPeriod(ctx); err != nil {
			return err
		}
		c.Tick()
	}
}

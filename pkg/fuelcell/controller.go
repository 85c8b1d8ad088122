// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fuelcell

import (
	"log"
	"math"

	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/ipc"
)

// Controller is the control core's view of the remote fuel cell. It requests
// start and stop through IPC signals and reads cell data from snapshots
// published by the Link.
type Controller struct {
	cfg    Config
	faults *faults.Log
	start  ipc.Sender
	stop   ipc.Sender
	cells  ipc.Inbox[CellTable]

	table  CellTable
	lastRx uint32

	errorsEnabled bool
	armed         bool
	pending       Status // fault bits being debounced
	firstSeen     [len(faultClasses)]uint32
}

// faultClasses pairs each debounced status bit with the error it escalates to.
var faultClasses = [...]struct {
	bit Status
	err faults.Error
}{
	{StatusOverheat, faults.ErrFuelCellOverheat},
	{StatusLowCharge, faults.ErrFuelCellLowCharge},
	{StatusConnection, faults.ErrFuelCellConnection},
	{StatusPressure, faults.ErrFuelCellPressure},
	{StatusHydro, faults.ErrFuelCellHydro},
}

// NewController creates the control-core side of the link.
func NewController(cfg Config, log *faults.Log, start, stop ipc.Sender, cells ipc.Inbox[CellTable]) *Controller {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &Controller{
		cfg:    cfg,
		faults: log,
		start:  start,
		stop:   stop,
		cells:  cells,
		table:  CellTable{Count: cfg.CellCount},
	}
}

// Settings exposes the configuration for the object dictionary.
func (c *Controller) Settings() *Config {
	return &c.cfg
}

// Start requests the fuel cell to start. A request that is still pending on
// the other core is an overrun and raises WarnIpcOverrun.
func (c *Controller) Start() bool {
	if err := c.start.Set(); err != nil {
		c.faults.Warn(faults.WarnIpcOverrun)
		log.Printf("fuelcell: start request: %v", err)
		return false
	}
	return true
}

// Stop requests the fuel cell to stop and disables remote error reporting.
func (c *Controller) Stop() bool {
	c.EnableErrors(false)
	if err := c.stop.Set(); err != nil {
		c.faults.Warn(faults.WarnIpcOverrun)
		log.Printf("fuelcell: stop request: %v", err)
		return false
	}
	return true
}

// Poll takes a new cell table from the comm core if one is waiting.
func (c *Controller) Poll(now uint32) bool {
	table, ok := c.cells.Receive()
	if !ok {
		return false
	}
	c.table = table
	c.lastRx = now
	return true
}

// Cells returns the last received cell table.
func (c *Controller) Cells() CellTable {
	return c.table
}

// IsRunning reports whether every cell reports the run bit.
func (c *Controller) IsRunning() bool {
	return c.all(func(cell Cell) bool { return cell.Status&StatusRun != 0 })
}

// InOperation reports whether every cell is running and not faulted.
func (c *Controller) InOperation() bool {
	return c.all(func(cell Cell) bool { return cell.Status.InOperation() })
}

func (c *Controller) all(pred func(Cell) bool) bool {
	if c.cfg.CellCount == 0 {
		return false
	}
	for _, cell := range c.table.Cells[:c.cfg.CellCount] {
		if !cell.Valid || !pred(cell) {
			return false
		}
	}
	return true
}

// MinCellVoltage returns the lowest reported cell voltage, or 0 before any
// cell has reported.
func (c *Controller) MinCellVoltage() float64 {
	lowest := math.Inf(1)
	for _, cell := range c.table.Cells[:c.cfg.CellCount] {
		if cell.Valid && cell.CellVoltage < lowest {
			lowest = cell.CellVoltage
		}
	}
	if math.IsInf(lowest, 1) {
		return 0
	}
	return lowest
}

// MaxTemperature returns the hottest reported cell temperature.
func (c *Controller) MaxTemperature() float64 {
	hottest := math.Inf(-1)
	for _, cell := range c.table.Cells[:c.cfg.CellCount] {
		if cell.Valid && cell.Temperature > hottest {
			hottest = cell.Temperature
		}
	}
	if math.IsInf(hottest, -1) {
		return 0
	}
	return hottest
}

// HasOverheat reports whether any cell is overheated and raises the fault.
func (c *Controller) HasOverheat() bool {
	return c.hasStatus(StatusOverheat, faults.ErrFuelCellOverheat)
}

// HasLowCharge reports whether any cell reports low charge and raises the fault.
func (c *Controller) HasLowCharge() bool {
	return c.hasStatus(StatusLowCharge, faults.ErrFuelCellLowCharge)
}

// HasConnectionFault reports a stack connection fault and raises it.
func (c *Controller) HasConnectionFault() bool {
	return c.hasStatus(StatusConnection, faults.ErrFuelCellConnection)
}

// HasPressureFault reports a stack pressure fault and raises it.
func (c *Controller) HasPressureFault() bool {
	return c.hasStatus(StatusPressure, faults.ErrFuelCellPressure)
}

// HasHydroFault reports a stack hydraulic fault and raises it.
func (c *Controller) HasHydroFault() bool {
	return c.hasStatus(StatusHydro, faults.ErrFuelCellHydro)
}

func (c *Controller) hasStatus(bit Status, err faults.Error) bool {
	if c.table.Cells[0].Valid && c.table.Cells[0].Status&bit != 0 {
		c.faults.Raise(err)
		return true
	}
	for _, cell := range c.table.Cells[1:c.cfg.CellCount] {
		if cell.Valid && cell.Status&bit != 0 {
			c.faults.Raise(err)
			return true
		}
	}
	return false
}

// faultBits collects the fault bits of every valid cell without side effects.
func (c *Controller) faultBits() Status {
	var bits Status
	for _, cell := range c.table.Cells[:c.cfg.CellCount] {
		if cell.Valid {
			bits |= cell.Status & StatusFaultMask
		}
	}
	return bits
}

// EnableErrors switches remote error reporting on or off.
func (c *Controller) EnableErrors(on bool) {
	if on && !c.errorsEnabled {
		c.armed = true
	}
	c.errorsEnabled = on
	if !on {
		c.pending = 0
	}
}

// ErrorsEnabled reports whether remote error reporting is on.
func (c *Controller) ErrorsEnabled() bool {
	return c.errorsEnabled
}

// CheckErrors escalates cell faults that persisted for ErrorDelay and raises
// ConnectionLost when cell data stops arriving. Nothing happens while error
// reporting is off.
func (c *Controller) CheckErrors(now uint32) {
	if !c.errorsEnabled {
		return
	}
	if c.armed {
		c.armed = false
		c.lastRx = now
	}

	if c.cfg.LinkTimeout > 0 && now-c.lastRx > c.cfg.LinkTimeout {
		c.faults.Raise(faults.ErrConnectionLost)
	}

	// Each fault class runs its own ErrorDelay from when it first appeared
	present := c.faultBits()
	for i, fc := range faultClasses {
		switch {
		case present&fc.bit == 0:
			c.pending &^= fc.bit
		case c.pending&fc.bit == 0:
			c.pending |= fc.bit
			c.firstSeen[i] = now
		case now-c.firstSeen[i] > c.cfg.ErrorDelay:
			c.faults.Raise(fc.err)
		}
	}
}

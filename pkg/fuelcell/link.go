// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fuelcell

import (
	"errors"
	"fmt"
	"log"

	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/ipc"
)

// maxFramesPerRun bounds the work done by one Run call.
const maxFramesPerRun = 32

// Config configures the link and the controller.
type Config struct {
	BaseID           uint16
	TPDOID           uint16
	CellCount        int
	TPDOPeriod       uint32 // ms
	ErrorDelay       uint32 // ms a cell fault must persist before it is raised
	LinkTimeout      uint32 // ms without cell data before ConnectionLost, 0 disables
	BusErrorLimit    int    // consecutive send failures before ErrCanBus
	FramingWarnLimit int    // consecutive framing errors before WarnCanBus
}

// DefaultConfig returns the settings of a five-cell stack.
func DefaultConfig() Config {
	return Config{
		BaseID:           DefaultBaseID,
		TPDOID:           DefaultTPDOID,
		CellCount:        5,
		TPDOPeriod:       100,
		ErrorDelay:       30000,
		LinkTimeout:      2000,
		BusErrorLimit:    10,
		FramingWarnLimit: 8,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CellCount < 1 || c.CellCount > MaxCells {
		return fmt.Errorf("fuelcell: cell count %d out of range [1, %d]", c.CellCount, MaxCells)
	}
	if int(c.BaseID)+c.CellCount > 0x800 {
		return fmt.Errorf("fuelcell: RPDO range 0x%03X+%d exceeds 11-bit identifiers", c.BaseID, c.CellCount)
	}
	if c.TPDOPeriod == 0 {
		return fmt.Errorf("fuelcell: TPDO period must be positive")
	}
	return nil
}

// Cell is the last state reported by one fuel cell.
type Cell struct {
	Valid          bool
	Temperature    float64 // degC
	CellVoltage    float64 // V
	BatteryVoltage float64 // V
	Current        float64 // A
	Status         Status
	Updated        uint32 // ms
}

// CellTable is the snapshot handed from the comm core to the control core.
type CellTable struct {
	Count   int
	Cells   [MaxCells]Cell
	Updated uint32
}

// Transceiver carries whole frames to and from the fuel-cell bus.
type Transceiver interface {
	Send(f Frame) error
	Receive() (Frame, bool)
}

// OverrunCounter is implemented by transceivers that drop frames when full.
type OverrunCounter interface {
	Overruns() uint64
}

// Link runs the process-data exchange on the comm core.
type Link struct {
	cfg    Config
	bus    Transceiver
	faults *faults.Log
	start  ipc.Receiver
	stop   ipc.Receiver
	cells  ipc.Outbox[CellTable]

	table CellTable
	dirty bool

	sent    bool
	lastTx  uint32
	voltage float64
	current float64

	sendFailures int
	framingRun   int
	overruns     uint64
	stats        Statistics
}

// NewLink creates the comm-core side of the link. It panics on an invalid
// configuration.
func NewLink(cfg Config, bus Transceiver, log *faults.Log, start, stop ipc.Receiver, cells ipc.Outbox[CellTable]) *Link {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &Link{
		cfg:    cfg,
		bus:    bus,
		faults: log,
		start:  start,
		stop:   stop,
		cells:  cells,
		table:  CellTable{Count: cfg.CellCount},
	}
}

// SetMeasurement updates the voltage and current reported in the TPDO.
func (l *Link) SetMeasurement(voltage, current float64) {
	l.voltage = voltage
	l.current = current
}

// Run drains received frames, transmits the TPDO when due and hands a fresh
// cell table to the control core when its mailbox is free.
func (l *Link) Run(now uint32) {
	l.receive(now)

	if !l.sent || now-l.lastTx >= l.cfg.TPDOPeriod {
		if err := l.Transmit(now); err != nil && l.sendFailures == 1 {
			log.Printf("%v", err)
		}
	}

	if l.dirty && l.cells.TryPublish(l.table) {
		l.dirty = false
	}
}

// PendingCommand returns the command the next TPDO will carry. A pending stop
// wins over a pending start.
func (l *Link) PendingCommand() Command {
	switch {
	case l.stop.IsSet():
		return CmdStop
	case l.start.IsSet():
		return CmdStart
	default:
		return CmdIdle
	}
}

// Transmit sends one TPDO. The start/stop signals it carries are acknowledged
// only once the transceiver accepted the frame, so a busy bus delays the
// command instead of losing it.
func (l *Link) Transmit(now uint32) error {
	stopPending := l.stop.IsSet()
	startPending := l.start.IsSet()

	cmd := CmdIdle
	if stopPending {
		cmd = CmdStop
	} else if startPending {
		cmd = CmdStart
	}

	l.sent = true
	l.lastTx = now

	tpdo := NewTPDO(cmd, l.voltage, l.current)
	if err := l.bus.Send(NewDataFrame(l.cfg.TPDOID, tpdo.Pack())); err != nil {
		l.stats.TxFailures++
		l.sendFailures++
		if l.cfg.BusErrorLimit > 0 && l.sendFailures >= l.cfg.BusErrorLimit {
			l.faults.Raise(faults.ErrCanBus)
		}
		return fmt.Errorf("fuelcell: send TPDO: %w", err)
	}

	l.sendFailures = 0
	l.stats.TxFrames++

	if stopPending {
		l.stop.Acknowledge()
	}
	if startPending {
		l.start.Acknowledge()
	}

	if cmd != CmdIdle {
		l.stats.CommandsSent++
		if cmd == CmdStop {
			l.stats.CommandsStop++
		} else {
			l.stats.CommandsStart++
		}
		log.Printf("fuelcell: %s command sent", cmd)
	}
	return nil
}

// HandleFrame validates and routes one received frame.
func (l *Link) HandleFrame(f Frame, now uint32) error {
	err := l.route(f, now)
	l.stats.Record(err)

	switch {
	case err == nil:
		l.framingRun = 0
	case !errors.Is(err, ErrInvalidID):
		l.framingRun++
		if l.cfg.FramingWarnLimit > 0 && l.framingRun >= l.cfg.FramingWarnLimit {
			l.faults.Warn(faults.WarnCanBus)
		}
	}
	return err
}

func (l *Link) route(f Frame, now uint32) error {
	if err := f.Check(); err != nil {
		return err
	}

	if f.ID < l.cfg.BaseID || int(f.ID-l.cfg.BaseID) >= l.cfg.CellCount {
		return fmt.Errorf("%w: 0x%03X", ErrInvalidID, f.ID)
	}
	index := int(f.ID - l.cfg.BaseID)

	r := UnpackRPDO(f.Data)
	status := r.Status
	if index != 0 {
		// Only cell 0 reports stack-level conditions
		status &^= StatusConnection | StatusPressure | StatusHydro
	}

	l.table.Cells[index] = Cell{
		Valid:          true,
		Temperature:    r.TemperatureC(),
		CellVoltage:    r.CellVolts(),
		BatteryVoltage: r.BatteryVolts(),
		Current:        r.Amps(),
		Status:         status,
		Updated:        now,
	}
	l.table.Updated = now
	l.dirty = true
	return nil
}

func (l *Link) receive(now uint32) {
	for i := 0; i < maxFramesPerRun; i++ {
		f, ok := l.bus.Receive()
		if !ok {
			break
		}
		_ = l.HandleFrame(f, now)
	}

	if oc, ok := l.bus.(OverrunCounter); ok {
		if n := oc.Overruns(); n > l.overruns {
			l.stats.RxOverruns += n - l.overruns
			l.overruns = n
			l.faults.Warn(faults.WarnCanBusOverrun)
		}
	}
}

// Cells returns the comm core's current cell table.
func (l *Link) Cells() CellTable {
	return l.table
}

// Statistics returns a copy of the link counters.
func (l *Link) Statistics() Statistics {
	return l.stats
}

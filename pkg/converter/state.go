// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package converter

import (
	"fmt"
	"log"
	"math"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/faults"
)

// State is the converter lifecycle state.
type State uint8

// Converter states
const (
	StateStandby State = iota
	StateStartup
	StateReady
	StateChargingStart
	StateCharging
	StateChargingStop
	StateShutdown
	StateWait
)

var stateNames = map[State]string{
	StateStandby:       "STANDBY",
	StateStartup:       "STARTUP",
	StateReady:         "READY",
	StateChargingStart: "CHARGING_START",
	StateCharging:      "CHARGING",
	StateChargingStop:  "CHARGING_STOP",
	StateShutdown:      "SHUTDOWN",
	StateWait:          "WAIT",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

// Delivering reports whether the state may switch the power stage.
func (s State) Delivering() bool {
	return s == StateChargingStart || s == StateCharging || s == StateChargingStop
}

// Event is a state machine trigger.
type Event uint8

// State machine events
const (
	EventStartup Event = iota
	EventShutdown
	EventStartCharging
	EventStopCharging
	EventRun
	EventEmergencyShutdown
)

var eventNames = map[Event]string{
	EventStartup:           "startup",
	EventShutdown:          "shutdown",
	EventStartCharging:     "start_charging",
	EventStopCharging:      "stop_charging",
	EventRun:               "run",
	EventEmergencyShutdown: "emergency_shutdown",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EVENT(%d)", uint8(e))
}

// wait is the WAIT meta-state record.
type wait struct {
	next     State
	hasNext  bool
	start    uint32
	duration uint32
}

// handle dispatches one event to the active state. It returns false when the
// state ignores the event or refuses it.
func (c *Converter) handle(ev Event) bool {
	if ev == EventEmergencyShutdown {
		c.emergencyShutdown()
		return true
	}

	switch c.state {
	case StateStandby:
		return c.standby(ev)
	case StateStartup:
		return c.startup(ev)
	case StateReady:
		return c.ready(ev)
	case StateChargingStart, StateCharging, StateChargingStop:
		return c.charging(ev)
	case StateWait:
		return c.waiting(ev)
	case StateShutdown:
		return c.shutdown(ev)
	}
	return false
}

func (c *Converter) standby(ev Event) bool {
	switch ev {
	case EventStartup, EventStartCharging:
		if c.faults.HasErrors() || c.faults.HasWarning(faults.WarnBatteryCharged) {
			return false
		}
		if !c.fc.Start() {
			log.Printf("converter: fuel cell start request overran, staying in %s", c.state)
			return false
		}
		c.board.Relay.Set(true)
		c.changeState(StateStartup)
		return true
	}
	return false
}

func (c *Converter) startup(ev Event) bool {
	switch ev {
	case EventShutdown:
		c.fc.Stop()
		c.board.Relay.Set(false)
		c.changeState(StateStandby)
		return true

	case EventRun:
		if c.faults.HasErrors() {
			return c.startup(EventShutdown)
		}

		elapsed := c.Timestamp()
		if !c.fc.ErrorsEnabled() && elapsed > c.cfg.ErrorEnableDelay {
			c.fc.EnableErrors(true)
		}

		stable := math.Abs(c.voltageIn-c.lastVoltageIn) < c.cfg.InputStableDelta
		if c.fc.IsRunning() && stable && c.voltageIn >= c.cfg.VoltageInMin {
			c.waitThen(StateReady, c.cfg.ReadyDelay)
			return true
		}

		if elapsed > c.cfg.StartupTimeout {
			c.faults.Raise(faults.ErrFuelCellStartupFailed)
		}
	}
	return false
}

func (c *Converter) ready(ev Event) bool {
	switch ev {
	case EventRun:
		if c.faults.HasErrors() {
			return c.ready(EventShutdown)
		}

	case EventStartCharging:
		if c.faults.HasErrors() || c.faults.HasWarning(faults.WarnBatteryCharged) {
			return false
		}
		c.startPWM()
		c.changeState(StateChargingStart)
		return true

	case EventShutdown:
		c.fc.Stop()
		c.waitThenShutdown(c.cfg.ShutdownDelay)
		return true
	}
	return false
}

// charging handles CHARGING_START, CHARGING and CHARGING_STOP, which share
// their stop and shutdown paths.
func (c *Converter) charging(ev Event) bool {
	switch ev {
	case EventStopCharging:
		c.stopPWM()
		c.changeState(StateReady)
		return true

	case EventShutdown:
		c.stopPWM()
		c.fc.Stop()
		c.waitThenShutdown(c.cfg.ShutdownDelay)
		return true

	case EventRun:
		if c.faults.HasErrors() {
			return c.charging(EventShutdown)
		}
		switch c.state {
		case StateChargingStart:
			c.rampUp()
		case StateCharging:
			if c.faults.HasWarning(faults.WarnBatteryCharged) {
				c.changeState(StateChargingStop)
				return true
			}
			c.setCurrentInRef(c.currentInLimit)
		case StateChargingStop:
			c.rampDown()
		}
	}
	return false
}

func (c *Converter) rampUp() {
	ref := c.currentInRef + c.cfg.RampStep()
	if ref >= c.currentInLimit {
		c.setCurrentInRef(c.currentInLimit)
		c.changeState(StateCharging)
		return
	}
	c.setCurrentInRef(ref)
}

func (c *Converter) rampDown() {
	ref := c.currentInRef - c.cfg.RampStep()
	if ref <= c.cfg.CurrentInMin {
		c.setCurrentInRef(c.cfg.CurrentInMin)
		c.stopPWM()
		c.changeState(StateReady)
		return
	}
	c.setCurrentInRef(ref)
}

func (c *Converter) waiting(ev Event) bool {
	switch ev {
	case EventShutdown:
		c.stopPWM()
		return true

	case EventRun:
		if c.faults.HasErrors() {
			c.stopPWM()
		}
		if board.Elapsed(c.board.Now(), c.wait.start) < c.wait.duration {
			return false
		}
		if c.wait.hasNext {
			c.changeState(c.wait.next)
		} else {
			c.changeState(StateShutdown)
		}
		return true
	}
	return false
}

func (c *Converter) shutdown(ev Event) bool {
	if ev != EventRun {
		return false
	}
	c.stopPWM()
	c.board.Relay.Set(false)
	c.changeState(StateStandby)
	return true
}

// emergencyShutdown takes the most direct path to a safe state from anywhere.
func (c *Converter) emergencyShutdown() {
	c.stopPWM()
	if c.state == StateStandby {
		c.board.Relay.Set(false)
		c.fc.Stop()
		return
	}
	c.fc.Stop()
	c.changeState(StateShutdown)
}

func (c *Converter) changeState(next State) {
	if next != c.state {
		log.Printf("converter: %s -> %s", c.state, next)
	}
	c.state = next
	c.since = c.board.Now()
}

// waitThen enters WAIT and moves on to next after ms.
func (c *Converter) waitThen(next State, ms uint32) {
	c.wait = wait{next: next, hasNext: true, start: c.board.Now(), duration: ms}
	c.changeState(StateWait)
}

// waitThenShutdown enters WAIT without a successor; expiry falls back to
// SHUTDOWN.
func (c *Converter) waitThenShutdown(ms uint32) {
	c.wait = wait{start: c.board.Now(), duration: ms}
	c.changeState(StateWait)
}

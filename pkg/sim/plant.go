// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"fmt"
	"math"
	"sync"

	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
)

// StackState is the power state of the simulated fuel-cell stack.
type StackState uint8

// Stack states
const (
	StackOff StackState = iota
	StackStarting
	StackRunning
	StackStopping
)

func (s StackState) String() string {
	switch s {
	case StackOff:
		return "OFF"
	case StackStarting:
		return "STARTING"
	case StackRunning:
		return "RUNNING"
	case StackStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("STACK(%d)", uint8(s))
	}
}

// cellTau is the fuel-cell module thermal time constant in s.
const cellTau = 30

// State is a snapshot of the plant.
type State struct {
	Time  float64 // s
	Stack StackState
	Level float64 // stack output, 0..1

	CellVoltages     [fuelcell.MaxCells]float64
	CellTemperatures [fuelcell.MaxCells]float64

	VoltageIn   float64
	VoltageOut  float64
	CurrentIn   float64 // average inductor current
	CurrentOut  float64
	Ripple      float64 // inductor ripple, peak to peak
	Charge      float64 // battery state of charge, 0..1
	Temperature float64 // heatsink

	Duty      float64
	Switching bool
	Relay     bool
}

// Plant models the stack, the boost inductor, the battery and the heatsink
// with the switching averaged over one period.
type Plant struct {
	cfg Config

	mu       sync.Mutex
	s        State
	injected [fuelcell.MaxCells]fuelcell.Status
}

// NewPlant creates a plant at rest with the stack off.
func NewPlant(cfg Config) *Plant {
	p := &Plant{cfg: cfg}
	p.s.Charge = cfg.InitialCharge
	p.s.Temperature = cfg.Ambient
	for i := range p.s.CellTemperatures {
		p.s.CellTemperatures[i] = cfg.Ambient
	}
	p.s.VoltageOut = p.batteryVoc()
	return p
}

// StartStack begins the stack power-up ramp.
func (p *Plant) StartStack() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.s.Stack == StackOff || p.s.Stack == StackStopping {
		p.s.Stack = StackStarting
	}
}

// StopStack begins the stack power-down ramp.
func (p *Plant) StopStack() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.s.Stack == StackStarting || p.s.Stack == StackRunning {
		p.s.Stack = StackStopping
	}
}

// Inject sets extra status bits reported by one cell. Zero clears them.
func (p *Plant) Inject(cell int, bits fuelcell.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.injected[cell] = bits
}

// SetCharge sets the battery state of charge.
func (p *Plant) SetCharge(soc float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Charge = max(0, min(soc, 1))
}

// CellStatus returns the status bits a cell reports.
func (p *Plant) CellStatus(cell int) fuelcell.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	var st fuelcell.Status
	switch p.s.Stack {
	case StackStarting:
		st = fuelcell.StatusStart
	case StackRunning:
		st = fuelcell.StatusRun
	}
	return st | p.injected[cell]
}

// State returns a snapshot.
func (p *Plant) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.s
}

func (p *Plant) batteryVoc() float64 {
	return p.cfg.BatteryVoc0 + p.cfg.BatterySpan*p.s.Charge
}

func (p *Plant) cellVoc(i int) float64 {
	return p.s.Level * (p.cfg.CellVoc - float64(i)*p.cfg.CellSpread)
}

// Step advances the plant by dt seconds.
func (p *Plant) Step(dt, duty float64, switching, relay bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg := p.cfg
	s := &p.s
	s.Time += dt
	s.Switching = switching
	s.Relay = relay
	if !switching {
		duty = 0
	}
	s.Duty = duty

	switch s.Stack {
	case StackStarting:
		s.Level += dt / cfg.StartupTime
		if s.Level >= 1 {
			s.Level = 1
			s.Stack = StackRunning
		}
	case StackStopping:
		s.Level -= dt / cfg.StopTime
		if s.Level <= 0 {
			s.Level = 0
			s.Stack = StackOff
		}
	}

	var voc float64
	for i := range cfg.Cells {
		voc += p.cellVoc(i)
	}
	rStack := float64(cfg.Cells) * cfg.CellResistance
	vBat := p.batteryVoc()

	// Inductor current, exact over the step for a constant duty. The diode
	// keeps it from going negative.
	if !relay || voc <= 0 {
		s.CurrentIn = 0
	} else {
		k := 1 - duty
		r := rStack + k*k*cfg.BatteryResistance
		steady := (voc - k*vBat) / r
		s.CurrentIn = steady + (s.CurrentIn-steady)*math.Exp(-dt*r/cfg.Inductance)
		s.CurrentIn = max(s.CurrentIn, 0)
	}
	i := s.CurrentIn

	s.CurrentOut = (1 - duty) * i
	s.Charge += s.CurrentOut * dt / (cfg.BatteryCapacity * 3600)
	s.Charge = max(0, min(s.Charge, 1))
	s.VoltageOut = p.batteryVoc() + cfg.BatteryResistance*s.CurrentOut

	s.VoltageIn = 0
	if relay {
		s.VoltageIn = max(voc-rStack*i, 0)
	}
	for c := range cfg.Cells {
		s.CellVoltages[c] = max(p.cellVoc(c)-cfg.CellResistance*i, 0)
		target := cfg.Ambient + cfg.CellHeating*i
		s.CellTemperatures[c] += (target - s.CellTemperatures[c]) * dt / cellTau
	}

	s.Ripple = 0
	if switching && relay {
		s.Ripple = s.VoltageIn * duty / (cfg.Inductance * cfg.SwitchingFrequency)
	}

	loss := cfg.Conduction * i * i
	if switching {
		loss += cfg.SwitchLoss
	}
	target := cfg.Ambient + loss*cfg.ThermalResistance
	s.Temperature += (target - s.Temperature) * dt / cfg.ThermalTau
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"context"
	"time"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/faults"
)

// paceQuantum is the simulated time between checks against the wall clock.
const paceQuantum = time.Millisecond

// Sim is a complete simulated board. It is the control core's Timebase:
// every WaitPeriod advances the plant by one PWM period.
type Sim struct {
	cfg    Config
	period time.Duration

	Plant *Plant
	ADC   *ADC
	PWM   *PWM
	Relay *Relay
	Clock *board.ManualClock
	Node  *FuelCellNode

	elapsed time.Duration

	speed     float64
	wallStart time.Time
	simStart  time.Duration
	pacedAt   time.Duration
}

// New creates a simulated board. The simulation runs unpaced until
// SetSpeed is called.
func New(cfg Config) (*Sim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plant := NewPlant(cfg)
	return &Sim{
		cfg:    cfg,
		period: time.Duration(float64(time.Second) / cfg.SwitchingFrequency),
		Plant:  plant,
		ADC:    NewADC(cfg.Noise, cfg.Seed),
		PWM:    &PWM{},
		Relay:  &Relay{},
		Clock:  &board.ManualClock{},
		Node:   NewFuelCellNode(cfg, plant),
	}, nil
}

// Config returns the simulation settings.
func (s *Sim) Config() Config {
	return s.cfg
}

// Board returns a board context wired to the simulated peripherals.
func (s *Sim) Board(log *faults.Log) *board.Context {
	return &board.Context{
		ADC:         s.ADC,
		PWM:         s.PWM,
		Relay:       s.Relay,
		Clock:       s.Clock,
		Timebase:    s,
		Faults:      log,
		Calibration: Calibration(),
	}
}

// SetSpeed sets the ratio of simulated to wall time. Zero or less runs as
// fast as possible. Call it before the control core starts.
func (s *Sim) SetSpeed(speed float64) {
	s.speed = speed
	s.wallStart = time.Now()
	s.simStart = s.elapsed
	s.pacedAt = s.elapsed
}

// Elapsed returns the simulated time.
func (s *Sim) Elapsed() time.Duration {
	return s.elapsed
}

// Step advances everything by one PWM period.
func (s *Sim) Step() {
	duty, on := s.PWM.output()
	s.Plant.Step(s.period.Seconds(), duty, on, s.Relay.On())

	st := s.Plant.State()
	if on && st.CurrentIn+st.Ripple/2 > s.cfg.TripCurrent {
		s.PWM.trip()
	}

	var values [board.ChannelCount]float64
	values[board.ChannelVoltageIn] = st.VoltageIn
	values[board.ChannelVoltageOut] = st.VoltageOut
	values[board.ChannelCurrentInA] = max(st.CurrentIn-st.Ripple/2, 0)
	values[board.ChannelCurrentInB] = st.CurrentIn + st.Ripple/2
	values[board.ChannelTemperature] = st.Temperature
	s.ADC.sample(values)

	s.elapsed += s.period
	s.Clock.Set(uint32(s.elapsed / time.Millisecond))
	s.Node.Step(s.Clock.Millis())
}

// Run steps the simulation for d of simulated time without pacing.
func (s *Sim) Run(d time.Duration) {
	end := s.elapsed + d
	for s.elapsed < end {
		s.Step()
	}
}

// WaitPeriod advances one period and, when paced, sleeps to keep simulated
// time at speed times wall time.
func (s *Sim) WaitPeriod(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Step()

	if s.speed <= 0 || s.elapsed-s.pacedAt < paceQuantum {
		return nil
	}
	s.pacedAt = s.elapsed

	target := s.wallStart.Add(time.Duration(float64(s.elapsed-s.simStart) / s.speed))
	wait := time.Until(target)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

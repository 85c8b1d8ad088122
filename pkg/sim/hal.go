// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/fuelboost/pkg/board"
)

// adcMax is the full scale of the 12-bit converter.
const adcMax = 4095

// temperatureConversionPeriods is how many PWM periods a temperature
// conversion takes.
const temperatureConversionPeriods = 20

// Calibration returns the channel scaling of the simulated board.
func Calibration() [board.ChannelCount]board.Calibration {
	var cal [board.ChannelCount]board.Calibration
	cal[board.ChannelVoltageIn] = board.Calibration{Gain: 70.0 / adcMax}
	cal[board.ChannelVoltageOut] = board.Calibration{Gain: 70.0 / adcMax}
	cal[board.ChannelCurrentInA] = board.Calibration{Gain: 40.0 / adcMax}
	cal[board.ChannelCurrentInB] = board.Calibration{Gain: 40.0 / adcMax}
	cal[board.ChannelTemperature] = board.Calibration{Gain: 200.0 / adcMax, Offset: -40}
	return cal
}

// ADC converts plant values to raw counts. Conversions complete on the next
// plant step, temperature after temperatureConversionPeriods. It is driven
// from the control core only.
type ADC struct {
	cal   [board.ChannelCount]board.Calibration
	noise float64
	rng   *rand.Rand

	raw       [board.ChannelCount]uint16
	pending   [board.ChannelCount]int // periods left, 0 when idle
	completed [board.ChannelCount]bool
}

// NewADC creates an ADC with the given peak noise in counts.
func NewADC(noise float64, seed uint64) *ADC {
	return &ADC{
		cal:   Calibration(),
		noise: noise,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
	}
}

func (a *ADC) StartConversion(ch board.Channel) {
	a.completed[ch] = false
	a.pending[ch] = 1
	if ch == board.ChannelTemperature {
		a.pending[ch] = temperatureConversionPeriods
	}
}

func (a *ADC) ConversionComplete(ch board.Channel) bool {
	return a.completed[ch]
}

func (a *ADC) Read(ch board.Channel) uint16 {
	return a.raw[ch]
}

// sample advances pending conversions by one period, latching values that
// complete.
func (a *ADC) sample(values [board.ChannelCount]float64) {
	for ch := range a.pending {
		if a.pending[ch] == 0 {
			continue
		}
		a.pending[ch]--
		if a.pending[ch] == 0 {
			a.raw[ch] = a.quantize(board.Channel(ch), values[ch])
			a.completed[ch] = true
		}
	}
}

func (a *ADC) quantize(ch board.Channel, v float64) uint16 {
	cal := a.cal[ch]
	counts := (v - cal.Offset) / cal.Gain
	if a.noise > 0 {
		counts += a.noise * (2*a.rng.Float64() - 1)
	}
	counts = math.Round(counts)
	return uint16(max(0, min(counts, adcMax)))
}

// PWM is the simulated power stage output with a trip-zone latch.
type PWM struct {
	mu      sync.Mutex
	duty    float64
	enabled bool
	tripped bool
	trips   uint64
}

func (p *PWM) SetDutyCycle(duty float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duty = max(0, min(duty, 1))
}

func (p *PWM) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

func (p *PWM) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// TakeTrip reports and clears a latched trip.
func (p *PWM) TakeTrip() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.tripped
	p.tripped = false
	return t
}

// Trips returns how many times the comparator fired.
func (p *PWM) Trips() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trips
}

// trip is the comparator: it stops switching in hardware and latches the
// event for the interrupt handler.
func (p *PWM) trip() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
	p.tripped = true
	p.trips++
}

func (p *PWM) output() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty, p.enabled
}

// Relay is the simulated input relay.
type Relay struct {
	on atomic.Bool
}

func (r *Relay) Set(on bool) { r.on.Store(on) }
func (r *Relay) On() bool    { return r.on.Load() }

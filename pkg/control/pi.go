// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package control provides the discrete-time controllers and filters used by
// the converter's interrupt-rate control loop.
//
// All controllers run at a fixed period Dt (the reciprocal of the switching
// frequency) and keep their output inside [OutMin, OutMax] after every call to
// Process.
package control

import "math"

// Controller is a single-input, single-output discrete controller.
type Controller interface {
	Process(reference, measurement float64)
	Output() float64
	Reset()
	SetLimits(outMin, outMax float64)
}

// PIConfig holds the gains and output bounds of a PI controller.
type PIConfig struct {
	KP     float64
	KI     float64
	KC     float64 // anti-windup gain, back-calculation only
	Dt     float64
	OutMin float64
	OutMax float64
}

// ClampedPI is a PI controller with anti-windup by clamping.
//
// When the unclamped output leaves the bounds the output is clamped and the
// integrator is set to bound - proportional, so the integral term stops
// accumulating while saturated.
type ClampedPI struct {
	cfg        PIConfig
	integrator float64
	output     float64
	lastError  float64
}

// NewClampedPI creates a clamped PI controller.
func NewClampedPI(cfg PIConfig) *ClampedPI {
	return &ClampedPI{cfg: cfg}
}

// Process runs one controller step.
//
// A non-finite error leaves the controller state untouched.
func (c *ClampedPI) Process(reference, measurement float64) {
	err := reference - measurement
	if !finite(err) {
		c.output = clamp(c.output, c.cfg.OutMin, c.cfg.OutMax)
		return
	}

	// Trapezoidal integration into a trial sum
	trial := c.integrator + c.cfg.KI*c.cfg.Dt*(err+c.lastError)/2
	proportional := c.cfg.KP * err
	unclamped := proportional + trial

	switch {
	case unclamped > c.cfg.OutMax:
		c.output = c.cfg.OutMax
		c.integrator = c.cfg.OutMax - proportional
	case unclamped < c.cfg.OutMin:
		c.output = c.cfg.OutMin
		c.integrator = c.cfg.OutMin - proportional
	default:
		c.output = unclamped
		c.integrator = trial
	}

	c.lastError = err
}

// Output returns the result of the last Process call.
func (c *ClampedPI) Output() float64 {
	return c.output
}

// Integrator returns the stored integral term.
func (c *ClampedPI) Integrator() float64 {
	return c.integrator
}

// Reset zeroes the dynamic state; gains and bounds are kept.
func (c *ClampedPI) Reset() {
	c.integrator = 0
	c.output = 0
	c.lastError = 0
}

// SetLimits moves the output bounds and re-clamps the current output.
func (c *ClampedPI) SetLimits(outMin, outMax float64) {
	c.cfg.OutMin = outMin
	c.cfg.OutMax = outMax
	c.output = clamp(c.output, outMin, outMax)
}

// Limits returns the current output bounds.
func (c *ClampedPI) Limits() (float64, float64) {
	return c.cfg.OutMin, c.cfg.OutMax
}

// BackCalcPI is a PI controller with back-calculation anti-windup.
//
// The clamping error of one step, scaled by KC, is subtracted from the
// integrator on the following step. KC is limited to [0, 1]; above 1 the
// correction overshoots the bound and the integrator oscillates between
// the limits with growing amplitude.
type BackCalcPI struct {
	cfg        PIConfig
	integrator float64
	output     float64
	correction float64
}

// NewBackCalcPI creates a back-calculation PI controller.
func NewBackCalcPI(cfg PIConfig) *BackCalcPI {
	cfg.KC = clamp(cfg.KC, 0, 1)
	return &BackCalcPI{cfg: cfg}
}

// Process runs one controller step.
//
// A non-finite error leaves the controller state untouched.
func (c *BackCalcPI) Process(reference, measurement float64) {
	err := reference - measurement
	if !finite(err) {
		c.output = clamp(c.output, c.cfg.OutMin, c.cfg.OutMax)
		return
	}

	c.integrator += c.cfg.KI*c.cfg.Dt*err - c.correction
	raw := c.cfg.KP*err + c.integrator
	c.output = clamp(raw, c.cfg.OutMin, c.cfg.OutMax)

	// Applied on the next step
	c.correction = c.cfg.KC * (raw - c.output)
}

// Output returns the result of the last Process call.
func (c *BackCalcPI) Output() float64 {
	return c.output
}

// Integrator returns the stored integral term.
func (c *BackCalcPI) Integrator() float64 {
	return c.integrator
}

// Correction returns the anti-windup term pending for the next step.
func (c *BackCalcPI) Correction() float64 {
	return c.correction
}

// Reset zeroes the dynamic state; gains and bounds are kept.
func (c *BackCalcPI) Reset() {
	c.integrator = 0
	c.output = 0
	c.correction = 0
}

// SetLimits moves the output bounds and re-clamps the current output.
func (c *BackCalcPI) SetLimits(outMin, outMax float64) {
	c.cfg.OutMin = outMin
	c.cfg.OutMax = outMax
	c.output = clamp(c.output, outMin, outMax)
}

// Limits returns the current output bounds.
func (c *BackCalcPI) Limits() (float64, float64) {
	return c.cfg.OutMin, c.cfg.OutMax
}

// clamp maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

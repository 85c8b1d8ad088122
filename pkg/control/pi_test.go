// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampedPI_SaturatesAgainstProportional(t *testing.T) {
	pi := NewClampedPI(PIConfig{KP: 1, KI: 0.1, Dt: 0.001, OutMin: 0, OutMax: 0.7})

	pi.Process(100, 0)

	assert.Equal(t, 0.7, pi.Output())
	assert.InDelta(t, 0.7-100*1, pi.Integrator(), 1e-9)
}

func TestClampedPI_SecondStepUsesClampRelativeIntegrator(t *testing.T) {
	pi := NewClampedPI(PIConfig{KP: 1, KI: 0.1, Dt: 0.001, OutMin: 0, OutMax: 0.7})

	pi.Process(100, 0)
	assert.InDelta(t, -99.3, pi.Integrator(), 1e-9)

	// err=0.3, trial=-99.3+0.1*0.001*(0.3+100)/2, still below OutMin
	pi.Process(0.5, 0.2)
	assert.Equal(t, 0.0, pi.Output())
	assert.InDelta(t, 0-0.3, pi.Integrator(), 1e-9)
}

func TestClampedPI_TrapezoidalIntegration(t *testing.T) {
	pi := NewClampedPI(PIConfig{KP: 0, KI: 1, Dt: 0.1, OutMin: -10, OutMax: 10})

	pi.Process(1, 0)
	assert.InDelta(t, 0.05, pi.Output(), 1e-12)

	pi.Process(1, 0)
	assert.InDelta(t, 0.15, pi.Output(), 1e-12)

	pi.Process(3, 0)
	assert.InDelta(t, 0.35, pi.Output(), 1e-12)
}

func TestClampedPI_OutputAlwaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pi := NewClampedPI(PIConfig{KP: 2.5, KI: 40, Dt: 1e-4, OutMin: 0.05, OutMax: 0.9})

	for range 10000 {
		ref := rng.Float64()*200 - 100
		meas := rng.Float64()*200 - 100
		pi.Process(ref, meas)
		assert.GreaterOrEqual(t, pi.Output(), 0.05)
		assert.LessOrEqual(t, pi.Output(), 0.9)
	}
}

func TestClampedPI_EqualBoundsIsConstant(t *testing.T) {
	pi := NewClampedPI(PIConfig{KP: 3, KI: 1, Dt: 0.01, OutMin: 0.4, OutMax: 0.4})

	tests := []struct {
		name string
		ref  float64
		meas float64
	}{
		{"positive error", 10, 0},
		{"negative error", 0, 10},
		{"zero error", 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pi.Process(tt.ref, tt.meas)
			assert.Equal(t, 0.4, pi.Output())
		})
	}
}

func TestClampedPI_ResetKeepsBounds(t *testing.T) {
	pi := NewClampedPI(PIConfig{KP: 1, KI: 1, Dt: 0.01, OutMin: 0, OutMax: 1})
	pi.Process(5, 0)

	pi.Reset()

	assert.Equal(t, 0.0, pi.Output())
	assert.Equal(t, 0.0, pi.Integrator())
	lo, hi := pi.Limits()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)
}

func TestClampedPI_SetLimitsReclampsOutput(t *testing.T) {
	pi := NewClampedPI(PIConfig{KP: 1, Dt: 0.01, OutMin: 0, OutMax: 10})
	pi.Process(8, 0)
	assert.Equal(t, 8.0, pi.Output())

	pi.SetLimits(0, 5)

	assert.Equal(t, 5.0, pi.Output())
}

func TestBackCalcPI_CorrectionAppliedNextStep(t *testing.T) {
	pi := NewBackCalcPI(PIConfig{KP: 1, KI: 10, KC: 0.5, Dt: 0.01, OutMin: 0, OutMax: 1})

	// raw = 5 + 0.5 = 5.5, clamped to 1
	pi.Process(5, 0)
	assert.Equal(t, 1.0, pi.Output())
	assert.InDelta(t, 0.5, pi.Integrator(), 1e-12, "correction must not touch the current step")
	assert.InDelta(t, 0.5*(5.5-1), pi.Correction(), 1e-12)

	// integrator = 0.5 + 0.5 - 2.25
	pi.Process(5, 0)
	assert.InDelta(t, -1.25, pi.Integrator(), 1e-12)
	assert.Equal(t, 1.0, pi.Output())
	assert.InDelta(t, 0.5*(3.75-1), pi.Correction(), 1e-12)
}

func TestBackCalcPI_NoCorrectionInsideBounds(t *testing.T) {
	pi := NewBackCalcPI(PIConfig{KP: 0.1, KI: 1, KC: 2, Dt: 0.01, OutMin: -1, OutMax: 1})

	pi.Process(1, 0)
	pi.Process(1, 0)

	assert.Equal(t, 0.0, pi.Correction())
	assert.InDelta(t, 0.02, pi.Integrator(), 1e-12)
	assert.InDelta(t, 0.12, pi.Output(), 1e-12)
}

func TestBackCalcPI_OutputAlwaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pi := NewBackCalcPI(PIConfig{KP: -0.8, KI: -20, KC: 0.5, Dt: 5e-5, OutMin: 1, OutMax: 18})

	for range 10000 {
		pi.Process(rng.Float64()*10, rng.Float64()*10)
		assert.GreaterOrEqual(t, pi.Output(), 1.0)
		assert.LessOrEqual(t, pi.Output(), 18.0)
	}
}

func TestBackCalcPI_LargeKCStaysBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pi := NewBackCalcPI(PIConfig{KP: -0.8, KI: -20, KC: 5, Dt: 5e-5, OutMin: 1, OutMax: 18})

	for i := range 10000 {
		pi.Process(rng.Float64()*10, rng.Float64()*10)
		if !assert.False(t, math.IsNaN(pi.Integrator()) || math.IsInf(pi.Integrator(), 0), "step %d", i) {
			return
		}
		assert.GreaterOrEqual(t, pi.Output(), 1.0)
		assert.LessOrEqual(t, pi.Output(), 18.0)
	}
	assert.Less(t, math.Abs(pi.Integrator()), 100.0)
}

func TestPI_NonFiniteMeasurement(t *testing.T) {
	tests := []struct {
		name        string
		measurement float64
	}{
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := PIConfig{KP: 0.5, KI: 10, KC: 0.5, Dt: 0.01, OutMin: 1, OutMax: 18}
			controllers := map[string]Controller{
				"clamped":  NewClampedPI(cfg),
				"backcalc": NewBackCalcPI(cfg),
			}
			for name, pi := range controllers {
				pi.Process(5, 0)
				before := pi.Output()

				pi.Process(5, tt.measurement)

				assert.Equal(t, before, pi.Output(), name)
				pi.Process(5, 0)
				assert.False(t, math.IsNaN(pi.Output()), name)
				assert.GreaterOrEqual(t, pi.Output(), 1.0, name)
				assert.LessOrEqual(t, pi.Output(), 18.0, name)
			}
		})
	}
}

func TestClamp_NaNMapsToLowerBound(t *testing.T) {
	assert.Equal(t, -1.0, clamp(math.NaN(), -1, 1))
	assert.Equal(t, 1.0, clamp(math.Inf(1), -1, 1))
	assert.Equal(t, -1.0, clamp(math.Inf(-1), -1, 1))
}

func TestBackCalcPI_ResetClearsCorrection(t *testing.T) {
	pi := NewBackCalcPI(PIConfig{KP: 1, KI: 1, KC: 1, Dt: 0.1, OutMin: 0, OutMax: 1})
	pi.Process(10, 0)
	assert.NotZero(t, pi.Correction())

	pi.Reset()

	assert.Zero(t, pi.Correction())
	assert.Zero(t, pi.Integrator())
	assert.Zero(t, pi.Output())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package converter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/faults"
)

type fakeADC struct {
	raw        [board.ChannelCount]uint16
	incomplete [board.ChannelCount]bool
	started    [board.ChannelCount]int
}

func (a *fakeADC) StartConversion(ch board.Channel)         { a.started[ch]++ }
func (a *fakeADC) ConversionComplete(ch board.Channel) bool { return !a.incomplete[ch] }
func (a *fakeADC) Read(ch board.Channel) uint16             { return a.raw[ch] }

type fakePWM struct {
	duty    float64
	enabled bool
}

func (p *fakePWM) SetDutyCycle(d float64) { p.duty = d }
func (p *fakePWM) SetEnabled(on bool)     { p.enabled = on }
func (p *fakePWM) Enabled() bool          { return p.enabled }

type fakeRelay struct{ on bool }

func (r *fakeRelay) Set(on bool) { r.on = on }
func (r *fakeRelay) On() bool    { return r.on }

type fakeFuelCell struct {
	running       bool
	errorsEnabled bool
	minCell       float64
	starts        int
	stops         int
	startBusy     bool
}

func (f *fakeFuelCell) Start() bool             { f.starts++; return !f.startBusy }
func (f *fakeFuelCell) Stop() bool              { f.stops++; f.errorsEnabled = false; return true }
func (f *fakeFuelCell) IsRunning() bool         { return f.running }
func (f *fakeFuelCell) EnableErrors(on bool)    { f.errorsEnabled = on }
func (f *fakeFuelCell) ErrorsEnabled() bool     { return f.errorsEnabled }
func (f *fakeFuelCell) MinCellVoltage() float64 { return f.minCell }

type rig struct {
	adc   *fakeADC
	pwm   *fakePWM
	relay *fakeRelay
	clock *board.ManualClock
	log   *faults.Log
	fc    *fakeFuelCell
	conv  *Converter
}

// testConfig runs the loop at 100 Hz with a one second ramp and pass-through
// voltage and temperature filters.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SwitchingFrequency = 100
	cfg.RampSeconds = 1
	cfg.VoltageAlpha = 1
	cfg.TemperatureAlpha = 1
	cfg.TemperatureWindow = 1
	return cfg
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()

	r := &rig{
		adc:   &fakeADC{},
		pwm:   &fakePWM{},
		relay: &fakeRelay{},
		clock: &board.ManualClock{},
		fc:    &fakeFuelCell{minCell: 7},
	}
	r.log = faults.NewLog(r.clock.Millis)

	b := &board.Context{
		ADC:    r.adc,
		PWM:    r.pwm,
		Relay:  r.relay,
		Clock:  r.clock,
		Faults: r.log,
	}
	for ch := range b.Calibration {
		b.Calibration[ch] = board.Calibration{Gain: 0.01}
	}

	r.conv = New(cfg, b, r.fc)
	r.set(board.ChannelVoltageIn, 36)
	r.set(board.ChannelVoltageOut, 48)
	return r
}

func (r *rig) set(ch board.Channel, value float64) {
	r.adc.raw[ch] = uint16(math.Round(value * 100))
}

// tick advances the clock and runs one PWM period followed by one main loop
// pass.
func (r *rig) tick(ms uint32) {
	r.clock.Advance(ms)
	r.conv.ControlISR()
	r.conv.Run()
}

// force puts the converter into a state directly.
func (r *rig) force(s State) {
	r.conv.state = s
	r.conv.since = r.clock.Millis()
	if s.Delivering() {
		r.pwm.enabled = true
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CHARGING_START", StateChargingStart.String())
	assert.Equal(t, "WAIT", StateWait.String())
	assert.Equal(t, "STATE(42)", State(42).String())
	assert.Equal(t, "emergency_shutdown", EventEmergencyShutdown.String())
}

func TestConverter_Lifecycle(t *testing.T) {
	r := newRig(t, testConfig())
	require.Equal(t, StateStandby, r.conv.State())

	require.True(t, r.conv.Startup())
	assert.Equal(t, StateStartup, r.conv.State())
	assert.True(t, r.relay.on)
	assert.Equal(t, 1, r.fc.starts)

	r.fc.running = true
	r.tick(1) // first sample, input not yet stable
	assert.Equal(t, StateStartup, r.conv.State())
	r.tick(1)
	require.Equal(t, StateWait, r.conv.State())

	r.tick(999)
	assert.Equal(t, StateWait, r.conv.State())
	r.tick(1)
	require.Equal(t, StateReady, r.conv.State())

	require.True(t, r.conv.StartCharging())
	assert.Equal(t, StateChargingStart, r.conv.State())
	assert.True(t, r.pwm.enabled)

	for i := 0; i < 200 && r.conv.State() == StateChargingStart; i++ {
		r.tick(10)
	}
	require.Equal(t, StateCharging, r.conv.State())
	assert.Greater(t, r.pwm.duty, 0.0)

	r.conv.StopCharging()
	assert.Equal(t, StateReady, r.conv.State())
	assert.False(t, r.pwm.enabled)

	r.conv.Shutdown()
	assert.Equal(t, StateWait, r.conv.State())
	assert.Equal(t, 1, r.fc.stops)

	r.tick(2000)
	assert.Equal(t, StateShutdown, r.conv.State())
	r.tick(1)
	assert.Equal(t, StateStandby, r.conv.State())
	assert.False(t, r.relay.on)
	assert.False(t, r.log.HasErrors())
}

func TestConverter_StartupRefused(t *testing.T) {
	tests := []struct {
		name  string
		fault func(*faults.Log)
	}{
		{"error present", func(l *faults.Log) { l.Raise(faults.ErrOverTemperature) }},
		{"battery charged", func(l *faults.Log) { l.Warn(faults.WarnBatteryCharged) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig())
			tt.fault(r.log)

			assert.False(t, r.conv.Startup())
			assert.False(t, r.conv.StartCharging())
			assert.Equal(t, StateStandby, r.conv.State())
			assert.False(t, r.relay.on)
			assert.Zero(t, r.fc.starts)
		})
	}
}

func TestConverter_OtherWarningsDoNotBlockStart(t *testing.T) {
	r := newRig(t, testConfig())
	r.log.Warn(faults.WarnCanBus)

	assert.True(t, r.conv.Startup())
}

func TestConverter_StartupRefusedWhenStartRequestOverruns(t *testing.T) {
	r := newRig(t, testConfig())
	r.fc.startBusy = true

	assert.False(t, r.conv.Startup())
	assert.Equal(t, StateStandby, r.conv.State())
	assert.False(t, r.relay.on)
	assert.Equal(t, 1, r.fc.starts)

	r.fc.startBusy = false
	assert.True(t, r.conv.Startup())
	assert.Equal(t, StateStartup, r.conv.State())
	assert.True(t, r.relay.on)
}

func TestConverter_SetRelay(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *rig)
		on      bool
		want    bool
		relay   bool
	}{
		{"close in standby", func(*rig) {}, true, true, true},
		{"open in standby", func(r *rig) { r.relay.on = true }, false, true, false},
		{"close with error present", func(r *rig) { r.log.Raise(faults.ErrOverTemperature) }, true, false, false},
		{"open with error present", func(r *rig) { r.relay.on = true; r.log.Raise(faults.ErrOverTemperature) }, false, true, false},
		{"outside standby", func(r *rig) { r.force(StateReady); r.relay.on = true }, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, testConfig())
			tt.prepare(r)

			assert.Equal(t, tt.want, r.conv.SetRelay(tt.on))
			assert.Equal(t, tt.relay, r.relay.on)
		})
	}
}

func TestConverter_StartupEnablesRemoteErrors(t *testing.T) {
	r := newRig(t, testConfig())
	require.True(t, r.conv.Startup())

	r.tick(5000)
	assert.False(t, r.fc.errorsEnabled)
	r.tick(1)
	assert.True(t, r.fc.errorsEnabled)
}

func TestConverter_StartupTimeout(t *testing.T) {
	r := newRig(t, testConfig())
	require.True(t, r.conv.Startup())

	r.tick(60000)
	assert.False(t, r.log.Has(faults.ErrFuelCellStartupFailed))

	r.tick(1)
	assert.True(t, r.log.Has(faults.ErrFuelCellStartupFailed))
	assert.Equal(t, StateStartup, r.conv.State())

	// Acted on at the next tick
	r.tick(1)
	assert.Equal(t, StateStandby, r.conv.State())
	assert.False(t, r.relay.on)
	assert.Equal(t, 1, r.fc.stops)
}

func TestConverter_ErrorsLeadTowardShutdown(t *testing.T) {
	states := []State{
		StateStandby,
		StateStartup,
		StateReady,
		StateChargingStart,
		StateCharging,
		StateChargingStop,
		StateShutdown,
	}

	for _, s := range states {
		t.Run(s.String(), func(t *testing.T) {
			r := newRig(t, testConfig())
			r.force(s)
			r.log.Raise(faults.ErrOverTemperature)

			r.conv.Run()
			next := r.conv.State()

			assert.False(t, r.pwm.enabled)
			assert.False(t, next.Delivering(), "moved to %s", next)
			if next == StateWait {
				assert.False(t, r.conv.wait.hasNext && r.conv.wait.next.Delivering())
			}
			if next != s {
				assert.Contains(t, []State{StateWait, StateShutdown, StateStandby}, next)
			}
		})
	}
}

func TestConverter_WaitWithoutNextFallsBackToShutdown(t *testing.T) {
	r := newRig(t, testConfig())
	r.force(StateReady)

	r.conv.waitThenShutdown(100)
	r.tick(99)
	assert.Equal(t, StateWait, r.conv.State())

	r.tick(1)
	assert.Equal(t, StateShutdown, r.conv.State())
	r.tick(1)
	assert.Equal(t, StateStandby, r.conv.State())
}

func TestConverter_WaitStopsSwitchingOnError(t *testing.T) {
	r := newRig(t, testConfig())
	r.force(StateReady)
	r.conv.waitThen(StateReady, 1000)
	r.pwm.enabled = true

	r.log.Raise(faults.ErrConnectionLost)
	r.tick(1)

	assert.Equal(t, StateWait, r.conv.State())
	assert.False(t, r.pwm.enabled)
}

func TestConverter_RampIsMonotonic(t *testing.T) {
	cfg := testConfig()
	r := newRig(t, cfg)
	r.force(StateReady)
	require.True(t, r.conv.StartCharging())

	step := cfg.RampStep()
	last := r.conv.CurrentInRef()
	assert.Equal(t, cfg.CurrentInMin, last)

	ticks := 0
	for r.conv.State() == StateChargingStart {
		r.tick(10)
		ref := r.conv.CurrentInRef()
		require.GreaterOrEqual(t, ref, last)
		last = ref
		ticks++
		require.Less(t, ticks, 1000)
	}

	assert.Equal(t, StateCharging, r.conv.State())
	assert.InDelta(t, cfg.CurrentInMax, last, step)
	assert.Equal(t, cfg.CurrentInMax, last)
}

func TestConverter_ChargingStopsOnBatteryCharged(t *testing.T) {
	cfg := testConfig()
	r := newRig(t, cfg)
	r.force(StateCharging)
	r.conv.setCurrentInRef(cfg.CurrentInMax)

	r.set(board.ChannelVoltageOut, cfg.BatteryFull+0.5)
	r.tick(10)
	require.True(t, r.log.HasWarning(faults.WarnBatteryCharged))
	require.Equal(t, StateChargingStop, r.conv.State())
	assert.False(t, r.log.HasErrors())

	last := r.conv.CurrentInRef()
	for i := 0; i < 1000 && r.conv.State() == StateChargingStop; i++ {
		r.tick(10)
		require.LessOrEqual(t, r.conv.CurrentInRef(), last)
		last = r.conv.CurrentInRef()
	}

	assert.Equal(t, StateReady, r.conv.State())
	assert.Equal(t, cfg.CurrentInMin, r.conv.CurrentInRef())
	assert.False(t, r.pwm.enabled)

	// The warning blocks a new start but is not an error
	assert.False(t, r.conv.StartCharging())
	r.tick(10)
	assert.Equal(t, StateReady, r.conv.State())
}

func TestConverter_EmergencyShutdown(t *testing.T) {
	r := newRig(t, testConfig())
	r.force(StateCharging)

	r.conv.EmergencyShutdown()
	assert.Equal(t, StateShutdown, r.conv.State())
	assert.False(t, r.pwm.enabled)
	assert.Equal(t, 1, r.fc.stops)

	r.tick(1)
	assert.Equal(t, StateStandby, r.conv.State())
}

func TestConverter_EmergencyShutdownInStandby(t *testing.T) {
	r := newRig(t, testConfig())
	r.relay.on = true

	r.conv.EmergencyShutdown()
	assert.Equal(t, StateStandby, r.conv.State())
	assert.False(t, r.relay.on)
	assert.Equal(t, 1, r.fc.stops)
}

func TestConverter_ShutdownFromWaitStopsPWM(t *testing.T) {
	r := newRig(t, testConfig())
	r.force(StateReady)
	r.conv.waitThen(StateReady, 1000)
	r.pwm.enabled = true

	r.conv.Shutdown()
	assert.False(t, r.pwm.enabled)
	assert.Equal(t, StateWait, r.conv.State())
}

func TestConverter_ResetClearsCritical(t *testing.T) {
	r := newRig(t, testConfig())
	r.force(StateCharging)
	r.log.Raise(faults.ErrOverCurrentIn)

	r.log.Reset()
	assert.True(t, r.log.Has(faults.ErrOverCurrentIn))

	r.conv.Reset()
	assert.False(t, r.log.HasErrors())
	assert.Equal(t, StateStandby, r.conv.State())
	assert.False(t, r.pwm.enabled)
	assert.Equal(t, 1, r.fc.stops)
}

func TestConverter_SetCurrentInLimit(t *testing.T) {
	cfg := testConfig()
	r := newRig(t, cfg)
	r.force(StateCharging)
	r.conv.setCurrentInRef(cfg.CurrentInMax)

	assert.False(t, r.conv.SetCurrentInLimit(cfg.CurrentInMax+1))
	assert.False(t, r.conv.SetCurrentInLimit(cfg.CurrentInMin-1))

	require.True(t, r.conv.SetCurrentInLimit(10))
	assert.Equal(t, 10.0, r.conv.CurrentInRef())
	_, upper := r.conv.currentRef.Limits()
	assert.Equal(t, 10.0, upper)

	require.True(t, r.conv.SetCurrentInLimit(15))
	assert.Equal(t, 10.0, r.conv.CurrentInRef())
	r.tick(10)
	assert.Equal(t, 15.0, r.conv.CurrentInRef())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero frequency", func(c *Config) { c.SwitchingFrequency = 0 }},
		{"inverted current", func(c *Config) { c.CurrentInMin = 30 }},
		{"duty above one", func(c *Config) { c.DutyMax = 1.2 }},
		{"zero alpha", func(c *Config) { c.VoltageAlpha = 0 }},
		{"empty window", func(c *Config) { c.CurrentWindow = 0 }},
	}

	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_RampStep(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 18.0/(60*20000), cfg.RampStep(), 1e-15)
}

func TestNew_PanicsOnIncompleteBoard(t *testing.T) {
	assert.Panics(t, func() {
		New(DefaultConfig(), &board.Context{}, &fakeFuelCell{})
	})
}

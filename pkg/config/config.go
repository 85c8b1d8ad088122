// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads runtime settings from a .env file and the process
// environment. Every variable is optional and overrides a built-in default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Thermoquad/fuelboost/pkg/firmware"
	"github.com/Thermoquad/fuelboost/pkg/sim"
	"github.com/Thermoquad/fuelboost/pkg/telemetry"
)

// Prefix is the prefix of every device variable.
const Prefix = "FUELBOOST_"

// DefaultEnvFile is read when no file is named.
const DefaultEnvFile = ".env"

// Settings is the complete runtime configuration.
type Settings struct {
	Firmware firmware.Config
	Sim      sim.Config
	MQTT     telemetry.Options
	Password string // host WebSocket password
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	s := Settings{
		Firmware: firmware.DefaultConfig(),
		Sim:      sim.DefaultConfig(),
	}
	s.sync()
	return s
}

// Load reads envFile into the environment and builds settings from it.
// Variables already set in the environment win over the file. A missing
// default file is not an error; a missing named file is.
func Load(envFile string) (Settings, error) {
	name := envFile
	if name == "" {
		name = DefaultEnvFile
	}
	if err := godotenv.Load(name); err != nil {
		if envFile != "" || !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("config: load %s: %w", name, err)
		}
	} else {
		log.Printf("config: loaded %s", name)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds settings from a variable lookup.
func FromEnv(lookup func(string) (string, bool)) (Settings, error) {
	s := Settings{
		Firmware: firmware.DefaultConfig(),
		Sim:      sim.DefaultConfig(),
	}

	for _, b := range s.bindings() {
		v, ok := lookup(b.name)
		if !ok {
			continue
		}
		if err := set(b.ptr, strings.TrimSpace(v)); err != nil {
			return Settings{}, fmt.Errorf("config: %s: %w", b.name, err)
		}
	}
	s.sync()

	if err := s.Firmware.Validate(); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	if err := s.Sim.Validate(); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// sync copies the shared hardware description from the firmware settings to
// the simulator so both sides agree on the stack and the trip level.
func (s *Settings) sync() {
	fc := s.Firmware.FuelCell
	s.Sim.Cells = fc.CellCount
	s.Sim.BaseID = fc.BaseID
	s.Sim.TPDOID = fc.TPDOID
	s.Sim.SwitchingFrequency = s.Firmware.Converter.SwitchingFrequency
	s.Sim.TripCurrent = s.Firmware.Converter.CurrentInTrip

	if s.MQTT.ClientID == "" {
		s.MQTT.ClientID = "fuelboost-" + strings.ToLower(s.Firmware.Name)
	}
}

type binding struct {
	name string
	ptr  any
}

func (s *Settings) bindings() []binding {
	fw := &s.Firmware
	conv := &s.Firmware.Converter
	fc := &s.Firmware.FuelCell

	return []binding{
		{Prefix + "NAME", &fw.Name},
		{Prefix + "SERIAL", &fw.Serial},
		{Prefix + "ADDRESS", &fw.Address},
		{Prefix + "TELEMETRY_INTERVAL", &fw.TelemetryInterval},
		{Prefix + "LINK_STATS_INTERVAL", &fw.LinkStatsInterval},
		{Prefix + "COMM_POLL", &fw.CommPoll},
		{Prefix + "PASSWORD", &s.Password},

		{Prefix + "SWITCHING_FREQUENCY", &conv.SwitchingFrequency},
		{Prefix + "MIN_CELL_VOLTAGE", &conv.MinCellVoltage},
		{Prefix + "CURRENT_IN_MIN", &conv.CurrentInMin},
		{Prefix + "CURRENT_IN_MAX", &conv.CurrentInMax},
		{Prefix + "CURRENT_IN_TRIP", &conv.CurrentInTrip},
		{Prefix + "RAMP_SECONDS", &conv.RampSeconds},
		{Prefix + "VOLTAGE_IN_MIN", &conv.VoltageInMin},
		{Prefix + "VOLTAGE_IN_MAX", &conv.VoltageInMax},
		{Prefix + "VOLTAGE_OUT_MIN", &conv.VoltageOutMin},
		{Prefix + "VOLTAGE_OUT_MAX", &conv.VoltageOutMax},
		{Prefix + "TEMPERATURE_MAX", &conv.TemperatureMax},
		{Prefix + "BATTERY_FULL", &conv.BatteryFull},
		{Prefix + "STARTUP_TIMEOUT", &conv.StartupTimeout},
		{Prefix + "READY_DELAY", &conv.ReadyDelay},
		{Prefix + "SHUTDOWN_DELAY", &conv.ShutdownDelay},
		{Prefix + "ERROR_ENABLE_DELAY", &conv.ErrorEnableDelay},

		{Prefix + "CELLS", &fc.CellCount},
		{Prefix + "BASE_ID", &fc.BaseID},
		{Prefix + "TPDO_ID", &fc.TPDOID},
		{Prefix + "TPDO_PERIOD", &fc.TPDOPeriod},
		{Prefix + "CELL_ERROR_DELAY", &fc.ErrorDelay},
		{Prefix + "LINK_TIMEOUT", &fc.LinkTimeout},

		{Prefix + "SIM_CELL_VOC", &s.Sim.CellVoc},
		{Prefix + "SIM_INITIAL_CHARGE", &s.Sim.InitialCharge},
		{Prefix + "SIM_AMBIENT", &s.Sim.Ambient},
		{Prefix + "SIM_NOISE", &s.Sim.Noise},
		{Prefix + "SIM_SEED", &s.Sim.Seed},

		{"MQTT_BROKER", &s.MQTT.Broker},
		{"MQTT_USERNAME", &s.MQTT.Username},
		{"MQTT_PASSWORD", &s.MQTT.Password},
		{"MQTT_CLIENT_ID", &s.MQTT.ClientID},
	}
}

// set parses v into the variable ptr points to. Integers accept a 0x prefix.
func set(ptr any, v string) error {
	switch p := ptr.(type) {
	case *string:
		*p = v
	case *float64:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*p = f
	case *int:
		n, err := strconv.ParseInt(v, 0, strconv.IntSize)
		if err != nil {
			return err
		}
		*p = int(n)
	case *uint16:
		n, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			return err
		}
		*p = uint16(n)
	case *uint32:
		n, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return err
		}
		*p = uint32(n)
	case *uint64:
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return err
		}
		*p = n
	case *time.Duration:
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*p = d
	default:
		panic(fmt.Sprintf("config: unsupported variable type %T", ptr))
	}
	return nil
}

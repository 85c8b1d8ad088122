// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fuelboost/pkg/firmware"
	"github.com/Thermoquad/fuelboost/pkg/sim"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	s, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, firmware.DefaultConfig(), s.Firmware)
	assert.Equal(t, sim.DefaultConfig(), s.Sim)
	assert.Equal(t, "fuelboost-fb01", s.MQTT.ClientID)
	assert.Equal(t, Defaults(), s)
}

func TestFromEnv_Overrides(t *testing.T) {
	s, err := FromEnv(env(map[string]string{
		"FUELBOOST_NAME":             "FB07",
		"FUELBOOST_ADDRESS":          "0xC2",
		"FUELBOOST_COMM_POLL":        "2ms",
		"FUELBOOST_CELLS":            " 6 ",
		"FUELBOOST_BASE_ID":          "0x190",
		"FUELBOOST_MIN_CELL_VOLTAGE": "6.2",
		"FUELBOOST_CURRENT_IN_TRIP":  "30",
		"FUELBOOST_SIM_SEED":         "42",
		"FUELBOOST_PASSWORD":         "secret",
		"MQTT_BROKER":                "broker.local",
		"MQTT_USERNAME":              "fb",
	}))
	require.NoError(t, err)

	assert.Equal(t, "FB07", s.Firmware.Name)
	assert.Equal(t, uint64(0xC2), s.Firmware.Address)
	assert.Equal(t, 2*time.Millisecond, s.Firmware.CommPoll)
	assert.Equal(t, 6, s.Firmware.FuelCell.CellCount)
	assert.Equal(t, uint16(0x190), s.Firmware.FuelCell.BaseID)
	assert.Equal(t, 6.2, s.Firmware.Converter.MinCellVoltage)
	assert.Equal(t, "secret", s.Password)
	assert.Equal(t, "broker.local", s.MQTT.Broker)
	assert.Equal(t, "fb", s.MQTT.Username)
	assert.Equal(t, "fuelboost-fb07", s.MQTT.ClientID)

	// Simulator follows the firmware hardware description
	assert.Equal(t, 6, s.Sim.Cells)
	assert.Equal(t, uint16(0x190), s.Sim.BaseID)
	assert.Equal(t, 30.0, s.Sim.TripCurrent)
	assert.Equal(t, uint64(42), s.Sim.Seed)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"not a number", map[string]string{"FUELBOOST_SERIAL": "one"}},
		{"overflow", map[string]string{"FUELBOOST_BASE_ID": "0x10000"}},
		{"bad duration", map[string]string{"FUELBOOST_COMM_POLL": "fast"}},
		{"name too long", map[string]string{"FUELBOOST_NAME": "FUELBOOST"}},
		{"too many cells", map[string]string{"FUELBOOST_CELLS": "9"}},
		{"bad charge", map[string]string{"FUELBOOST_SIM_INITIAL_CHARGE": "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.vars))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device.env")
	require.NoError(t, os.WriteFile(path, []byte("FUELBOOST_SERIAL=77\n"), 0o600))
	t.Setenv("FUELBOOST_SERIAL", "")
	require.NoError(t, os.Unsetenv("FUELBOOST_SERIAL"))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), s.Firmware.Serial)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device.env")
	require.NoError(t, os.WriteFile(path, []byte("FUELBOOST_TELEMETRY_INTERVAL=500\n"), 0o600))
	t.Setenv("FUELBOOST_TELEMETRY_INTERVAL", "250")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(250), s.Firmware.TelemetryInterval)
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, firmware.DefaultConfig().Name, s.Firmware.Name)
}

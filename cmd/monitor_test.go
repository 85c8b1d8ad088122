// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/config"
	"github.com/Thermoquad/fuelboost/pkg/converter"
	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

const testAddress = 0xB1

func newTestMonitor() monitorModel {
	settings = config.Defaults()
	return initialMonitorModel(nil, "test")
}

func TestMonitor_ProcessPackets(t *testing.T) {
	m := newTestMonitor()

	m.processPacket(hostlink.NewTelemetryPacket(testAddress, hostlink.Telemetry{State: converter.StateStartup, VoltageIn: 12}))
	m.processPacket(hostlink.NewTelemetryPacket(testAddress, hostlink.Telemetry{State: converter.StateReady, VoltageIn: 38.5}))
	require.True(t, m.hasTelemetry)
	assert.Equal(t, converter.StateReady, m.telemetry.State)
	assert.Equal(t, 38.5, m.telemetry.VoltageIn)
	require.Len(t, m.eventLog, 1)
	assert.Equal(t, "STARTUP -> READY", m.eventLog[0].message)

	m.processPacket(hostlink.NewCellData(testAddress, 2, fuelcell.Cell{Valid: true, CellVoltage: 7.5}))
	require.Len(t, m.cells, 3)
	assert.False(t, m.cells[0].Valid)
	assert.Equal(t, 7.5, m.cells[2].CellVoltage)
	assert.Len(t, m.cellList.Items(), 3)

	m.processPacket(hostlink.NewFaultReport(testAddress, hostlink.FaultReport{Errors: faults.ErrOverTemperature, Time: 42, Text: "heatsink hot"}))
	last := m.eventLog[len(m.eventLog)-1]
	assert.Equal(t, "[42] heatsink hot", last.message)
	assert.True(t, last.isError)

	m.processPacket(hostlink.NewLinkStatsPacket(testAddress, hostlink.LinkStats{RxFrames: 10, ValidFrames: 9}))
	assert.True(t, m.hasLink)
	assert.Equal(t, uint64(9), m.link.ValidFrames)

	m.processPacket(hostlink.NewPingResponse(testAddress, 90061000))
	assert.True(t, m.hasUptime)
	assert.Equal(t, uint64(90061000), m.uptime)

	m.processPacket(hostlink.NewErrorBusy(testAddress, canopen.NewReadRequest(0x2000, 0).Pack()))
	assert.Contains(t, m.eventLog[len(m.eventLog)-1].message, "busy")

	view := m.View()
	assert.Contains(t, view, "READY")
	assert.Contains(t, view, "Cell 1")
	assert.Contains(t, view, "1 day")
}

func TestMonitor_SubmitLimitRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not a number", "abc"},
		{"below minimum", "0.5"},
		{"above maximum", "99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor()
			m.limitInput.SetValue(tt.value)

			model, cmd := m.submitLimit()
			assert.Nil(t, cmd)
			got := model.(monitorModel)
			require.NotEmpty(t, got.eventLog)
			assert.True(t, got.eventLog[0].isError)
		})
	}
}

func TestMonitor_KeysWhileDisconnected(t *testing.T) {
	m := newTestMonitor()
	m.connectionLost = true

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Nil(t, cmd)
	got := model.(monitorModel)
	require.Len(t, got.eventLog, 1)
	assert.Contains(t, got.eventLog[0].message, "connection lost")

	model, _ = got.Update(tea.KeyMsg{Type: tea.KeyTab})
	got = model.(monitorModel)
	assert.Equal(t, focusLimitInput, got.focusedField)
	assert.True(t, got.limitInput.Focused())

	// Keys go to the input while it has focus
	model, _ = got.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	got = model.(monitorModel)
	assert.False(t, got.quitting)
	assert.Equal(t, "q", got.limitInput.Value())
}

func TestMonitor_TaskResult(t *testing.T) {
	s, _ := startDevice(t)
	cm := &connectionManager{s: s}
	m := initialMonitorModel(cm, "pipe")

	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)

	msg := cmd()
	require.IsType(t, commandResultMsg{}, msg)
	assert.NoError(t, msg.(commandResultMsg).err)

	model, _ = model.Update(msg)
	got := model.(monitorModel)
	assert.Equal(t, "reset faults: ok", got.eventLog[len(got.eventLog)-1].message)

	msg = cm.setCurrentLimit(10)()
	assert.NoError(t, msg.(commandResultMsg).err)
}

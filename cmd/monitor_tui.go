// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/fuelboost/pkg/firmware"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	pingIntervalSeconds = 5 // Send ping requests every N seconds
	maxLogEntries       = 100
)

// Focus states
const (
	focusCells = iota
	focusLimitInput
	focusCount
)

// monitorKeys maps keys to task entries.
var monitorKeys = map[string]struct {
	name  string
	index uint16
}{
	"s": {"startup", firmware.IndexTaskStartup},
	"x": {"shutdown", firmware.IndexTaskShutdown},
	"c": {"start charging", firmware.IndexTaskStartCharge},
	"t": {"stop charging", firmware.IndexTaskStopCharge},
	"e": {"emergency shutdown", firmware.IndexTaskEmergency},
	"r": {"reset faults", firmware.IndexTaskResetFaults},
	"R": {"device reset", firmware.IndexTaskDeviceReset},
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// cellItem is one fuel-cell row in the cell list
type cellItem struct {
	index int
	cell  fuelcell.Cell
}

func (c cellItem) Title() string { return fmt.Sprintf("Cell %d", c.index+1) }

func (c cellItem) Description() string {
	if !c.cell.Valid {
		return "no data"
	}
	return fmt.Sprintf("%.2f V  %.1f A  %.0f C  status %02X",
		c.cell.CellVoltage, c.cell.Current, c.cell.Temperature, uint8(c.cell.Status))
}

func (c cellItem) FilterValue() string { return strconv.Itoa(c.index + 1) }

type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	connMgr  *connectionManager
	connInfo string

	// Device data
	telemetry    hostlink.Telemetry
	hasTelemetry bool
	cells        []fuelcell.Cell
	cellList     list.Model
	link         hostlink.LinkStats
	hasLink      bool
	uptime       uint64
	hasUptime    bool

	stats    hostlink.Statistics
	eventLog []eventLogEntry

	limitInput   textinput.Model
	focusedField int

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
	lastPingTime   time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type monitorBatchMsg struct {
	packets []*hostlink.Packet
	stats   hostlink.Statistics
}

type commandResultMsg struct {
	name string
	err  error
}

type eventMsg struct {
	text    string
	isError bool
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(connMgr *connectionManager, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = fmt.Sprintf("%.1f", settings.Firmware.Converter.CurrentInMax)
	ti.CharLimit = 6
	ti.Width = 8

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	cellList := list.New([]list.Item{}, delegate, 40, 10)
	cellList.Title = "Fuel cells"
	cellList.SetShowStatusBar(false)
	cellList.SetShowHelp(false)
	cellList.SetFilteringEnabled(false)

	return monitorModel{
		connMgr:      connMgr,
		connInfo:     connInfo,
		cellList:     cellList,
		limitInput:   ti,
		focusedField: focusCells,
		width:        80,
		height:       24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return monitorTickCmd()
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.cellList.SetSize(40, max(m.height/3, 6))

	case monitorTickMsg:
		if !m.connectionLost && time.Since(m.lastPingTime) >= pingIntervalSeconds*time.Second {
			m.lastPingTime = time.Now()
			if m.connMgr != nil {
				m.connMgr.ping()
			}
		}
		return m, monitorTickCmd()

	case monitorBatchMsg:
		m.stats = msg.stats
		for _, p := range msg.packets {
			m.processPacket(p)
		}

	case commandResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.name, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s: ok", msg.name), false)
		}

	case eventMsg:
		m.addLogEntry(msg.text, msg.isError)

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.hasTelemetry = false
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.focusedField = (m.focusedField + 1) % focusCount
		if m.focusedField == focusLimitInput {
			m.limitInput.Focus()
		} else {
			m.limitInput.Blur()
		}
		return m, nil
	}

	if m.focusedField == focusLimitInput {
		if key == "enter" {
			return m.submitLimit()
		}
		var cmd tea.Cmd
		m.limitInput, cmd = m.limitInput.Update(msg)
		return m, cmd
	}

	if key == "q" {
		m.quitting = true
		return m, tea.Quit
	}

	if t, ok := monitorKeys[key]; ok {
		if m.connectionLost {
			m.addLogEntry("Cannot send command: connection lost", true)
			return m, nil
		}
		m.addLogEntry(fmt.Sprintf("Sending %s", t.name), false)
		return m, m.connMgr.task(t.name, t.index)
	}

	var cmd tea.Cmd
	m.cellList, cmd = m.cellList.Update(msg)
	return m, cmd
}

func (m monitorModel) submitLimit() (tea.Model, tea.Cmd) {
	value := m.limitInput.Value()
	if value == "" {
		value = m.limitInput.Placeholder
	}

	amps, err := strconv.ParseFloat(value, 64)
	cfg := settings.Firmware.Converter
	if err != nil || amps < cfg.CurrentInMin || amps > cfg.CurrentInMax {
		m.addLogEntry(fmt.Sprintf("Current limit must be between %.1f and %.1f A", cfg.CurrentInMin, cfg.CurrentInMax), true)
		return m, nil
	}
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}

	m.limitInput.SetValue("")
	return m, m.connMgr.setCurrentLimit(amps)
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	s.WriteString(titleStyle.Render("FUELBOOST MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=focus", connStatus)))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render("s=startup x=shutdown c=charge t=stop e=emergency r=reset faults R=device reset"))
	s.WriteString("\n\n")

	rightWidth := max(m.width-48, 30)
	converterPanel := boxStyle.Width(rightWidth).Render(m.renderConverter())
	cellStyle := boxStyle
	if m.focusedField == focusCells {
		cellStyle = focusedBoxStyle
	}
	cellPanel := cellStyle.Width(42).Render(m.cellList.View())

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cellPanel, " ", converterPanel))
	s.WriteString("\n")
	s.WriteString(m.renderLimitInput())
	s.WriteString("\n")
	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n")
	s.WriteString(m.renderEventLog())

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

func field(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(label), valueStyle.Render(value))
}

func (m monitorModel) renderConverter() string {
	if !m.hasTelemetry {
		return "No telemetry data"
	}
	t := m.telemetry

	lines := []string{
		field("State:", fmt.Sprintf("%s (%s)", t.State, formatUptime(uint64(t.StateTime)))),
		field("Input:", fmt.Sprintf("%.2f V  %.2f A", t.VoltageIn, t.CurrentIn)),
		field("Output:", fmt.Sprintf("%.2f V", t.VoltageOut)),
		field("Current:", fmt.Sprintf("ref %.2f A  limit %.2f A", t.CurrentInRef, t.CurrentInLimit)),
		field("Duty:", fmt.Sprintf("%.3f", t.DutyCycle)),
		field("Heatsink:", fmt.Sprintf("%.1f C", t.Temperature)),
	}

	errs := valueStyle.Render(t.Errors.String())
	if t.Errors != 0 {
		errs = errorStyle.Render(t.Errors.String())
	}
	lines = append(lines,
		fmt.Sprintf("%s %s", labelStyle.Render("Errors:"), errs),
		field("Warnings:", t.Warnings.String()))

	if m.hasUptime {
		lines = append(lines, field("Uptime:", formatUptime(m.uptime)))
	}
	return strings.Join(lines, "\n")
}

func (m monitorModel) renderLimitInput() string {
	style := boxStyle
	if m.focusedField == focusLimitInput {
		style = focusedBoxStyle
	}
	input := m.limitInput.View()
	if m.focusedField != focusLimitInput {
		val := m.limitInput.Value()
		if val == "" {
			val = m.limitInput.Placeholder
		}
		input = fmt.Sprintf("[%s]", val)
	}
	return style.Render(fmt.Sprintf("%s %s A (Enter to apply)", labelStyle.Render("Current limit:"), input))
}

func (m monitorModel) renderStatisticsBar() string {
	var validPercent, errorPercent float64
	if m.stats.TotalPackets > 0 {
		validPercent = float64(m.stats.ValidPackets) * 100.0 / float64(m.stats.TotalPackets)
		totalErrors := m.stats.CRCErrors + m.stats.DecodeErrors + m.stats.MalformedPackets + m.stats.AnomalousValues
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalPackets)
	}

	errText := valueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}
	content := fmt.Sprintf("%s  %s  %s %s  %s",
		field("Packets:", fmt.Sprintf("%d", m.stats.TotalPackets)),
		field("Valid:", fmt.Sprintf("%.1f%%", validPercent)),
		labelStyle.Render("Errors:"), errText,
		field("Rate:", fmt.Sprintf("%.1f pkt/s", m.stats.PacketRate)),
	)
	if m.hasLink {
		content += "\n" + fmt.Sprintf("%s  %s  %s  %s",
			field("CAN rx:", fmt.Sprintf("%d/%d", m.link.ValidFrames, m.link.RxFrames)),
			field("Framing:", fmt.Sprintf("%d", m.link.FramingErrors)),
			field("Overruns:", fmt.Sprintf("%d", m.link.RxOverruns)),
			field("Tx fail:", fmt.Sprintf("%d/%d", m.link.TxFailures, m.link.TxFrames)),
		)
	}
	return boxStyle.Width(max(m.width-4, 40)).Render(content)
}

func (m monitorModel) renderEventLog() string {
	var s strings.Builder
	s.WriteString(labelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	infoStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	}
	start := max(len(m.eventLog)-8, 0)
	for _, entry := range m.eventLog[start:] {
		icon, style := "i", infoStyle
		if entry.isError {
			icon, style = "x", errorStyle
		}
		s.WriteString(fmt.Sprintf("%s %s %s\n",
			headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message))
	}

	return boxStyle.Width(max(m.width-4, 40)).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *monitorModel) processPacket(p *hostlink.Packet) {
	switch p.Type() {
	case hostlink.MsgTelemetry:
		t, err := hostlink.DecodeTelemetry(p)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Bad telemetry: %v", err), true)
			return
		}
		if m.hasTelemetry && t.State != m.telemetry.State {
			m.addLogEntry(fmt.Sprintf("%s -> %s", m.telemetry.State, t.State), false)
		}
		m.telemetry = t
		m.hasTelemetry = true

	case hostlink.MsgCellData:
		index, cell, err := hostlink.DecodeCellData(p)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("Bad cell data: %v", err), true)
			return
		}
		for len(m.cells) <= index {
			m.cells = append(m.cells, fuelcell.Cell{})
		}
		m.cells[index] = cell
		m.updateCellList()

	case hostlink.MsgFaultReport:
		r, err := hostlink.DecodeFaultReport(p)
		if err != nil {
			return
		}
		m.addLogEntry(fmt.Sprintf("[%d] %s", r.Time, r.Text), r.Errors != 0)

	case hostlink.MsgLinkStats:
		if s, err := hostlink.DecodeLinkStats(p); err == nil {
			m.link = s
			m.hasLink = true
		}

	case hostlink.MsgPingResponse:
		if uptime, ok := hostlink.GetMapUint(p.PayloadMap(), 0); ok {
			m.uptime = uptime
			m.hasUptime = true
		}

	case hostlink.MsgErrorBusy:
		m.addLogEntry("Device busy: SDO request dropped", true)

	case hostlink.MsgErrorInvalidCmd:
		m.addLogEntry("Device rejected a command", true)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

func (m *monitorModel) updateCellList() {
	items := make([]list.Item, len(m.cells))
	for i, c := range m.cells {
		items[i] = cellItem{index: i, cell: c}
	}
	m.cellList.SetItems(items)
}

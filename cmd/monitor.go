// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/firmware"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for monitoring and controlling the charger",
	Long: `Monitor and control the charger via an interactive terminal UI.

Features:
  - Live converter telemetry and fuel-cell data
  - Startup, charging and shutdown tasks
  - Input current limit
  - Fault and event log
  - Automatic reconnection on connection loss

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// connectionManager handles the session lifecycle and reconnection
type connectionManager struct {
	mu   sync.RWMutex
	s    *session
	p    *tea.Program
	done chan struct{}
}

func (cm *connectionManager) session() *session {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.s
}

func (cm *connectionManager) setSession(s *session) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.s = s
}

func runMonitor(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}

	cm := &connectionManager{s: s, done: make(chan struct{})}
	p := tea.NewProgram(initialMonitorModel(cm, s.info), tea.WithAltScreen())
	cm.p = p

	go cm.run()

	_, err = p.Run()
	close(cm.done)
	cm.session().Close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// run forwards packets to the TUI, reconnecting when the session fails
func (cm *connectionManager) run() {
	for {
		s := cm.session()
		if err := s.Send(hostlink.NewTelemetryConfig(s.address, true, settings.Firmware.TelemetryInterval)); err != nil {
			cm.p.Send(eventMsg{text: fmt.Sprintf("Failed to enable telemetry: %v", err), isError: true})
		}

		if !cm.forward(s) {
			return
		}
		cm.p.Send(connectionLostMsg{err: s.Err()})

		if !cm.reconnect() {
			return
		}
	}
}

// forward sends batched packets to the TUI until the session ends. It
// returns false on shutdown.
func (cm *connectionManager) forward(s *session) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var batch []*hostlink.Packet
	for {
		select {
		case <-cm.done:
			return false
		case p, ok := <-s.Packets():
			if !ok {
				return true
			}
			batch = append(batch, p)
		case <-ticker.C:
			if len(batch) > 0 {
				cm.p.Send(monitorBatchMsg{packets: batch, stats: s.Statistics()})
				batch = nil
			}
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	_ = cm.session().Close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		s, err := openSession()
		if err == nil {
			cm.setSession(s)
			cm.p.Send(reconnectedMsg{connInfo: s.info})
			return true
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

// task returns a command that runs a task entry on the device.
func (cm *connectionManager) task(name string, index uint16) tea.Cmd {
	s := cm.session()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return commandResultMsg{name: name, err: s.Task(ctx, index)}
	}
}

// setCurrentLimit returns a command that writes the input current limit.
func (cm *connectionManager) setCurrentLimit(amps float64) tea.Cmd {
	s := cm.session()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := s.sdo.Write(ctx, firmware.IndexCurrentInLimit, 0, canopen.TypeFloat32, canopen.Float32Data(float32(amps)))
		return commandResultMsg{name: fmt.Sprintf("current limit %.1f A", amps), err: err}
	}
}

// ping sends a ping request; the response arrives with the packet batches.
func (cm *connectionManager) ping() {
	s := cm.session()
	_ = s.Send(hostlink.NewPingRequest(s.address))
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

var rawLogEnable bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display host-link packets as they arrive.

Shows each packet with timestamp, message type, address and decoded payload.
With --enable, a TELEMETRY_CONFIG is sent first so the device starts
streaming.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogEnable, "enable", false, "Enable telemetry streaming before logging")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Fuelboost - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if rawLogEnable {
		p := hostlink.NewTelemetryConfig(deviceAddress, true, settings.Firmware.TelemetryInterval)
		if err := hostlink.NewWriter(conn).Send(p); err != nil {
			return fmt.Errorf("enable telemetry: %w", err)
		}
	}

	r := hostlink.NewReader(conn)
	for {
		packet, err := r.Next()
		if err != nil {
			if hostlink.IsDecodeError(err) {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			return err
		}
		fmt.Print(hostlink.FormatPacket(packet))
	}
}

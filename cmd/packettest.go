// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

var packetTestTimeout int

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid host-link packet",
	Long: `Wait for a valid host-link packet on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
packet. It ignores invalid bytes and waits for a complete, valid packet
(passing CRC check). A TELEMETRY_CONFIG is sent first so an idle device has
something to say.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Fuelboost - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid packet...\n\n")

	enable := hostlink.NewTelemetryConfig(deviceAddress, true, settings.Firmware.TelemetryInterval)
	if err := hostlink.NewWriter(conn).Send(enable); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		os.Exit(2)
	}

	// Channel for packet reception
	packetChan := make(chan *hostlink.Packet, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		r := hostlink.NewReader(conn)
		decodeErrors := 0
		for {
			packet, err := r.Next()
			if err != nil {
				if hostlink.IsDecodeError(err) {
					decodeErrors++
					continue
				}
				errChan <- err
				return
			}
			if decodeErrors > 0 {
				fmt.Printf("(skipped %d invalid frames before sync)\n", decodeErrors)
			}
			packetChan <- packet
			return
		}
	}()

	// Wait for packet or timeout
	select {
	case packet := <-packetChan:
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  Type: %s (0x%02X)\n", hostlink.FormatMessageType(packet.Type()), packet.Type())
		fmt.Printf("  Address: 0x%016X\n", packet.Address())
		fmt.Printf("  Length: %d bytes\n", packet.Length())
		fmt.Printf("  CRC: 0x%04X\n", packet.CRC())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}

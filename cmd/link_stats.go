// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

var (
	showAll       bool
	statsInterval int
)

var linkStatsCmd = &cobra.Command{
	Use:   "link_stats",
	Short: "Detect host-link errors and report fuel-cell link statistics",
	Long: `Track host-link errors and the device's fuel-cell link counters.

This command enables telemetry streaming and then:
  - counts CRC errors, framing errors and malformed payloads on the host link
  - flags anomalous telemetry values (unknown state, impossible voltages)
  - prints every FAULT_REPORT and LINK_STATS packet from the device
  - prints periodic host-link statistics

By default, only errors and reports are displayed. Use --show-all to display
every packet.`,
	RunE: runLinkStats,
}

func init() {
	rootCmd.AddCommand(linkStatsCmd)
	linkStatsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	linkStatsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printValidationErrors prints validation errors for a packet
func printValidationErrors(packet *hostlink.Packet, errs []hostlink.ValidationError) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n",
		timestamp, hostlink.FormatMessageType(packet.Type()), packet.Type())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")
	for i, err := range errs {
		color := "1;33"
		if err.Type == hostlink.AnomalyLengthMismatch {
			color = "1;31"
		}
		fmt.Printf("  Issue %d: \033[%sm%s\033[0m\n", i+1, color, err.Message)
	}
	fmt.Printf("  >>> PACKET REJECTED <<<\n\n")
}

// printLinkStats prints the device's fuel-cell link counters
func printLinkStats(packet *hostlink.Packet) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	s, err := hostlink.DecodeLinkStats(packet)
	if err != nil {
		fmt.Printf("[%s] \033[1;31mLINK_STATS:\033[0m %v\n\n", timestamp, err)
		return
	}

	lossPercent := 0.0
	if s.RxFrames > 0 {
		lossPercent = float64(s.RxFrames-s.ValidFrames) * 100 / float64(s.RxFrames)
	}
	fmt.Printf("[%s] \033[1;32mLINK_STATS:\033[0m fuel-cell bus\n", timestamp)
	fmt.Printf("  RX: %d frames, %d valid (%.1f%% rejected)\n", s.RxFrames, s.ValidFrames, lossPercent)
	fmt.Printf("  Framing errors: %d, foreign IDs: %d, overruns: %d\n", s.FramingErrors, s.InvalidIDs, s.RxOverruns)
	fmt.Printf("  TX: %d frames, %d failures, %d commands\n\n", s.TxFrames, s.TxFailures, s.CommandsSent)
}

// printFaultReport prints a fault message from the device
func printFaultReport(packet *hostlink.Packet) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	r, err := hostlink.DecodeFaultReport(packet)
	if err != nil {
		fmt.Printf("[%s] \033[1;31mFAULT_REPORT:\033[0m %v\n\n", timestamp, err)
		return
	}
	fmt.Printf("[%s] \033[1;31mFAULT:\033[0m [%10d] %s\n", timestamp, r.Time, r.Text)
	fmt.Printf("  Errors: %s\n  Warnings: %s\n\n", r.Errors, r.Warnings)
}

func runLinkStats(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Fuelboost - Link Statistics\n")
	fmt.Printf("Connection: %s\n", s.info)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors and reports only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := s.Send(hostlink.NewTelemetryConfig(deviceAddress, true, settings.Firmware.TelemetryInterval)); err != nil {
		return fmt.Errorf("enable telemetry: %w", err)
	}

	// Statistics ticker
	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	lastErrors := uint64(0)
	for {
		select {
		case packet, ok := <-s.Packets():
			if !ok {
				if err := s.Err(); err != nil && !errors.Is(err, ErrConnectionClosed) {
					return err
				}
				return nil
			}

			if errs := hostlink.ValidatePacket(packet); len(errs) > 0 {
				printValidationErrors(packet, errs)
				continue
			}

			switch packet.Type() {
			case hostlink.MsgLinkStats:
				printLinkStats(packet)
			case hostlink.MsgFaultReport:
				printFaultReport(packet)
			case hostlink.MsgErrorInvalidCmd, hostlink.MsgErrorBusy:
				fmt.Print(hostlink.FormatPacket(packet))
			default:
				if showAll {
					fmt.Print(hostlink.FormatPacket(packet))
				}
			}

		case <-statsTicker.C:
			stats := s.Statistics()
			// Decode errors are counted by the session reader
			if n := stats.CRCErrors + stats.DecodeErrors; n > lastErrors {
				printDecodeError(fmt.Errorf("%d new framing errors", n-lastErrors))
				lastErrors = n
			}
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

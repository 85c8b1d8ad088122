// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Thermoquad/fuelboost/pkg/config"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	envFile       string
	deviceAddress uint64

	// settings is loaded before any command runs
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "fuelboost",
	Short: "Fuel-cell boost converter tools",
	Long: `Fuelboost - tools for the fuel-cell boost charger.

Runs a simulated converter board and talks to real or simulated boards over
the host link: raw packet logging, link diagnostics, object dictionary access
an interactive monitor and an object dictionary shell.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Settings are read from a .env file (--env) and FUELBOOST_* environment
variables. For WebSocket authentication, the password is read from the
FUELBOOST_PASSWORD variable, or prompted interactively if not set. The
--password flag is intentionally not provided to avoid leaking credentials in
shell history.`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

// loadSettings reads the settings file and environment before any command.
func loadSettings(cmd *cobra.Command, args []string) error {
	s, err := config.Load(envFile)
	if err != nil {
		return err
	}
	settings = s
	if !cmd.Flags().Changed("address") {
		deviceAddress = settings.Firmware.Address
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = loadSettings

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Settings file (default .env if present)")
	rootCmd.PersistentFlags().Uint64Var(&deviceAddress, "address", 0, "Device address (default from FUELBOOST_ADDRESS)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

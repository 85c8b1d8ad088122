// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package firmware assembles the converter from its parts and runs it on two
// cores.
//
// The control core owns the converter, the fuel-cell controller facade and
// the SDO service. It runs the PWM-period interrupt work and then one main
// loop pass per period. The comm core owns the fuel-cell link and the host
// link. The cores share nothing but the fault log, the clock and the flag
// registers and mailboxes in Shared.
package firmware

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/fuelboost/pkg/converter"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
)

// Config is the device configuration.
type Config struct {
	Name    string // four ASCII characters
	Serial  uint32
	Version string // four ASCII characters
	Build   uint32
	Address uint64 // host-link address

	Converter converter.Config
	FuelCell  fuelcell.Config

	TelemetryInterval uint32 // ms, 0 disables periodic telemetry
	LinkStatsInterval uint32 // ms, 0 disables
	CommPoll          time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Name:              "FB01",
		Serial:            1,
		Version:           "0.3",
		Build:             1,
		Address:           0x00000000000000B1,
		Converter:         converter.DefaultConfig(),
		FuelCell:          fuelcell.DefaultConfig(),
		TelemetryInterval: 100,
		LinkStatsInterval: 1000,
		CommPoll:          time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Name) == 0 || len(c.Name) > 4 {
		return fmt.Errorf("firmware: name %q must be 1 to 4 characters", c.Name)
	}
	if len(c.Version) > 4 {
		return fmt.Errorf("firmware: version %q longer than 4 characters", c.Version)
	}
	if c.Address == 0 || c.Address == ^uint64(0) {
		return errors.New("firmware: address must not be broadcast or stateless")
	}
	if c.CommPoll <= 0 {
		return errors.New("firmware: comm poll period must be positive")
	}
	if err := c.Converter.Validate(); err != nil {
		return err
	}
	return c.FuelCell.Validate()
}

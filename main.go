// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Fuelboost - fuel-cell boost charger tools
//
// Runs the converter firmware against a simulated board and talks to boards
// over the host link.

package main

import (
	"os"

	"github.com/Thermoquad/fuelboost/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fuelboost/pkg/config"
	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/firmware"
	"github.com/Thermoquad/fuelboost/pkg/sim"
)

// startDevice runs a simulated device in real time and returns a session
// connected to it over a pipe.
func startDevice(t *testing.T) (*session, *firmware.Device) {
	t.Helper()
	settings = config.Defaults()

	s, err := sim.New(settings.Sim)
	require.NoError(t, err)
	s.SetSpeed(1)

	port := firmware.NewStreamPort(16)
	dev, err := firmware.NewDevice(settings.Firmware, s.Board(faults.NewLog(s.Clock.Millis)), s.Node, port)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dev.Run(ctx)
	}()

	host, device := net.Pipe()
	go func() { _ = port.Attach(device) }()

	sess := newSession(host, "pipe", settings.Firmware.Address)
	t.Cleanup(func() {
		cancel()
		<-done
		_ = sess.Close()
		_ = device.Close()
	})
	return sess, dev
}

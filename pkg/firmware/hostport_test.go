// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

func TestStreamPort_Exchange(t *testing.T) {
	port := NewStreamPort(4)
	device, host := net.Pipe()
	defer host.Close()

	done := make(chan error, 1)
	go func() { done <- port.Attach(device) }()
	require.Eventually(t, port.Attached, time.Second, time.Millisecond)

	// Garbage before the packet is counted and skipped
	_, err := host.Write([]byte{hostlink.StartByte, 0x01, hostlink.EndByte})
	require.NoError(t, err)
	_, err = host.Write(hostlink.MustEncode(hostlink.NewPingRequest(0xB1)))
	require.NoError(t, err)

	var p *hostlink.Packet
	require.Eventually(t, func() bool {
		var ok bool
		p, ok = port.Receive()
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint8(hostlink.MsgPingRequest), p.Type())
	assert.Equal(t, uint64(0xB1), p.Address())

	stats := port.Statistics()
	assert.Equal(t, uint64(2), stats.TotalPackets)
	assert.Equal(t, uint64(1), stats.ValidPackets)

	assert.ErrorIs(t, port.Attach(device), ErrAttached)

	go func() { _ = port.Send(hostlink.NewPingResponse(0xB1, 42)) }()
	r := hostlink.NewReader(host)
	resp, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, uint8(hostlink.MsgPingResponse), resp.Type())

	device.Close()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("attach did not return")
	}
	assert.False(t, port.Attached())
}

func TestStreamPort_Detached(t *testing.T) {
	port := NewStreamPort(0)
	assert.NoError(t, port.Send(hostlink.NewPingResponse(0xB1, 1)))
	assert.Equal(t, uint64(1), port.Discarded())

	_, ok := port.Receive()
	assert.False(t, ok)
}

func TestStreamPort_Overrun(t *testing.T) {
	port := NewStreamPort(1)
	device, host := net.Pipe()
	defer host.Close()
	defer device.Close()
	go func() { _ = port.Attach(device) }()

	for range 3 {
		_, err := host.Write(hostlink.MustEncode(hostlink.NewPingRequest(0xB1)))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return port.Overruns() == 2 }, time.Second, time.Millisecond)

	_, ok := port.Receive()
	assert.True(t, ok)
	_, ok = port.Receive()
	assert.False(t, ok)
}

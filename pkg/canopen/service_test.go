// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canopen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fuelboost/pkg/ipc"
)

func TestMessage_PackLayout(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want Packet
	}{
		{
			name: "read request",
			msg:  NewReadRequest(0x2100, 0x02),
			want: Packet{0x40, 0x00, 0x21, 0x02, 0, 0, 0, 0},
		},
		{
			name: "write uint32",
			msg:  NewWriteRequest(0x1017, 0x00, TypeUint32, Uint32Data(1000)),
			want: Packet{0x23, 0x17, 0x10, 0x00, 0xE8, 0x03, 0x00, 0x00},
		},
		{
			name: "write bool has three empty bytes",
			msg:  NewWriteRequest(0x2100, 0x10, TypeBool, BoolData(true)),
			want: Packet{0x2F, 0x00, 0x21, 0x10, 0x01, 0, 0, 0},
		},
		{
			name: "write int16 has two empty bytes",
			msg:  NewWriteRequest(0x2300, 0x01, TypeInt16, Int32Data(-2)),
			want: Packet{0x2B, 0x00, 0x23, 0x01, 0xFE, 0xFF, 0xFF, 0xFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.msg.Pack()
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.msg, Unpack(p))
		})
	}
}

func TestUnpack_Fields(t *testing.T) {
	m := Unpack(Packet{0x4B, 0x34, 0x12, 0x07, 0xAA, 0xBB, 0, 0})

	assert.Equal(t, ResponseRead, m.Command)
	assert.True(t, m.Expedited)
	assert.True(t, m.SizeIndicated)
	assert.Equal(t, uint8(2), m.Empty)
	assert.Equal(t, uint16(0x1234), m.Index)
	assert.Equal(t, uint8(0x07), m.Subindex)
	assert.Equal(t, Data{0xAA, 0xBB, 0, 0}, m.Data)
}

type serviceFixture struct {
	owner     *testOwner
	svc       *Service
	requests  ipc.Outbox[Packet]
	responses ipc.Inbox[Packet]
}

func newServiceFixture() *serviceFixture {
	var toControl, toComm ipc.Register
	req := ipc.NewMailbox[Packet](&toControl, 0)
	resp := ipc.NewMailbox[Packet](&toComm, 0)

	o := &testOwner{voltage: 42.25, limit: 10}
	return &serviceFixture{
		owner:     o,
		svc:       NewService(NewDictionary(sampleEntries(o)), req.Inbox(), resp.Outbox()),
		requests:  req.Outbox(),
		responses: resp.Inbox(),
	}
}

func TestService_Read(t *testing.T) {
	f := newServiceFixture()

	require.NoError(t, f.requests.Publish(NewReadRequest(0x2100, 0x01).Pack()))
	require.True(t, f.svc.Run())

	assert.False(t, f.requests.Pending(), "request acknowledged")
	p, ok := f.responses.Receive()
	require.True(t, ok)

	m := Unpack(p)
	assert.Equal(t, ResponseRead, m.Command)
	assert.True(t, m.Expedited)
	assert.True(t, m.SizeIndicated)
	assert.Equal(t, uint8(0), m.Empty)
	assert.Equal(t, uint16(0x2100), m.Index)
	assert.Equal(t, uint8(0x01), m.Subindex)
	assert.Equal(t, float32(42.25), m.Data.Float32())
}

func TestService_ReadEmptyCount(t *testing.T) {
	f := newServiceFixture()
	f.owner.relay = true

	resp, err := f.svc.Process(NewReadRequest(0x2100, 0x10).Pack())
	require.NoError(t, err)

	m := Unpack(resp)
	assert.Equal(t, uint8(3), m.Empty)
	assert.True(t, m.Data.Bool())
}

func TestService_Write(t *testing.T) {
	f := newServiceFixture()

	require.NoError(t, f.requests.Publish(NewWriteRequest(0x2100, 0x02, TypeFloat32, Float32Data(15)).Pack()))
	require.True(t, f.svc.Run())

	assert.Equal(t, float32(15), f.owner.limit)
	p, ok := f.responses.Receive()
	require.True(t, ok)

	m := Unpack(p)
	assert.Equal(t, ResponseWrite, m.Command)
	assert.Equal(t, uint16(0x2100), m.Index)
	assert.Equal(t, uint8(0x02), m.Subindex)
}

func TestService_TaskWrite(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.Process(NewWriteRequest(0x3000, 0x00, TypeUint32, Uint32Data(1)).Pack())
	require.NoError(t, err)
	assert.Equal(t, 1, f.owner.resets)
	assert.Equal(t, uint32(1), f.owner.lastTask.Uint32())
}

func TestService_NoResponse(t *testing.T) {
	tests := []struct {
		name    string
		req     Packet
		wantErr error
	}{
		{"unknown entry", NewReadRequest(0x5000, 0x00).Pack(), ErrNotFound},
		{"write to read-only", NewWriteRequest(0x2100, 0x01, TypeFloat32, Float32Data(1)).Pack(), ErrNoAccess},
		{"read of write-only", NewReadRequest(0x3000, 0x00).Pack(), ErrNoAccess},
		{"task failure", NewWriteRequest(0x3001, 0x00, TypeUint32, Uint32Data(1)).Pack(), ErrAccessFail},
		{"bad command", Message{Command: 6, Index: 0x2100, Subindex: 0x01}.Pack(), ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()

			_, err := f.svc.Process(tt.req)
			assert.ErrorIs(t, err, tt.wantErr)

			require.NoError(t, f.requests.Publish(tt.req))
			require.True(t, f.svc.Run())
			assert.False(t, f.requests.Pending(), "request acknowledged")
			assert.False(t, f.responses.Ready(), "no response")
		})
	}
}

func TestService_WaitsForResponsePickup(t *testing.T) {
	f := newServiceFixture()

	require.NoError(t, f.requests.Publish(NewReadRequest(0x2100, 0x01).Pack()))
	require.True(t, f.svc.Run())
	require.NoError(t, f.requests.Publish(NewReadRequest(0x2100, 0x02).Pack()))

	assert.False(t, f.svc.Run())
	assert.True(t, f.requests.Pending())

	first, _ := f.responses.Receive()
	assert.Equal(t, uint8(0x01), Unpack(first).Subindex)

	require.True(t, f.svc.Run())
	second, _ := f.responses.Receive()
	assert.Equal(t, uint8(0x02), Unpack(second).Subindex)
}

func TestService_IdleWithoutRequest(t *testing.T) {
	f := newServiceFixture()
	assert.False(t, f.svc.Run())
	assert.Equal(t, ServiceStats{}, f.svc.Statistics())
}

func TestService_Statistics(t *testing.T) {
	f := newServiceFixture()

	_, _ = f.svc.Process(NewReadRequest(0x2100, 0x01).Pack())
	_, _ = f.svc.Process(NewWriteRequest(0x2100, 0x02, TypeFloat32, Float32Data(3)).Pack())
	_, _ = f.svc.Process(NewReadRequest(0x5000, 0x00).Pack())
	_, _ = f.svc.Process(NewWriteRequest(0x3001, 0x00, TypeUint32, Uint32Data(1)).Pack())

	assert.Equal(t, ServiceStats{Requests: 4, Reads: 1, Writes: 2, NotFound: 1, Failed: 1}, f.svc.Statistics())
}

// loopback connects a client straight to a service.
func loopback(svc *Service) *Client {
	var c *Client
	c = NewClient(func(p Packet) error {
		resp, err := svc.Process(p)
		if err == nil {
			go c.Deliver(resp)
		}
		return nil
	}, 50*time.Millisecond)
	return c
}

func TestClient_RoundTrip(t *testing.T) {
	f := newServiceFixture()
	c := loopback(f.svc)
	ctx := context.Background()

	d, err := c.Read(ctx, 0x2100, 0x01)
	require.NoError(t, err)
	assert.Equal(t, float32(42.25), d.Float32())

	require.NoError(t, c.Write(ctx, 0x2100, 0x02, TypeFloat32, Float32Data(7.5)))
	assert.Equal(t, float32(7.5), f.owner.limit)
}

func TestClient_TimeoutWithoutResponse(t *testing.T) {
	f := newServiceFixture()
	c := loopback(f.svc)

	_, err := c.Read(context.Background(), 0x5000, 0x00)
	assert.ErrorIs(t, err, ErrTimeout)

	err = c.Write(context.Background(), 0x2100, 0x01, TypeFloat32, Float32Data(1))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_SendError(t *testing.T) {
	errLink := errors.New("link down")
	c := NewClient(func(Packet) error { return errLink }, 0)

	_, err := c.Read(context.Background(), 0x2100, 0x01)
	assert.ErrorIs(t, err, errLink)
}

func TestClient_ContextCancel(t *testing.T) {
	c := NewClient(func(Packet) error { return nil }, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Read(ctx, 0x2100, 0x01)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_DeliverIgnoresUnrelated(t *testing.T) {
	c := NewClient(func(Packet) error { return nil }, time.Minute)

	resp := Message{Command: ResponseRead, Index: 0x2100, Subindex: 0x01}.Pack()
	assert.False(t, c.Deliver(resp), "nothing waiting")
}

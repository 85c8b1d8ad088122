// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canopen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned when no response arrives. The device sends nothing
// for unknown entries or refused access, so a timeout is the only failure a
// client can observe.
var ErrTimeout = errors.New("canopen: no response")

// DefaultTimeout is the default time to wait for a response.
const DefaultTimeout = 500 * time.Millisecond

// Client issues SDO requests over any transport. Responses are handed in
// through Deliver by whoever reads the transport. One request is in flight at
// a time, matching the single request slot on the device.
type Client struct {
	send    func(Packet) error
	timeout time.Duration

	mu      sync.Mutex // serializes requests
	waitMu  sync.Mutex
	waiting *pendingRequest
}

type pendingRequest struct {
	command  uint8
	index    uint16
	subindex uint8
	done     chan Message
}

// NewClient creates a client. send transmits one request packet.
func NewClient(send func(Packet) error, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{send: send, timeout: timeout}
}

// Deliver hands a received response to the waiting request. It returns false
// if nothing was waiting for it.
func (c *Client) Deliver(p Packet) bool {
	m := Unpack(p)

	c.waitMu.Lock()
	defer c.waitMu.Unlock()

	w := c.waiting
	if w == nil || w.command != m.Command || w.index != m.Index || w.subindex != m.Subindex {
		return false
	}
	c.waiting = nil
	w.done <- m
	return true
}

// Read reads an entry.
func (c *Client) Read(ctx context.Context, index uint16, subindex uint8) (Data, error) {
	resp, err := c.roundTrip(ctx, NewReadRequest(index, subindex), ResponseRead)
	if err != nil {
		return Data{}, err
	}
	return resp.Data, nil
}

// Write writes an entry.
func (c *Client) Write(ctx context.Context, index uint16, subindex uint8, t DataType, d Data) error {
	_, err := c.roundTrip(ctx, NewWriteRequest(index, subindex, t, d), ResponseWrite)
	return err
}

func (c *Client) roundTrip(ctx context.Context, req Message, expect uint8) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &pendingRequest{
		command:  expect,
		index:    req.Index,
		subindex: req.Subindex,
		done:     make(chan Message, 1),
	}
	c.waitMu.Lock()
	c.waiting = w
	c.waitMu.Unlock()

	defer func() {
		c.waitMu.Lock()
		if c.waiting == w {
			c.waiting = nil
		}
		c.waitMu.Unlock()
	}()

	if err := c.send(req.Pack()); err != nil {
		return Message{}, fmt.Errorf("canopen: send request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case m := <-w.done:
		return m, nil
	case <-timer.C:
		return Message{}, fmt.Errorf("%w for 0x%04X.%02X after %v", ErrTimeout, req.Index, req.Subindex, c.timeout)
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

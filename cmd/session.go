// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/firmware"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
	"github.com/Thermoquad/fuelboost/pkg/sim"
)

// session is a host-side connection to one device. A reader goroutine feeds
// SDO responses to the client and every other packet to Packets.
type session struct {
	conn    Connection
	info    string
	address uint64

	w   *hostlink.Writer
	sdo *canopen.Client

	packets chan *hostlink.Packet

	mu    sync.Mutex
	stats *hostlink.Statistics
	err   error
}

// openSession opens the connection named by the flags.
func openSession() (*session, error) {
	conn, info, err := OpenConnection()
	if err != nil {
		return nil, err
	}
	return newSession(conn, info, deviceAddress), nil
}

func newSession(conn Connection, info string, address uint64) *session {
	s := &session{
		conn:    conn,
		info:    info,
		address: address,
		w:       hostlink.NewWriter(conn),
		packets: make(chan *hostlink.Packet, 100),
		stats:   hostlink.NewStatistics(),
	}
	s.sdo = canopen.NewClient(func(p canopen.Packet) error {
		return s.Send(hostlink.NewSdoRequest(s.address, p))
	}, sdoTimeout)
	go s.readLoop()
	return s
}

func (s *session) readLoop() {
	defer close(s.packets)

	r := hostlink.NewReader(s.conn)
	for {
		p, err := r.Next()
		if err != nil && !hostlink.IsDecodeError(err) {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		var anomalies []hostlink.ValidationError
		if err == nil {
			anomalies = hostlink.ValidatePacket(p)
		}
		s.mu.Lock()
		s.stats.Update(p, err, anomalies)
		s.mu.Unlock()
		if err != nil {
			continue
		}

		if p.Type() == hostlink.MsgSdoResponse {
			if frame, err := hostlink.SdoFrame(p); err == nil && s.sdo.Deliver(frame) {
				continue
			}
		}

		select {
		case s.packets <- p:
		default:
			// Nobody is reading; the oldest packet goes
			select {
			case <-s.packets:
			default:
			}
			s.packets <- p
		}
	}
}

// Packets returns received packets. It is closed when the connection fails.
func (s *session) Packets() <-chan *hostlink.Packet {
	return s.packets
}

// Err returns the error that ended the reader.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Statistics returns a copy of the receive statistics.
func (s *session) Statistics() hostlink.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.CalculateRates()
	return *s.stats
}

// Send writes one packet.
func (s *session) Send(p *hostlink.Packet) error {
	return s.w.Send(p)
}

// Close closes the connection, ending the reader.
func (s *session) Close() error {
	return s.conn.Close()
}

// Ping sends a ping to address and waits for the response. Other packets
// received meanwhile are discarded.
func (s *session) Ping(ctx context.Context, address uint64) (uptime uint64, rtt time.Duration, err error) {
	start := time.Now()
	if err := s.Send(hostlink.NewPingRequest(address)); err != nil {
		return 0, 0, err
	}
	for {
		select {
		case p, ok := <-s.packets:
			if !ok {
				return 0, 0, fmt.Errorf("connection closed: %w", s.Err())
			}
			if p.Type() != hostlink.MsgPingResponse {
				continue
			}
			if !anyDevice(address) && p.Address() != address {
				continue
			}
			uptime, _ = hostlink.GetMapUint(p.PayloadMap(), 0)
			return uptime, time.Since(start), nil
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}
}

func anyDevice(address uint64) bool {
	return address == hostlink.AddressBroadcast || address == hostlink.AddressStateless
}

// Read reads and formats one entry.
func (s *session) Read(ctx context.Context, e *canopen.Entry) (string, error) {
	if !e.Access.CanRead() {
		return "", fmt.Errorf("%s is not readable", e.Path())
	}
	d, err := s.sdo.Read(ctx, e.Index, e.Subindex)
	if err != nil {
		return "", err
	}
	return d.Format(e.Type), nil
}

// Write parses value for the entry's type and writes it.
func (s *session) Write(ctx context.Context, e *canopen.Entry, value string) error {
	if !e.Access.CanWrite() {
		return fmt.Errorf("%s is not writable", e.Path())
	}
	d, err := canopen.ParseData(e.Type, value)
	if err != nil {
		return err
	}
	return s.sdo.Write(ctx, e.Index, e.Subindex, e.Type, d)
}

// Task triggers a task entry. The device gives no response when it refuses,
// so a refusal surfaces as a timeout.
func (s *session) Task(ctx context.Context, index uint16) error {
	err := s.sdo.Write(ctx, index, 0, canopen.TypeUint32, canopen.Uint32Data(1))
	if errors.Is(err, canopen.ErrTimeout) {
		return fmt.Errorf("task refused or device unreachable: %w", err)
	}
	return err
}

// deviceLayout builds the object dictionary of a device configured like the
// target, for name lookup and listing. Its values are not meaningful.
func deviceLayout() (*canopen.Dictionary, error) {
	s, err := sim.New(settings.Sim)
	if err != nil {
		return nil, err
	}
	dev, err := firmware.NewDevice(settings.Firmware, s.Board(faults.NewLog(s.Clock.Millis)), s.Node, nil)
	if err != nil {
		return nil, err
	}
	return dev.Dictionary(), nil
}

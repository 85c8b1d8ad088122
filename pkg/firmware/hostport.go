// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

// ErrAttached is returned when a second host connects to a StreamPort.
var ErrAttached = errors.New("firmware: host already attached")

// HostPort carries host-link packets for the comm core. Receive never blocks.
type HostPort interface {
	Send(p *hostlink.Packet) error
	Receive() (*hostlink.Packet, bool)
}

// StreamPort is a HostPort over a byte stream such as a serial port or a
// WebSocket connection. One host is attached at a time; packets sent while
// nobody is attached are discarded.
type StreamPort struct {
	rx chan *hostlink.Packet

	mu sync.Mutex
	w  *hostlink.Writer

	stats     *hostlink.Statistics
	statsMu   sync.Mutex
	overruns  atomic.Uint64
	discarded atomic.Uint64
}

// NewStreamPort creates a port whose receive queue holds depth packets.
func NewStreamPort(depth int) *StreamPort {
	if depth < 1 {
		depth = 1
	}
	return &StreamPort{
		rx:    make(chan *hostlink.Packet, depth),
		stats: hostlink.NewStatistics(),
	}
}

// Attach serves one host connection until it fails. Decode errors are
// counted and skipped. Closing rw from another goroutine ends the call.
func (s *StreamPort) Attach(rw io.ReadWriter) error {
	s.mu.Lock()
	if s.w != nil {
		s.mu.Unlock()
		return ErrAttached
	}
	s.w = hostlink.NewWriter(rw)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.w = nil
		s.mu.Unlock()
	}()

	r := hostlink.NewReader(rw)
	for {
		p, err := r.Next()
		if err != nil && !hostlink.IsDecodeError(err) {
			return err
		}

		s.statsMu.Lock()
		s.stats.Update(p, err, nil)
		s.statsMu.Unlock()
		if err != nil {
			continue
		}

		select {
		case s.rx <- p:
		default:
			if s.overruns.Add(1) == 1 {
				log.Printf("host link: receive queue full, dropping packets")
			}
		}
	}
}

// Attached reports whether a host is connected.
func (s *StreamPort) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w != nil
}

// Send writes a packet to the attached host.
func (s *StreamPort) Send(p *hostlink.Packet) error {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	if w == nil {
		s.discarded.Add(1)
		return nil
	}
	return w.Send(p)
}

// Receive returns the next queued packet.
func (s *StreamPort) Receive() (*hostlink.Packet, bool) {
	select {
	case p := <-s.rx:
		return p, true
	default:
		return nil, false
	}
}

// Statistics returns a copy of the receive statistics.
func (s *StreamPort) Statistics() hostlink.Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return *s.stats
}

// Overruns returns how many packets were dropped on a full receive queue.
func (s *StreamPort) Overruns() uint64 {
	return s.overruns.Load()
}

// Discarded returns how many packets were sent with no host attached.
func (s *StreamPort) Discarded() uint64 {
	return s.discarded.Load()
}

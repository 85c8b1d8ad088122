// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package canopen

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/fuelboost/pkg/ipc"
)

// Request processing errors. None of them produces a response.
var (
	ErrAccessFail     = errors.New("canopen: access failed")
	ErrNoAccess       = errors.New("canopen: no access")
	ErrUnknownCommand = errors.New("canopen: unknown command specifier")
)

// ServiceStats counts processed requests by outcome.
type ServiceStats struct {
	Requests   uint64
	Reads      uint64
	Writes     uint64
	NotFound   uint64
	Failed     uint64
	NoAccess   uint64
	BadCommand uint64
}

// Service answers SDO requests against a dictionary. It runs from the control
// core's main loop.
type Service struct {
	dict      *Dictionary
	requests  ipc.Inbox[Packet]
	responses ipc.Outbox[Packet]
	stats     ServiceStats
}

// NewService creates an SDO service.
func NewService(dict *Dictionary, requests ipc.Inbox[Packet], responses ipc.Outbox[Packet]) *Service {
	return &Service{dict: dict, requests: requests, responses: responses}
}

// Dictionary returns the served dictionary.
func (s *Service) Dictionary() *Dictionary {
	return s.dict
}

// Run handles one pending request. A request waits while the previous
// response has not been picked up. The request is acknowledged only after
// processing, so the producer cannot overwrite it while it is in use.
func (s *Service) Run() bool {
	if !s.requests.Ready() || s.responses.Pending() {
		return false
	}

	resp, err := s.Process(s.requests.Payload())
	if err == nil {
		// Cannot overrun: the outbox was checked free above and only this
		// loop publishes to it
		_ = s.responses.Publish(resp)
	}
	s.requests.Acknowledge()
	return true
}

// Process executes one request and returns its response. Any error means no
// response is sent.
func (s *Service) Process(req Packet) (Packet, error) {
	s.stats.Requests++
	m := Unpack(req)

	e, ok := s.dict.Lookup(m.Index, m.Subindex)
	if !ok {
		s.stats.NotFound++
		return Packet{}, fmt.Errorf("%w: 0x%04X.%02X", ErrNotFound, m.Index, m.Subindex)
	}

	var (
		resp   Message
		status AccessStatus
	)
	switch m.Command {
	case RequestRead:
		s.stats.Reads++
		var d Data
		d, status = e.ReadData()
		resp = Message{
			Command:       ResponseRead,
			Expedited:     true,
			SizeIndicated: true,
			Empty:         uint8(4 - e.Type.Size()),
			Data:          d,
		}
	case RequestWrite:
		s.stats.Writes++
		status = e.WriteData(m.Data)
		resp = Message{Command: ResponseWrite}
	default:
		s.stats.BadCommand++
		return Packet{}, fmt.Errorf("%w: %d", ErrUnknownCommand, m.Command)
	}

	switch status {
	case AccessOK:
	case AccessNoAccess:
		s.stats.NoAccess++
		return Packet{}, fmt.Errorf("%w: %s", ErrNoAccess, e)
	default:
		s.stats.Failed++
		return Packet{}, fmt.Errorf("%w: %s", ErrAccessFail, e)
	}

	resp.Index = m.Index
	resp.Subindex = m.Subindex
	return resp.Pack(), nil
}

// Statistics returns the request counters.
func (s *Service) Statistics() ServiceStats {
	return s.stats
}

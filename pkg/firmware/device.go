// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/converter"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
)

// Device is a fully wired converter.
type Device struct {
	cfg        *Config
	board      *board.Context
	shared     *Shared
	dictionary *canopen.Dictionary

	Control *ControlCore
	Comm    *CommCore
}

// NewDevice wires both cores. host may be nil when no host link exists. It
// panics on an incomplete board or an inconsistent object dictionary.
func NewDevice(cfg Config, b *board.Context, bus fuelcell.Transceiver, host HostPort) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bus == nil {
		return nil, errors.New("firmware: fuel-cell transceiver not set")
	}
	b.MustValidate()

	d := &Device{cfg: &cfg, board: b, shared: NewShared(b.Faults)}
	s := d.shared

	startTx, startRx := s.RemoteStart()
	stopTx, stopRx := s.RemoteStop()

	fc := fuelcell.NewController(cfg.FuelCell, b.Faults, startTx, stopTx, s.Cells.Inbox())
	conv := converter.New(cfg.Converter, b, fc)

	owner := &dictionaryOwner{cfg: d.cfg, board: b, conv: conv, fc: fc, faults: b.Faults}
	d.dictionary = canopen.NewDictionary(owner.entries())

	controlReady, controlPeer := s.ControlReady()
	commReady, commPeer := s.CommReady()

	d.Control = &ControlCore{
		board:     b,
		conv:      conv,
		fc:        fc,
		sdo:       canopen.NewService(d.dictionary, s.SdoRequest.Inbox(), s.SdoResponse.Outbox()),
		telemetry: s.Telemetry.Outbox(),
		ready:     controlReady,
		peer:      commPeer,
	}
	d.Comm = &CommCore{
		cfg:          cfg,
		clock:        b.Clock,
		faults:       b.Faults,
		link:         fuelcell.NewLink(cfg.FuelCell, bus, b.Faults, startRx, stopRx, s.Cells.Outbox()),
		host:         host,
		sdoRequests:  s.SdoRequest.Outbox(),
		sdoResponses: s.SdoResponse.Inbox(),
		telemetry:    s.Telemetry.Inbox(),
		ready:        commReady,
		peer:         controlPeer,
		streaming:    cfg.TelemetryInterval > 0,
		interval:     cfg.TelemetryInterval,
	}
	return d, nil
}

// Config returns the live device configuration.
func (d *Device) Config() *Config {
	return d.cfg
}

// Board returns the board context.
func (d *Device) Board() *board.Context {
	return d.board
}

// Shared returns the inter-core memory.
func (d *Device) Shared() *Shared {
	return d.shared
}

// Dictionary returns the object dictionary.
func (d *Device) Dictionary() *canopen.Dictionary {
	return d.dictionary
}

// Run starts both cores and blocks until ctx is done or a core fails.
// Cancellation is not an error.
func (d *Device) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Control.Run(ctx) })
	g.Go(func() error { return d.Comm.Run(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
	"github.com/Thermoquad/fuelboost/pkg/ipc"
)

// maxHostPacketsPerStep bounds the host packets handled by one Step.
const maxHostPacketsPerStep = 8

// CommStats counts host-link traffic on the device side.
type CommStats struct {
	RxPackets      uint64
	IgnoredPackets uint64 // addressed to another device
	SdoRequests    uint64
	SdoDropped     uint64
	SdoResponses   uint64
	InvalidCmds    uint64
	TxPackets      uint64
	TxFailures     uint64
}

// Observer receives comm core events on the comm goroutine. Implementations
// must not block.
type Observer interface {
	Telemetry(t hostlink.Telemetry)
	Fault(m faults.Message)
}

// CommCore runs the fuel-cell link and bridges the host link to the control
// core.
type CommCore struct {
	cfg    Config
	clock  board.Clock
	faults *faults.Log
	link   *fuelcell.Link
	host   HostPort

	sdoRequests  ipc.Outbox[canopen.Packet]
	sdoResponses ipc.Inbox[canopen.Packet]
	telemetry    ipc.Inbox[hostlink.Telemetry]
	ready        ipc.Sender
	peer         ipc.Receiver

	latest        hostlink.Telemetry
	haveTelemetry bool

	streaming     bool
	interval      uint32
	lastTelemetry uint32
	lastStats     uint32
	cellSent      [fuelcell.MaxCells]uint32

	observer Observer

	txFailureRun int
	stats        CommStats
}

// SetObserver installs an observer. Call it before Run.
func (c *CommCore) SetObserver(o Observer) {
	c.observer = o
}

// Link returns the fuel-cell link.
func (c *CommCore) Link() *fuelcell.Link {
	return c.link
}

// Statistics returns the host-link counters.
func (c *CommCore) Statistics() CommStats {
	return c.stats
}

// Latest returns the most recent telemetry received from the control core.
func (c *CommCore) Latest() (hostlink.Telemetry, bool) {
	return c.latest, c.haveTelemetry
}

// Step is one comm loop pass.
func (c *CommCore) Step(now uint32) {
	if t, ok := c.telemetry.Receive(); ok {
		c.latest = t
		c.haveTelemetry = true
		c.link.SetMeasurement(t.VoltageIn, t.CurrentIn)
		if c.observer != nil {
			c.observer.Telemetry(t)
		}
	}

	c.link.Run(now)

	if c.host != nil {
		for range maxHostPacketsPerStep {
			p, ok := c.host.Receive()
			if !ok {
				break
			}
			c.handle(p, now)
		}
		if resp, ok := c.sdoResponses.Receive(); ok {
			c.stats.SdoResponses++
			c.send(hostlink.NewSdoResponse(c.cfg.Address, resp))
		}
	}

	c.reportFaults()
	c.stream(now)
}

func (c *CommCore) accepts(p *hostlink.Packet) bool {
	return p.Address() == c.cfg.Address || p.IsBroadcast() || p.IsStateless()
}

func (c *CommCore) handle(p *hostlink.Packet, now uint32) {
	c.stats.RxPackets++
	if !c.accepts(p) {
		c.stats.IgnoredPackets++
		return
	}
	if err := p.ParseError(); err != nil {
		log.Printf("host link: %v", err)
		return
	}

	switch p.Type() {
	case hostlink.MsgSdoRequest:
		frame, err := hostlink.SdoFrame(p)
		if err != nil {
			log.Printf("host link: %v", err)
			c.invalid(p)
			return
		}
		c.stats.SdoRequests++
		if err := c.sdoRequests.Publish(frame); err != nil {
			c.stats.SdoDropped++
			c.faults.Warn(faults.WarnSdoRequestLost)
			log.Printf("host link: SDO request %s dropped: %v", canopen.Unpack(frame), err)
			c.send(hostlink.NewErrorBusy(c.cfg.Address, frame))
		}

	case hostlink.MsgPingRequest:
		c.send(hostlink.NewPingResponse(c.cfg.Address, now))

	case hostlink.MsgTelemetryConfig:
		enabled, interval, err := hostlink.DecodeTelemetryConfig(p)
		if err != nil {
			log.Printf("host link: %v", err)
			c.invalid(p)
			return
		}
		c.streaming = enabled
		if interval > 0 {
			c.interval = interval
		}
		log.Printf("host link: telemetry %v every %d ms", enabled, c.interval)

	default:
		c.invalid(p)
	}
}

func (c *CommCore) invalid(p *hostlink.Packet) {
	c.stats.InvalidCmds++
	c.send(hostlink.NewErrorInvalidCmd(c.cfg.Address, p.Type()))
}

// reportFaults drains the fault message queue to the log and the host.
func (c *CommCore) reportFaults() {
	for {
		m, ok := c.faults.Pop()
		if !ok {
			return
		}
		log.Printf("fault: %s", m)
		if c.observer != nil {
			c.observer.Fault(m)
		}
		c.send(hostlink.NewFaultReport(c.cfg.Address, hostlink.FaultReport{
			Errors:   c.faults.Errors(),
			Warnings: c.faults.Warnings(),
			Time:     m.Time,
			Text:     m.Text,
		}))
	}
}

func (c *CommCore) stream(now uint32) {
	if c.host == nil || !c.streaming {
		return
	}

	if c.haveTelemetry && c.interval > 0 && now-c.lastTelemetry >= c.interval {
		c.lastTelemetry = now
		c.send(hostlink.NewTelemetryPacket(c.cfg.Address, c.latest))
	}

	cells := c.link.Cells()
	for i := 0; i < cells.Count; i++ {
		cell := cells.Cells[i]
		if cell.Valid && cell.Updated != c.cellSent[i] {
			c.cellSent[i] = cell.Updated
			c.send(hostlink.NewCellData(c.cfg.Address, i, cell))
		}
	}

	if c.cfg.LinkStatsInterval > 0 && now-c.lastStats >= c.cfg.LinkStatsInterval {
		c.lastStats = now
		c.send(hostlink.NewLinkStatsPacket(c.cfg.Address, hostlink.NewLinkStats(c.link.Statistics())))
	}
}

func (c *CommCore) send(p *hostlink.Packet) {
	if c.host == nil {
		return
	}
	if err := c.host.Send(p); err != nil {
		c.stats.TxFailures++
		c.txFailureRun++
		if c.txFailureRun == 1 {
			log.Printf("host link: send %s: %v", hostlink.FormatMessageType(p.Type()), err)
		}
		return
	}
	c.stats.TxPackets++
	c.txFailureRun = 0
}

// Run signals readiness, waits for the control core and then steps every
// poll period until ctx is done.
func (c *CommCore) Run(ctx context.Context) error {
	if err := c.ready.Set(); err != nil {
		return fmt.Errorf("firmware: comm ready: %w", err)
	}
	if err := ipc.WaitFor(ctx, c.peer); err != nil {
		return err
	}
	log.Printf("comm core running")

	ticker := time.NewTicker(c.cfg.CommPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Step(c.clock.Millis())
		}
	}
}

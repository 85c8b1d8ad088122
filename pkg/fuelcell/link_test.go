// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fuelcell

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/ipc"
)

var errBusy = errors.New("bus busy")

type fakeBus struct {
	rx       []Frame
	sent     []Frame
	failures int
	overruns uint64
}

func (b *fakeBus) Send(f Frame) error {
	if b.failures > 0 {
		b.failures--
		return errBusy
	}
	b.sent = append(b.sent, f)
	return nil
}

func (b *fakeBus) Receive() (Frame, bool) {
	if len(b.rx) == 0 {
		return Frame{}, false
	}
	f := b.rx[0]
	b.rx = b.rx[1:]
	return f, true
}

func (b *fakeBus) Overruns() uint64 { return b.overruns }

type linkFixture struct {
	bus   *fakeBus
	log   *faults.Log
	link  *Link
	ctrl  *Controller
	cells ipc.Inbox[CellTable]
}

func newLinkFixture(t *testing.T, cfg Config) *linkFixture {
	t.Helper()

	var toComm, toControl ipc.Register
	startTx, startRx := ipc.Signal(&toComm, 0)
	stopTx, stopRx := ipc.Signal(&toComm, 1)
	mailbox := ipc.NewMailbox[CellTable](&toControl, 0)

	bus := &fakeBus{}
	log := faults.NewLog(nil)
	return &linkFixture{
		bus:   bus,
		log:   log,
		link:  NewLink(cfg, bus, log, startRx, stopRx, mailbox.Outbox()),
		ctrl:  NewController(cfg, log, startTx, stopTx, mailbox.Inbox()),
		cells: mailbox.Inbox(),
	}
}

func cellFrame(id uint16, cellV float64, status Status) Frame {
	return NewDataFrame(id, EncodeRPDO(30, cellV, 48, 10, status).Pack())
}

func TestLink_RoutesRPDOByID(t *testing.T) {
	fx := newLinkFixture(t, DefaultConfig())

	for k := 0; k < 5; k++ {
		fx.bus.rx = append(fx.bus.rx, cellFrame(uint16(0x180+k), 6.0+0.1*float64(k), StatusRun))
	}
	fx.link.Run(10)

	table := fx.link.Cells()
	for k := 0; k < 5; k++ {
		assert.True(t, table.Cells[k].Valid, "cell %d", k)
		assert.InDelta(t, 6.0+0.1*float64(k), table.Cells[k].CellVoltage, 1e-9)
		assert.Equal(t, uint32(10), table.Cells[k].Updated)
	}
	assert.Equal(t, uint64(5), fx.link.Statistics().ValidFrames)
}

func TestLink_RejectsIDOutsideCellRange(t *testing.T) {
	fx := newLinkFixture(t, DefaultConfig())

	before := fx.link.Cells()
	err := fx.link.HandleFrame(cellFrame(0x185, 6, StatusRun), 0)

	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Equal(t, before, fx.link.Cells())

	stats := fx.link.Statistics()
	assert.Equal(t, uint64(1), stats.InvalidIDs)
	assert.Equal(t, uint64(0), stats.ValidFrames)
	assert.Equal(t, uint64(0), stats.FramingErrors())
	assert.False(t, fx.log.HasWarning(faults.WarnCanBus))
}

func TestLink_StackBitsOnlyFromCellZero(t *testing.T) {
	fx := newLinkFixture(t, DefaultConfig())

	all := StatusRun | StatusConnection | StatusPressure | StatusHydro | StatusOverheat
	require.NoError(t, fx.link.HandleFrame(cellFrame(0x180, 6, all), 0))
	require.NoError(t, fx.link.HandleFrame(cellFrame(0x182, 6, all), 0))

	cells := fx.link.Cells().Cells
	assert.Equal(t, all, cells[0].Status)
	assert.Equal(t, StatusRun|StatusOverheat, cells[2].Status)
}

func TestLink_StopWinsAndBothAcknowledged(t *testing.T) {
	fx := newLinkFixture(t, DefaultConfig())

	require.True(t, fx.ctrl.Start())
	require.True(t, fx.ctrl.Stop())
	assert.Equal(t, CmdStop, fx.link.PendingCommand())

	require.NoError(t, fx.link.Transmit(0))
	require.Len(t, fx.bus.sent, 1)

	sent := fx.bus.sent[0]
	assert.Equal(t, uint16(DefaultTPDOID), sent.ID)
	assert.Equal(t, byte(CmdStop), sent.Data[0])
	assert.Equal(t, CmdIdle, fx.link.PendingCommand())

	// Both requests are free again
	assert.True(t, fx.ctrl.Start())
}

func TestLink_FailedSendKeepsCommandPending(t *testing.T) {
	fx := newLinkFixture(t, DefaultConfig())
	fx.bus.failures = 1

	require.True(t, fx.ctrl.Start())
	assert.ErrorIs(t, fx.link.Transmit(0), errBusy)
	assert.Equal(t, CmdStart, fx.link.PendingCommand())

	require.NoError(t, fx.link.Transmit(100))
	require.Len(t, fx.bus.sent, 1)
	assert.Equal(t, byte(CmdStart), fx.bus.sent[0].Data[0])
	assert.Equal(t, CmdIdle, fx.link.PendingCommand())

	stats := fx.link.Statistics()
	assert.Equal(t, uint64(1), stats.TxFailures)
	assert.Equal(t, uint64(1), stats.CommandsStart)
}

func TestLink_RepeatedRequestIsOverrun(t *testing.T) {
	fx := newLinkFixture(t, DefaultConfig())

	assert.True(t, fx.ctrl.Start())
	assert.False(t, fx.ctrl.Start())
	assert.True(t, fx.log.HasWarning(faults.WarnIpcOverrun))
}

func TestLink_TransmitPeriod(t *testing.T) {
	cfg := DefaultConfig()
	fx := newLinkFixture(t, cfg)
	fx.link.SetMeasurement(48, 10)

	fx.link.Run(0)
	fx.link.Run(50)
	fx.link.Run(99)
	fx.link.Run(100)
	fx.link.Run(150)
	fx.link.Run(200)

	require.Len(t, fx.bus.sent, 3)
	tpdo := UnpackTPDO(fx.bus.sent[0].Data)
	assert.Equal(t, uint16(48), tpdo.Voltage)
	assert.Equal(t, uint16(10), tpdo.Current)
}

func TestLink_BusErrorLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BusErrorLimit = 3
	fx := newLinkFixture(t, cfg)
	fx.bus.failures = 3

	_ = fx.link.Transmit(0)
	_ = fx.link.Transmit(1)
	assert.False(t, fx.log.Has(faults.ErrCanBus))

	_ = fx.link.Transmit(2)
	assert.True(t, fx.log.Has(faults.ErrCanBus))
}

func TestLink_FramingErrorsWarn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FramingWarnLimit = 2
	fx := newLinkFixture(t, cfg)

	bad := cellFrame(0x180, 6, StatusRun)
	bad.CRC ^= 1

	_ = fx.link.HandleFrame(bad, 0)
	require.NoError(t, fx.link.HandleFrame(cellFrame(0x180, 6, StatusRun), 0))
	_ = fx.link.HandleFrame(bad, 0)
	assert.False(t, fx.log.HasWarning(faults.WarnCanBus))

	_ = fx.link.HandleFrame(bad, 0)
	assert.True(t, fx.log.HasWarning(faults.WarnCanBus))
	assert.Equal(t, uint64(3), fx.link.Statistics().CRCErrors)
}

func TestLink_ReceiveOverrunWarns(t *testing.T) {
	fx := newLinkFixture(t, DefaultConfig())
	fx.bus.overruns = 2

	fx.link.Run(0)
	assert.True(t, fx.log.HasWarning(faults.WarnCanBusOverrun))
	assert.Equal(t, uint64(2), fx.link.Statistics().RxOverruns)
}

func TestLink_PublishesWhenMailboxFree(t *testing.T) {
	fx := newLinkFixture(t, DefaultConfig())

	fx.bus.rx = append(fx.bus.rx, cellFrame(0x180, 6.1, StatusRun))
	fx.link.Run(0)
	require.True(t, fx.cells.Ready())

	fx.bus.rx = append(fx.bus.rx, cellFrame(0x181, 6.2, StatusRun))
	fx.link.Run(10)

	// Control core still owns the first snapshot
	first := fx.cells.Payload()
	assert.False(t, first.Cells[1].Valid)

	require.True(t, fx.ctrl.Poll(20))
	fx.link.Run(20)
	require.True(t, fx.ctrl.Poll(30))
	assert.True(t, fx.ctrl.Cells().Cells[1].Valid)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.CellCount = MaxCells + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.TPDOPeriod = 0
	assert.Error(t, cfg.Validate())

	assert.Panics(t, func() {
		NewLink(cfg, &fakeBus{}, faults.NewLog(nil), ipc.Receiver{}, ipc.Receiver{}, ipc.Outbox[CellTable]{})
	})
}

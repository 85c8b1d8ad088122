// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sim

import (
	"errors"
	"log"
	"sync"

	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
)

// ErrBusOff is returned by Send while the simulated bus is disabled.
var ErrBusOff = errors.New("sim: CAN bus off")

// NodeStats counts traffic seen by the simulated fuel-cell controller.
type NodeStats struct {
	TPDOs      uint64
	BadFrames  uint64
	Starts     uint64
	Stops      uint64
	RPDOs      uint64
	Overruns   uint64
	Corrupted  uint64
	LastTPDO   fuelcell.TPDO
	LastPeriod uint32 // ms between the last two TPDOs
}

// FuelCellNode is the remote fuel-cell controller on the other end of the
// CAN bus. It implements fuelcell.Transceiver for the firmware side: frames
// sent by the firmware are TPDOs to the node; frames received are the
// node's RPDOs.
type FuelCellNode struct {
	cfg   Config
	plant *Plant

	mu      sync.Mutex
	queue   []fuelcell.Frame
	sent    bool
	lastTx  uint32
	lastRx  uint32
	now     uint32
	silent  bool
	busOff  bool
	corrupt int
	stats   NodeStats
}

// NewFuelCellNode creates the node for a plant.
func NewFuelCellNode(cfg Config, plant *Plant) *FuelCellNode {
	return &FuelCellNode{
		cfg:   cfg,
		plant: plant,
		queue: make([]fuelcell.Frame, 0, cfg.QueueDepth),
	}
}

// Send delivers a firmware frame to the node.
func (n *FuelCellNode) Send(f fuelcell.Frame) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.busOff {
		return ErrBusOff
	}
	if err := f.Check(); err != nil || f.ID != n.cfg.TPDOID {
		n.stats.BadFrames++
		return nil
	}

	tpdo := fuelcell.UnpackTPDO(f.Data)
	if n.stats.TPDOs > 0 {
		n.stats.LastPeriod = n.now - n.lastRx
	}
	n.lastRx = n.now
	n.stats.TPDOs++
	n.stats.LastTPDO = tpdo

	switch tpdo.Command {
	case fuelcell.CmdStart:
		n.stats.Starts++
		log.Printf("sim: fuel cell start")
		n.plant.StartStack()
	case fuelcell.CmdStop:
		n.stats.Stops++
		log.Printf("sim: fuel cell stop")
		n.plant.StopStack()
	}
	return nil
}

// Receive returns the oldest queued RPDO.
func (n *FuelCellNode) Receive() (fuelcell.Frame, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return fuelcell.Frame{}, false
	}
	f := n.queue[0]
	n.queue = append(n.queue[:0], n.queue[1:]...)
	return f, true
}

// Overruns returns how many frames were dropped on a full receive queue.
func (n *FuelCellNode) Overruns() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats.Overruns
}

// Step emits one RPDO per cell every RPDOPeriod.
func (n *FuelCellNode) Step(now uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.now = now
	if n.silent || (n.sent && now-n.lastTx < n.cfg.RPDOPeriod) {
		return
	}
	n.sent = true
	n.lastTx = now

	st := n.plant.State()
	for i := range n.cfg.Cells {
		rpdo := fuelcell.EncodeRPDO(
			st.CellTemperatures[i],
			st.CellVoltages[i],
			st.VoltageOut,
			st.CurrentIn,
			n.plant.CellStatus(i),
		)
		f := fuelcell.NewDataFrame(n.cfg.BaseID+uint16(i), rpdo.Pack())
		if n.corrupt > 0 {
			n.corrupt--
			n.stats.Corrupted++
			f.CRC ^= 0x0001
		}
		n.push(f)
	}
}

func (n *FuelCellNode) push(f fuelcell.Frame) {
	if len(n.queue) >= n.cfg.QueueDepth {
		n.stats.Overruns++
		return
	}
	n.queue = append(n.queue, f)
	n.stats.RPDOs++
}

// SetSilent stops or resumes RPDO transmission.
func (n *FuelCellNode) SetSilent(silent bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.silent = silent
}

// SetBusOff makes every Send fail while set.
func (n *FuelCellNode) SetBusOff(off bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.busOff = off
}

// Corrupt breaks the CRC of the next count RPDOs.
func (n *FuelCellNode) Corrupt(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.corrupt = count
}

// Statistics returns the node counters.
func (n *FuelCellNode) Statistics() NodeStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

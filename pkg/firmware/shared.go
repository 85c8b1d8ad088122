// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
	"github.com/Thermoquad/fuelboost/pkg/ipc"
)

// Control core → comm core flags
const (
	FlagRemoteStart ipc.Flag = iota
	FlagRemoteStop
	FlagSdoResponse
	FlagTelemetry
	FlagControlReady
)

// Comm core → control core flags
const (
	FlagSdoRequest ipc.Flag = iota
	FlagCellData
	FlagCommReady
)

// Shared is the memory both cores see. Each register is written by its
// producer core's Set and cleared by the consumer core's Acknowledge.
type Shared struct {
	ToComm    ipc.Register
	ToControl ipc.Register

	SdoRequest  *ipc.Mailbox[canopen.Packet]
	SdoResponse *ipc.Mailbox[canopen.Packet]
	Cells       *ipc.Mailbox[fuelcell.CellTable]
	Telemetry   *ipc.Mailbox[hostlink.Telemetry]

	Faults *faults.Log
}

// NewShared lays out the mailboxes on their flags.
func NewShared(log *faults.Log) *Shared {
	s := &Shared{Faults: log}
	s.SdoRequest = ipc.NewMailbox[canopen.Packet](&s.ToControl, FlagSdoRequest)
	s.Cells = ipc.NewMailbox[fuelcell.CellTable](&s.ToControl, FlagCellData)
	s.SdoResponse = ipc.NewMailbox[canopen.Packet](&s.ToComm, FlagSdoResponse)
	s.Telemetry = ipc.NewMailbox[hostlink.Telemetry](&s.ToComm, FlagTelemetry)
	return s
}

// RemoteStart returns the handles of the fuel-cell start request.
func (s *Shared) RemoteStart() (ipc.Sender, ipc.Receiver) {
	return ipc.Signal(&s.ToComm, FlagRemoteStart)
}

// RemoteStop returns the handles of the fuel-cell stop request.
func (s *Shared) RemoteStop() (ipc.Sender, ipc.Receiver) {
	return ipc.Signal(&s.ToComm, FlagRemoteStop)
}

// ControlReady returns the handles of the control core's startup flag.
func (s *Shared) ControlReady() (ipc.Sender, ipc.Receiver) {
	return ipc.Signal(&s.ToComm, FlagControlReady)
}

// CommReady returns the handles of the comm core's startup flag.
func (s *Shared) CommReady() (ipc.Sender, ipc.Receiver) {
	return ipc.Signal(&s.ToControl, FlagCommReady)
}

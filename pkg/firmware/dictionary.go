// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package firmware

import (
	"fmt"
	"log"

	"github.com/Thermoquad/fuelboost/pkg/board"
	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/converter"
	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/fuelcell"
)

// Object dictionary indexes
const (
	IndexDevice          uint16 = 0x1000
	IndexState           uint16 = 0x2000
	IndexMeasurements    uint16 = 0x2001
	IndexCurrentInLimit  uint16 = 0x2002
	IndexProtection      uint16 = 0x2003
	IndexFuelCell        uint16 = 0x2100
	IndexCellBase        uint16 = 0x2110 // + cell number, one index per cell
	IndexFaults          uint16 = 0x2200
	IndexTaskStartup     uint16 = 0x3000
	IndexTaskShutdown    uint16 = 0x3001
	IndexTaskStartCharge uint16 = 0x3002
	IndexTaskStopCharge  uint16 = 0x3003
	IndexTaskEmergency   uint16 = 0x3004
	IndexTaskResetFaults uint16 = 0x3005
	IndexTaskDeviceReset uint16 = 0x3006
	IndexTaskRelayOn     uint16 = 0x3007
	IndexTaskRelayOff    uint16 = 0x3008
	IndexTaskFuelStart   uint16 = 0x3009
	IndexTaskFuelStop    uint16 = 0x300A
)

type dictionaryOwner struct {
	cfg    *Config
	board  *board.Context
	conv   *converter.Converter
	fc     *fuelcell.Controller
	faults *faults.Log
}

func readFloat(f func() float64) func() (canopen.Data, canopen.AccessStatus) {
	return func() (canopen.Data, canopen.AccessStatus) {
		return canopen.Float32Data(float32(f())), canopen.AccessOK
	}
}

func readUint(f func() uint32) func() (canopen.Data, canopen.AccessStatus) {
	return func() (canopen.Data, canopen.AccessStatus) {
		return canopen.Uint32Data(f()), canopen.AccessOK
	}
}

func readBool(f func() bool) func() (canopen.Data, canopen.AccessStatus) {
	return func() (canopen.Data, canopen.AccessStatus) {
		return canopen.BoolData(f()), canopen.AccessOK
	}
}

// task wraps a command as a write-only entry. Any written value triggers it.
func task(index uint16, name string, run func() bool) canopen.Entry {
	return canopen.Entry{
		Index:    index,
		Category: "task",
		Name:     name,
		Type:     canopen.TypeUint32,
		Access:   canopen.AccessWrite,
		Write: func(canopen.Data) canopen.AccessStatus {
			if !run() {
				log.Printf("task %s refused", name)
				return canopen.AccessFail
			}
			log.Printf("task %s", name)
			return canopen.AccessOK
		},
	}
}

func (o *dictionaryOwner) entries() []canopen.Entry {
	conv := o.conv
	s := conv.Settings()
	fcs := o.fc.Settings()

	entries := []canopen.Entry{
		{Index: IndexDevice, Subindex: 0x00, Category: "device", Name: "name", Type: canopen.TypeString4, Access: canopen.AccessRead, Ptr: &o.cfg.Name},
		{Index: IndexDevice, Subindex: 0x01, Category: "device", Name: "serial", Type: canopen.TypeUint32, Access: canopen.AccessRead, Ptr: &o.cfg.Serial},
		{Index: IndexDevice, Subindex: 0x02, Category: "device", Name: "uptime", Unit: "s", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(func() float64 { return float64(o.board.Now()) / 1000 })},
		{Index: IndexDevice, Subindex: 0x03, Category: "device", Name: "version", Type: canopen.TypeString4, Access: canopen.AccessRead, Ptr: &o.cfg.Version},
		{Index: IndexDevice, Subindex: 0x04, Category: "device", Name: "build", Type: canopen.TypeUint32, Access: canopen.AccessRead, Ptr: &o.cfg.Build},

		{Index: IndexState, Subindex: 0x00, Category: "converter", Name: "state", Type: canopen.TypeUint8, Access: canopen.AccessRead, Read: readUint(func() uint32 { return uint32(conv.State()) })},
		{Index: IndexState, Subindex: 0x01, Category: "converter", Name: "state_time", Unit: "ms", Type: canopen.TypeUint32, Access: canopen.AccessRead, Read: readUint(conv.Timestamp)},

		{Index: IndexMeasurements, Subindex: 0x01, Category: "converter", Subcategory: "measure", Name: "voltage_in", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(conv.VoltageIn)},
		{Index: IndexMeasurements, Subindex: 0x02, Category: "converter", Subcategory: "measure", Name: "voltage_out", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(conv.VoltageOut)},
		{Index: IndexMeasurements, Subindex: 0x03, Category: "converter", Subcategory: "measure", Name: "current_in", Unit: "A", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(conv.CurrentIn)},
		{Index: IndexMeasurements, Subindex: 0x04, Category: "converter", Subcategory: "measure", Name: "temperature", Unit: "C", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(conv.Temperature)},
		{Index: IndexMeasurements, Subindex: 0x05, Category: "converter", Subcategory: "measure", Name: "duty_cycle", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(conv.DutyCycle)},
		{Index: IndexMeasurements, Subindex: 0x06, Category: "converter", Subcategory: "measure", Name: "current_in_ref", Unit: "A", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(conv.CurrentInRef)},
		{Index: IndexMeasurements, Subindex: 0x07, Category: "converter", Subcategory: "measure", Name: "current_in_setpoint", Unit: "A", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(conv.CurrentInSetpoint)},

		{
			Index: IndexCurrentInLimit, Category: "converter", Name: "current_in_limit", Unit: "A",
			Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite,
			Read: readFloat(conv.CurrentInLimit),
			Write: func(d canopen.Data) canopen.AccessStatus {
				if !conv.SetCurrentInLimit(float64(d.Float32())) {
					return canopen.AccessFail
				}
				return canopen.AccessOK
			},
		},

		{Index: IndexProtection, Subindex: 0x01, Category: "converter", Subcategory: "protection", Name: "voltage_in_min", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite, Ptr: &s.VoltageInMin},
		{Index: IndexProtection, Subindex: 0x02, Category: "converter", Subcategory: "protection", Name: "voltage_in_max", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite, Ptr: &s.VoltageInMax},
		{Index: IndexProtection, Subindex: 0x03, Category: "converter", Subcategory: "protection", Name: "voltage_out_min", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite, Ptr: &s.VoltageOutMin},
		{Index: IndexProtection, Subindex: 0x04, Category: "converter", Subcategory: "protection", Name: "voltage_out_max", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite, Ptr: &s.VoltageOutMax},
		{Index: IndexProtection, Subindex: 0x05, Category: "converter", Subcategory: "protection", Name: "current_in_trip", Unit: "A", Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite, Ptr: &s.CurrentInTrip},
		{Index: IndexProtection, Subindex: 0x06, Category: "converter", Subcategory: "protection", Name: "temperature_max", Unit: "C", Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite, Ptr: &s.TemperatureMax},
		{Index: IndexProtection, Subindex: 0x07, Category: "converter", Subcategory: "protection", Name: "battery_full", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite, Ptr: &s.BatteryFull},
		{Index: IndexProtection, Subindex: 0x08, Category: "converter", Subcategory: "protection", Name: "min_cell_voltage", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessReadWrite, Ptr: &s.MinCellVoltage},
		{Index: IndexProtection, Subindex: 0x09, Category: "converter", Subcategory: "timing", Name: "startup_timeout", Unit: "ms", Type: canopen.TypeUint32, Access: canopen.AccessReadWrite, Ptr: &s.StartupTimeout},
		{Index: IndexProtection, Subindex: 0x0A, Category: "converter", Subcategory: "timing", Name: "ready_delay", Unit: "ms", Type: canopen.TypeUint32, Access: canopen.AccessReadWrite, Ptr: &s.ReadyDelay},
		{Index: IndexProtection, Subindex: 0x0B, Category: "converter", Subcategory: "timing", Name: "shutdown_delay", Unit: "ms", Type: canopen.TypeUint32, Access: canopen.AccessReadWrite, Ptr: &s.ShutdownDelay},
		{Index: IndexProtection, Subindex: 0x0C, Category: "converter", Subcategory: "timing", Name: "error_enable_delay", Unit: "ms", Type: canopen.TypeUint32, Access: canopen.AccessReadWrite, Ptr: &s.ErrorEnableDelay},

		{Index: IndexFuelCell, Subindex: 0x00, Category: "fuelcell", Name: "running", Type: canopen.TypeBool, Access: canopen.AccessRead, Read: readBool(o.fc.IsRunning)},
		{Index: IndexFuelCell, Subindex: 0x01, Category: "fuelcell", Name: "in_operation", Type: canopen.TypeBool, Access: canopen.AccessRead, Read: readBool(o.fc.InOperation)},
		{Index: IndexFuelCell, Subindex: 0x02, Category: "fuelcell", Name: "min_cell_voltage", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(o.fc.MinCellVoltage)},
		{Index: IndexFuelCell, Subindex: 0x03, Category: "fuelcell", Name: "max_temperature", Unit: "C", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(o.fc.MaxTemperature)},
		{Index: IndexFuelCell, Subindex: 0x04, Category: "fuelcell", Name: "errors_enabled", Type: canopen.TypeBool, Access: canopen.AccessRead, Read: readBool(o.fc.ErrorsEnabled)},
		{Index: IndexFuelCell, Subindex: 0x05, Category: "fuelcell", Name: "cell_count", Type: canopen.TypeInt32, Access: canopen.AccessRead, Ptr: &fcs.CellCount},
		{Index: IndexFuelCell, Subindex: 0x06, Category: "fuelcell", Name: "error_delay", Unit: "ms", Type: canopen.TypeUint32, Access: canopen.AccessReadWrite, Ptr: &fcs.ErrorDelay},
		{Index: IndexFuelCell, Subindex: 0x07, Category: "fuelcell", Name: "link_timeout", Unit: "ms", Type: canopen.TypeUint32, Access: canopen.AccessReadWrite, Ptr: &fcs.LinkTimeout},

		{Index: IndexFaults, Subindex: 0x00, Category: "faults", Name: "errors", Type: canopen.TypeUint32, Access: canopen.AccessRead, Read: readUint(func() uint32 { return uint32(o.faults.Errors()) })},
		{Index: IndexFaults, Subindex: 0x01, Category: "faults", Name: "warnings", Type: canopen.TypeUint32, Access: canopen.AccessRead, Read: readUint(func() uint32 { return uint32(o.faults.Warnings()) })},
		{Index: IndexFaults, Subindex: 0x02, Category: "faults", Name: "error_count", Type: canopen.TypeUint8, Access: canopen.AccessRead, Read: readUint(func() uint32 { return uint32(o.faults.ErrorCount()) })},
		{Index: IndexFaults, Subindex: 0x03, Category: "faults", Name: "dropped_messages", Type: canopen.TypeUint32, Access: canopen.AccessRead, Read: readUint(o.faults.Dropped)},

		task(IndexTaskStartup, "startup", conv.Startup),
		task(IndexTaskShutdown, "shutdown", func() bool { conv.Shutdown(); return true }),
		task(IndexTaskStartCharge, "start_charging", conv.StartCharging),
		task(IndexTaskStopCharge, "stop_charging", func() bool { conv.StopCharging(); return true }),
		task(IndexTaskEmergency, "emergency_shutdown", func() bool { conv.EmergencyShutdown(); return true }),
		task(IndexTaskResetFaults, "reset_faults", func() bool { o.faults.Reset(); return true }),
		task(IndexTaskDeviceReset, "device_reset", func() bool { conv.Reset(); return true }),
		task(IndexTaskRelayOn, "relay_on", func() bool { return conv.SetRelay(true) }),
		task(IndexTaskRelayOff, "relay_off", func() bool { return conv.SetRelay(false) }),
		task(IndexTaskFuelStart, "fuelcell_start", o.fc.Start),
		task(IndexTaskFuelStop, "fuelcell_stop", o.fc.Stop),
	}

	for i := range fcs.CellCount {
		entries = append(entries, o.cellEntries(i)...)
	}
	return entries
}

func (o *dictionaryOwner) cellEntries(i int) []canopen.Entry {
	index := IndexCellBase + uint16(i)
	sub := fmt.Sprintf("cell%d", i+1)
	cell := func() fuelcell.Cell {
		t := o.fc.Cells()
		return t.Cells[i]
	}

	return []canopen.Entry{
		{Index: index, Subindex: 0x01, Category: "fuelcell", Subcategory: sub, Name: "valid", Type: canopen.TypeBool, Access: canopen.AccessRead, Read: readBool(func() bool { return cell().Valid })},
		{Index: index, Subindex: 0x02, Category: "fuelcell", Subcategory: sub, Name: "cell_voltage", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(func() float64 { return cell().CellVoltage })},
		{Index: index, Subindex: 0x03, Category: "fuelcell", Subcategory: sub, Name: "temperature", Unit: "C", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(func() float64 { return cell().Temperature })},
		{Index: index, Subindex: 0x04, Category: "fuelcell", Subcategory: sub, Name: "battery_voltage", Unit: "V", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(func() float64 { return cell().BatteryVoltage })},
		{Index: index, Subindex: 0x05, Category: "fuelcell", Subcategory: sub, Name: "current", Unit: "A", Type: canopen.TypeFloat32, Access: canopen.AccessRead, Read: readFloat(func() float64 { return cell().Current })},
		{Index: index, Subindex: 0x06, Category: "fuelcell", Subcategory: sub, Name: "status", Type: canopen.TypeUint8, Access: canopen.AccessRead, Read: readUint(func() uint32 { return uint32(cell().Status) })},
	}
}

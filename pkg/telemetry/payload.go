// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry publishes converter state and fault messages to an MQTT
// broker.
package telemetry

import (
	"encoding/json"
	"strings"

	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

// TopicPrefix is the first topic level of every published message.
const TopicPrefix = "fuelboost"

// StateTopic returns the retained state topic of a device.
func StateTopic(device string) string {
	return TopicPrefix + "/" + strings.ToLower(device) + "/state"
}

// FaultTopic returns the fault message topic of a device.
func FaultTopic(device string) string {
	return TopicPrefix + "/" + strings.ToLower(device) + "/faults"
}

// State is the JSON body of a state message.
type State struct {
	Device         string   `json:"device"`
	Uptime         uint32   `json:"uptime_ms"`
	State          string   `json:"state"`
	StateTime      uint32   `json:"state_time_ms"`
	VoltageIn      float64  `json:"voltage_in"`
	VoltageOut     float64  `json:"voltage_out"`
	CurrentIn      float64  `json:"current_in"`
	Temperature    float64  `json:"temperature"`
	DutyCycle      float64  `json:"duty_cycle"`
	CurrentInRef   float64  `json:"current_in_ref"`
	CurrentInLimit float64  `json:"current_in_limit"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
}

// NewState converts a telemetry snapshot.
func NewState(device string, t hostlink.Telemetry) State {
	return State{
		Device:         device,
		Uptime:         t.Uptime,
		State:          t.State.String(),
		StateTime:      t.StateTime,
		VoltageIn:      round(t.VoltageIn, 100),
		VoltageOut:     round(t.VoltageOut, 100),
		CurrentIn:      round(t.CurrentIn, 100),
		Temperature:    round(t.Temperature, 10),
		DutyCycle:      round(t.DutyCycle, 1000),
		CurrentInRef:   round(t.CurrentInRef, 100),
		CurrentInLimit: round(t.CurrentInLimit, 100),
		Errors:         names(t.Errors.String()),
		Warnings:       names(t.Warnings.String()),
	}
}

// Fault is the JSON body of a fault message.
type Fault struct {
	Device  string `json:"device"`
	Time    uint32 `json:"time_ms"`
	Error   string `json:"error,omitempty"`
	Warning string `json:"warning,omitempty"`
	Text    string `json:"text"`
}

// NewFault converts a fault log message.
func NewFault(device string, m faults.Message) Fault {
	f := Fault{Device: device, Time: m.Time, Text: m.Text}
	if m.Error != 0 {
		f.Error = m.Error.String()
	}
	if m.Warning != 0 {
		f.Warning = m.Warning.String()
	}
	return f
}

// names splits a '|' joined mask name. An empty mask gives an empty list so
// the JSON carries [] rather than null.
func names(s string) []string {
	if s == "NONE" {
		return []string{}
	}
	return strings.Split(s, "|")
}

func round(v, scale float64) float64 {
	if v >= 0 {
		return float64(int64(v*scale+0.5)) / scale
	}
	return float64(int64(v*scale-0.5)) / scale
}

func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Both payload types are plain structs of strings and numbers
		panic(err)
	}
	return data
}

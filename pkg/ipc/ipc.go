// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ipc implements the flag-register handshake between the two cores.
//
// Each direction has one 32-bit register. A flag bit is owned by exactly one
// producer, which sets it after writing the payload behind it, and exactly one
// consumer, which clears it (acknowledges) after it is done with the payload.
// Between set and acknowledge the payload belongs to the consumer. Setting a
// flag that is still pending is a protocol violation: it is counted and
// reported as ErrOverrun, and the payload is left untouched.
//
// The registers are atomic, which gives the payload writes before Set a
// happens-before edge to the reads after IsSet on the other core.
package ipc

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
)

// ErrOverrun is returned when a flag is set again before it was acknowledged.
var ErrOverrun = errors.New("ipc: flag set before acknowledge")

// Flag is a bit number in a flag register.
type Flag uint8

// MaxFlags is the width of a flag register.
const MaxFlags = 32

// Register is a 32-bit flag register with single-bit set/clear/test.
type Register struct {
	bits       atomic.Uint32
	violations atomic.Uint32
}

func (r *Register) set(f Flag) error {
	mask := uint32(1) << f
	if old := r.bits.Or(mask); old&mask != 0 {
		r.violations.Add(1)
		return ErrOverrun
	}
	return nil
}

func (r *Register) clear(f Flag) {
	r.bits.And(^(uint32(1) << f))
}

// IsSet tests a single flag.
func (r *Register) IsSet(f Flag) bool {
	return r.bits.Load()&(uint32(1)<<f) != 0
}

// Word returns the whole register for diagnostics.
func (r *Register) Word() uint32 {
	return r.bits.Load()
}

// Violations returns how many overruns were reported on this register.
func (r *Register) Violations() uint32 {
	return r.violations.Load()
}

// Sender is the producer handle of a payload-less signal.
type Sender struct {
	reg  *Register
	flag Flag
}

// Receiver is the consumer handle of a payload-less signal.
type Receiver struct {
	reg  *Register
	flag Flag
}

// Signal returns the producer and consumer handles of one flag.
func Signal(reg *Register, f Flag) (Sender, Receiver) {
	if f >= MaxFlags {
		panic("ipc: flag out of range")
	}
	return Sender{reg: reg, flag: f}, Receiver{reg: reg, flag: f}
}

// Set raises the flag. Returns ErrOverrun if it is still pending.
func (s Sender) Set() error {
	return s.reg.set(s.flag)
}

// Pending reports whether the consumer has not yet acknowledged.
func (s Sender) Pending() bool {
	return s.reg.IsSet(s.flag)
}

// IsSet reports whether the producer raised the flag.
func (r Receiver) IsSet() bool {
	return r.reg.IsSet(r.flag)
}

// Acknowledge clears the flag, handing the payload back to the producer.
func (r Receiver) Acknowledge() {
	r.reg.clear(r.flag)
}

// WaitFor spins until the flag is set. Used only for startup barriers before
// the core's loops are running.
func WaitFor(ctx context.Context, r Receiver) error {
	for !r.IsSet() {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

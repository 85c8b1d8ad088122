// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package board

import "sync/atomic"

// ManualClock is a Clock advanced explicitly. It is safe to read from one
// core while the other advances it.
type ManualClock struct {
	ms atomic.Uint32
}

// Millis returns the current tick.
func (c *ManualClock) Millis() uint32 {
	return c.ms.Load()
}

// Set moves the clock to an absolute tick.
func (c *ManualClock) Set(ms uint32) {
	c.ms.Store(ms)
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(ms uint32) uint32 {
	return c.ms.Add(ms)
}

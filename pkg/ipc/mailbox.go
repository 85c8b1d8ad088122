// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ipc

// Mailbox is a fixed payload slot guarded by one flag. Only the Outbox may
// write the payload and only while the flag is clear; only the Inbox may read
// it and only while the flag is set.
type Mailbox[T any] struct {
	reg     *Register
	flag    Flag
	payload T
}

// NewMailbox creates a mailbox on the given register bit.
func NewMailbox[T any](reg *Register, f Flag) *Mailbox[T] {
	if f >= MaxFlags {
		panic("ipc: flag out of range")
	}
	return &Mailbox[T]{reg: reg, flag: f}
}

// Outbox returns the producer handle.
func (m *Mailbox[T]) Outbox() Outbox[T] {
	return Outbox[T]{m: m}
}

// Inbox returns the consumer handle.
func (m *Mailbox[T]) Inbox() Inbox[T] {
	return Inbox[T]{m: m}
}

// Outbox is the producer side of a Mailbox.
type Outbox[T any] struct {
	m *Mailbox[T]
}

// Publish writes the payload and raises the flag. If the previous payload was
// not acknowledged the new one is rejected with ErrOverrun.
func (o Outbox[T]) Publish(v T) error {
	if o.m.reg.IsSet(o.m.flag) {
		o.m.reg.violations.Add(1)
		return ErrOverrun
	}
	o.m.payload = v
	return o.m.reg.set(o.m.flag)
}

// TryPublish publishes only if the mailbox is free. It never counts a
// violation.
func (o Outbox[T]) TryPublish(v T) bool {
	if o.Pending() {
		return false
	}
	return o.Publish(v) == nil
}

// Pending reports whether the consumer still owns the payload.
func (o Outbox[T]) Pending() bool {
	return o.m.reg.IsSet(o.m.flag)
}

// Inbox is the consumer side of a Mailbox.
type Inbox[T any] struct {
	m *Mailbox[T]
}

// Ready reports whether a payload is waiting.
func (i Inbox[T]) Ready() bool {
	return i.m.reg.IsSet(i.m.flag)
}

// Payload returns a copy of the pending payload. Only valid while Ready.
func (i Inbox[T]) Payload() T {
	return i.m.payload
}

// Acknowledge releases the payload back to the producer.
func (i Inbox[T]) Acknowledge() {
	i.m.reg.clear(i.m.flag)
}

// Receive returns the payload and acknowledges it in one step.
func (i Inbox[T]) Receive() (T, bool) {
	if !i.Ready() {
		var zero T
		return zero, false
	}
	v := i.m.payload
	i.Acknowledge()
	return v, true
}

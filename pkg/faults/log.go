// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package faults

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MessageQueueSize is the number of messages kept before the oldest is dropped.
const MessageQueueSize = 32

// Message is one entry of the fault message queue.
type Message struct {
	Time    uint32 // ms since boot
	Error   Error
	Warning Warning
	Text    string
}

func (m Message) String() string {
	return fmt.Sprintf("[%10d] %s", m.Time, m.Text)
}

// Log is the shared fault registry. Masks are atomic so interrupt handlers on
// either core can raise bits; the message queue is guarded by a mutex and is
// only touched when a bit changes.
type Log struct {
	errors   atomic.Uint32
	warnings atomic.Uint32

	now func() uint32

	mu       sync.Mutex
	messages []Message
	dropped  uint32
}

// NewLog creates a fault log. now supplies message timestamps in ms.
func NewLog(now func() uint32) *Log {
	if now == nil {
		now = func() uint32 { return 0 }
	}
	return &Log{
		now:      now,
		messages: make([]Message, 0, MessageQueueSize),
	}
}

// Raise sets an error bit. Re-raising a set bit is a no-op.
func (l *Log) Raise(e Error) {
	old := Error(l.errors.Or(uint32(e)))
	if fresh := e &^ old; fresh != 0 {
		l.push(Message{Error: fresh, Text: "error: " + fresh.String()})
	}
}

// Warn sets a warning bit. Re-raising a set bit is a no-op.
func (l *Log) Warn(w Warning) {
	old := Warning(l.warnings.Or(uint32(w)))
	if fresh := w &^ old; fresh != 0 {
		l.push(Message{Warning: fresh, Text: "warning: " + fresh.String()})
	}
}

// Errors returns the current error mask.
func (l *Log) Errors() Error {
	return Error(l.errors.Load())
}

// Warnings returns the current warning mask.
func (l *Log) Warnings() Warning {
	return Warning(l.warnings.Load())
}

// HasErrors reports whether any error is set.
func (l *Log) HasErrors() bool {
	return l.errors.Load() != 0
}

// ErrorCount returns the number of set errors.
func (l *Log) ErrorCount() int {
	return l.Errors().Count()
}

// Has reports whether all bits of e are set.
func (l *Log) Has(e Error) bool {
	return l.Errors()&e == e
}

// HasWarning reports whether all bits of w are set.
func (l *Log) HasWarning(w Warning) bool {
	return l.Warnings()&w == w
}

// Reset clears warnings and every non-critical error.
func (l *Log) Reset() {
	l.errors.And(uint32(CriticalErrors))
	l.warnings.Store(0)
	l.push(Message{Text: "faults reset"})
}

// ResetAll clears everything, critical errors included.
func (l *Log) ResetAll() {
	l.errors.Store(0)
	l.warnings.Store(0)
	l.push(Message{Text: "all faults reset"})
}

// Note appends a free-form message to the queue.
func (l *Log) Note(format string, args ...any) {
	l.push(Message{Text: fmt.Sprintf(format, args...)})
}

// Messages returns a copy of the queued messages, oldest first.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Pop removes and returns the oldest message.
func (l *Log) Pop() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	m := l.messages[0]
	l.messages = append(l.messages[:0], l.messages[1:]...)
	return m, true
}

// Dropped returns how many messages were discarded because the queue was full.
func (l *Log) Dropped() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *Log) push(m Message) {
	m.Time = l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) == MessageQueueSize {
		l.messages = append(l.messages[:0], l.messages[1:]...)
		l.dropped++
	}
	l.messages = append(l.messages, m)
}

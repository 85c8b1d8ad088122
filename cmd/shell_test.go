// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the shell's report goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func newTestShell(t *testing.T) (*shell, *syncBuffer) {
	t.Helper()
	s, dev := startDevice(t)
	out := &syncBuffer{}
	sh := newShell(s, dev.Dictionary(), out)
	go sh.report()
	return sh, out
}

func TestShell_Execute(t *testing.T) {
	sh, out := newTestShell(t)
	ctx := context.Background()

	tests := []struct {
		line    string
		want    string
		wantErr string
	}{
		{line: "read device/name", want: `device/name = "FB01"`},
		{line: "read 0x1000.01", want: "device/serial = "},
		{line: "write converter/protection/temperature_max 70", want: "temperature_max <- 70"},
		{line: "read converter/protection/temperature_max", want: "temperature_max = 70 C"},
		{line: "list faults", want: "faults/dropped_messages"},
		{line: "reset_faults", want: "reset_faults: ok"},
		{line: "read device/version device/uptime", want: `device/version = "0.3"`},
		{line: "relay_on", want: "relay_on: ok"},
		{line: "relay_off", want: "relay_off: ok"},
		{line: "ping", want: "uptime "},
		{line: "help", want: "emergency_shutdown"},
		{line: "   "},
		{line: "read", wantErr: "usage"},
		{line: "write device/name FB02", wantErr: "not writable"},
		{line: "read converter/nothing", wantErr: "not found"},
		{line: "frobnicate", wantErr: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			err := sh.execute(ctx, tt.line)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestShell_Quit(t *testing.T) {
	sh := newShell(nil, nil, &bytes.Buffer{})
	assert.ErrorIs(t, sh.execute(context.Background(), "quit"), errQuit)
	assert.ErrorIs(t, sh.execute(context.Background(), "exit"), errQuit)
}

func TestHistoryFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	assert.Equal(t, dir+"/fuelboost/shell_history", historyFile())
	assert.DirExists(t, dir+"/fuelboost")
}

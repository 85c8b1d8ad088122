// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/fuelboost/pkg/canopen"
	"github.com/Thermoquad/fuelboost/pkg/firmware"
	"github.com/Thermoquad/fuelboost/pkg/hostlink"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive object dictionary shell",
	Long: `Open a readline shell on the device.

Reads, writes and tasks go over SDO. Fault reports are printed as they arrive;
"watch on" also prints telemetry. Type "help" for commands. History is kept in
$XDG_CACHE_HOME/fuelboost/shell_history.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// shellTasks maps shell commands to task entries.
var shellTasks = map[string]uint16{
	"startup":            firmware.IndexTaskStartup,
	"shutdown":           firmware.IndexTaskShutdown,
	"start_charging":     firmware.IndexTaskStartCharge,
	"stop_charging":      firmware.IndexTaskStopCharge,
	"emergency_shutdown": firmware.IndexTaskEmergency,
	"reset_faults":       firmware.IndexTaskResetFaults,
	"device_reset":       firmware.IndexTaskDeviceReset,
	"relay_on":           firmware.IndexTaskRelayOn,
	"relay_off":          firmware.IndexTaskRelayOff,
	"fuelcell_start":     firmware.IndexTaskFuelStart,
	"fuelcell_stop":      firmware.IndexTaskFuelStop,
}

const shellHelp = `Commands:
  list [category]         list dictionary entries
  read <entry>...         read entries by path or 0xINDEX.SUB
  write <entry> <value>   write an entry
  startup, shutdown       fuel-cell startup and shutdown
  start_charging          begin charging
  stop_charging           stop charging
  emergency_shutdown      open the relay immediately
  reset_faults            clear latched faults
  device_reset            reset the converter
  relay_on, relay_off     drive the input relay (standby only)
  fuelcell_start          request a fuel-cell start
  fuelcell_stop           request a fuel-cell stop
  ping                    ping the device
  watch on|off            print telemetry as it arrives
  stats                   host-link statistics
  quit                    leave the shell`

// shell executes shell commands against a session.
type shell struct {
	s       *session
	dict    *canopen.Dictionary
	timeout time.Duration

	pongs chan uint64 // ping response uptimes, fed by report

	mu       sync.Mutex
	out      io.Writer
	watching bool
}

func newShell(s *session, dict *canopen.Dictionary, out io.Writer) *shell {
	return &shell{
		s:       s,
		dict:    dict,
		timeout: 2 * time.Second,
		pongs:   make(chan uint64, 1),
		out:     out,
	}
}

// printf writes one line of output.
func (sh *shell) printf(format string, args ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.out, format+"\n", args...)
}

// errQuit ends the shell.
var errQuit = errors.New("quit")

// execute runs one command line.
func (sh *shell) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]

	ctx, cancel := context.WithTimeout(ctx, sh.timeout)
	defer cancel()

	if index, ok := shellTasks[name]; ok {
		if err := sh.s.Task(ctx, index); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		sh.printf("%s: ok", name)
		return nil
	}

	switch name {
	case "help", "?":
		sh.printf("%s", shellHelp)

	case "quit", "exit":
		return errQuit

	case "list":
		sh.mu.Lock()
		tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
		for _, e := range sh.dict.Entries() {
			if len(args) > 0 && e.Category != args[0] {
				continue
			}
			fmt.Fprintf(tw, "0x%04X.%02X\t%s\t%s\t%s\t%s\n", e.Index, e.Subindex, e.Path(), e.Type, e.Access, e.Unit)
		}
		err := tw.Flush()
		sh.mu.Unlock()
		return err

	case "read":
		if len(args) == 0 {
			return errors.New("usage: read <entry>...")
		}
		for _, arg := range args {
			e, err := sh.dict.Resolve(arg)
			if err != nil {
				return err
			}
			v, err := sh.s.Read(ctx, e)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Path(), err)
			}
			sh.printf("%s = %s %s", e.Path(), v, e.Unit)
		}

	case "write":
		if len(args) != 2 {
			return errors.New("usage: write <entry> <value>")
		}
		e, err := sh.dict.Resolve(args[0])
		if err != nil {
			return err
		}
		if err := sh.s.Write(ctx, e, args[1]); err != nil {
			return fmt.Errorf("%s: %w", e.Path(), err)
		}
		sh.printf("%s <- %s", e.Path(), args[1])

	case "ping":
		select {
		case <-sh.pongs:
		default:
		}
		start := time.Now()
		if err := sh.s.Send(hostlink.NewPingRequest(sh.s.address)); err != nil {
			return err
		}
		select {
		case uptime := <-sh.pongs:
			sh.printf("uptime %s, rtt %v", formatUptime(uptime), time.Since(start).Round(time.Millisecond))
		case <-ctx.Done():
			return fmt.Errorf("ping: %w", ctx.Err())
		}

	case "watch":
		on := len(args) == 0 || args[0] == "on"
		if err := sh.s.Send(hostlink.NewTelemetryConfig(sh.s.address, on, settings.Firmware.TelemetryInterval)); err != nil {
			return err
		}
		sh.mu.Lock()
		sh.watching = on
		sh.mu.Unlock()

	case "stats":
		stats := sh.s.Statistics()
		sh.printf("%s", strings.TrimRight(stats.String(), "\n"))

	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	return nil
}

// report prints asynchronous packets until the session ends and hands ping
// responses to the ping command.
func (sh *shell) report() {
	for p := range sh.s.Packets() {
		switch p.Type() {
		case hostlink.MsgPingResponse:
			uptime, _ := hostlink.GetMapUint(p.PayloadMap(), 0)
			select {
			case sh.pongs <- uptime:
			default:
			}
		case hostlink.MsgFaultReport:
			if r, err := hostlink.DecodeFaultReport(p); err == nil {
				sh.printf("fault [%10d] %s (errors %s)", r.Time, r.Text, r.Errors)
			}
		case hostlink.MsgErrorBusy:
			sh.printf("device busy, SDO request dropped")
		case hostlink.MsgTelemetry:
			sh.mu.Lock()
			watching := sh.watching
			sh.mu.Unlock()
			if !watching {
				continue
			}
			if t, err := hostlink.DecodeTelemetry(p); err == nil {
				sh.printf("%-14s Vin %5.1f V  Iin %5.2f A  Vout %5.1f V  D %4.2f  %5.1f C",
					t.State, t.VoltageIn, t.CurrentIn, t.VoltageOut, t.DutyCycle, t.Temperature)
			}
		}
	}
}

// readlineOutput redraws the prompt around asynchronous output
type readlineOutput struct {
	rl *readline.Instance
}

func (w readlineOutput) Write(p []byte) (int, error) {
	w.rl.Clean()
	n, err := os.Stdout.Write(p)
	w.rl.Refresh()
	return n, err
}

// historyFile returns the shell history path, or "" for no history.
func historyFile() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(cacheDir, "fuelboost")
	_ = os.MkdirAll(dir, 0o750)
	return filepath.Join(dir, "shell_history")
}

func runShell(cmd *cobra.Command, args []string) error {
	dict, err := deviceLayout()
	if err != nil {
		return err
	}
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      fmt.Sprintf("%s> ", settings.Firmware.Name),
		HistoryFile: historyFile(),
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	out := readlineOutput{rl: rl}
	log.SetOutput(out)
	defer log.SetOutput(os.Stderr)

	sh := newShell(s, dict, out)
	go sh.report()

	fmt.Printf("Connected: %s (type 'help' for commands)\n", s.info)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			return nil // EOF
		}

		switch err := sh.execute(cmd.Context(), line); {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			sh.printf("error: %v", err)
		}
	}
}

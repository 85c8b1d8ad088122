// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/fuelboost/pkg/faults"
	"github.com/Thermoquad/fuelboost/pkg/firmware"
	"github.com/Thermoquad/fuelboost/pkg/sim"
	"github.com/Thermoquad/fuelboost/pkg/telemetry"
)

var (
	simListen     string
	simServePort  string
	simSpeed      float64
	simMQTT       bool
	simMQTTPeriod time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the firmware against a simulated fuel cell",
	Long: `Run both firmware cores against a simulated fuel-cell stack, boost stage
and battery.

The host link is served over WebSocket (--listen) or a serial port
(--serve-port), one host at a time. Every other command can connect to it:

  fuelboost simulate --listen :8080
  fuelboost shell --url ws://localhost:8080/ws

Set FUELBOOST_PASSWORD to require HTTP Basic auth on the WebSocket. With --mqtt
and FUELBOOST_MQTT_BROKER set, state and faults are also published to MQTT.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simListen, "listen", "", "Serve the host link over WebSocket at this address (path /ws)")
	simulateCmd.Flags().StringVar(&simServePort, "serve-port", "", "Serve the host link on this serial port")
	simulateCmd.Flags().Float64Var(&simSpeed, "speed", 1, "Simulated time per wall time (0 runs unpaced)")
	simulateCmd.Flags().BoolVar(&simMQTT, "mqtt", false, "Publish state and faults to the MQTT broker")
	simulateCmd.Flags().DurationVar(&simMQTTPeriod, "mqtt-interval", telemetry.DefaultInterval, "Minimum time between MQTT state messages")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simListen == "" && simServePort == "" {
		return errors.New("either --listen or --serve-port must be specified")
	}
	if simMQTT && settings.MQTT.Broker == "" {
		return errors.New("--mqtt needs FUELBOOST_MQTT_BROKER")
	}

	s, err := sim.New(settings.Sim)
	if err != nil {
		return err
	}
	port := firmware.NewStreamPort(32)
	dev, err := firmware.NewDevice(settings.Firmware, s.Board(faults.NewLog(s.Clock.Millis)), s.Node, port)
	if err != nil {
		return err
	}
	s.SetSpeed(simSpeed)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if simMQTT {
		pub := telemetry.NewPublisher(settings.Firmware.Name, simMQTTPeriod, telemetry.DefaultQueueDepth)
		dev.Comm.SetObserver(pub)

		clients := make(chan telemetry.Client, 1)
		if err := telemetry.Connect(ctx, settings.MQTT, clients); err != nil {
			return err
		}
		g.Go(func() error {
			pub.Run(ctx, clients)
			return nil
		})
	}

	g.Go(func() error { return dev.Run(ctx) })

	if simListen != "" {
		g.Go(func() error { return serveWebSocket(ctx, simListen, port) })
	}
	if simServePort != "" {
		g.Go(func() error { return serveSerial(ctx, simServePort, port) })
	}

	log.Printf("simulate: %s at %gx, address 0x%016X", settings.Firmware.Name, simSpeed, settings.Firmware.Address)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("simulate: stopped after %v simulated", s.Elapsed().Round(time.Millisecond))
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// serveWebSocket serves the host link at /ws until ctx is done.
func serveWebSocket(ctx context.Context, addr string, port *firmware.StreamPort) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if settings.Password != "" {
			if _, pass, ok := r.BasicAuth(); !ok || pass != settings.Password {
				w.Header().Set("WWW-Authenticate", `Basic realm="fuelboost"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if port.Attached() {
			http.Error(w, firmware.ErrAttached.Error(), http.StatusConflict)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("simulate: upgrade: %v", err)
			return
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		log.Printf("simulate: host %s connected", r.RemoteAddr)
		err = port.Attach(NewWebSocketConnection(conn))
		if errors.Is(err, firmware.ErrAttached) {
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = conn.Close()
		log.Printf("simulate: host %s disconnected: %v", r.RemoteAddr, err)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("simulate: listening on ws://%s/ws", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}

// serveSerial attaches the serial port, reopening it after failures.
func serveSerial(ctx context.Context, name string, port *firmware.StreamPort) error {
	for {
		conn, err := OpenSerialConnection(name, baudRate)
		if err != nil {
			log.Printf("simulate: %v", err)
		} else {
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			log.Printf("simulate: serving %s @ %d baud", name, baudRate)
			err = port.Attach(conn)
			stop()
			_ = conn.Close()
			if ctx.Err() == nil {
				log.Printf("simulate: %s: %v", name, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

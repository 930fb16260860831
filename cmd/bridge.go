// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
	"github.com/Thermoquad/blemidi/pkg/bridge"
	"github.com/Thermoquad/blemidi/pkg/status"
	"github.com/Thermoquad/blemidi/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	bridgeInput         string
	bridgeSinkURL       string
	bridgeCapture       string
	bridgeMTU           int
	bridgeConnInterval  uint16
	bridgeRunningStatus bool
	bridgeRunningArity  bool
	bridgeStatusAddr    string
	bridgeTUI           bool
	bridgeStatsInterval int
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Transcode a serial MIDI stream into BLE-MIDI notifications",
	Long: `Read raw MIDI bytes from the selected source, rebuild complete messages and
emit BLE-MIDI notifications sized to the negotiated MTU.

Notifications go to the WebSocket peer given by --sink-url, which owns the BLE
link and reports link state, MTU and connection interval changes back. Without
a sink URL each notification is printed to stdout.

A finite source (--input) is drained and flushed on end of file. Ctrl+C stops
immediately and abandons any partially filled packet.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	f := bridgeCmd.Flags()
	f.StringVar(&bridgeInput, "input", "", "Read MIDI bytes from a file (- for stdin)")
	f.StringVar(&bridgeSinkURL, "sink-url", "", "WebSocket peer for notifications (ws:// or wss://)")
	f.StringVar(&bridgeCapture, "capture", "", "Record every notification to a CBOR capture file")
	f.IntVar(&bridgeMTU, "mtu", blemidi.DefaultMTU, "Initial ATT MTU (capacity is MTU-3)")
	f.Uint16Var(&bridgeConnInterval, "conn-interval", 0, "Initial connection interval in 1.25 ms units (default from device.intervalMin)")
	f.BoolVar(&bridgeRunningStatus, "running-status", false, "Omit repeated channel status bytes within a packet")
	f.BoolVar(&bridgeRunningArity, "running-arity", false, "Treat running program change and channel pressure data as one byte each")
	f.StringVar(&bridgeStatusAddr, "status-addr", "", "Serve statistics over HTTP on this address (e.g. :8080)")
	f.BoolVar(&bridgeTUI, "tui", false, "Show a live monitor instead of packet output")
	f.IntVar(&bridgeStatsInterval, "stats-interval", 0, "Print statistics every N seconds (0 to disable)")
}

// applyBridgeConfig fills bridge flags the user did not set from the config file.
func applyBridgeConfig(cmd *cobra.Command) {
	flags := cmd.Flags()
	if !flags.Changed("sink-url") && cfg.Sink.URL != "" {
		bridgeSinkURL = cfg.Sink.URL
	}
	if !flags.Changed("capture") && cfg.CapturePath != "" {
		bridgeCapture = cfg.CapturePath
	}
	if !flags.Changed("mtu") {
		bridgeMTU = cfg.Device.MTU
	}
	if !flags.Changed("conn-interval") {
		bridgeConnInterval = cfg.Device.IntervalMin
	}
	if !flags.Changed("running-status") && cfg.RunningStatus {
		bridgeRunningStatus = true
	}
	if !flags.Changed("running-arity") && cfg.RunningArity {
		bridgeRunningArity = true
	}
	if !flags.Changed("status-addr") && cfg.StatusAddr != "" {
		bridgeStatusAddr = cfg.StatusAddr
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	applyBridgeConfig(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx, bridgeInput)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger := slog.Default()
	var packets chan packetMsg
	if bridgeTUI {
		// The monitor owns the terminal
		logger = newLogger(io.Discard, slog.LevelError)
		packets = make(chan packetMsg, 256)
	}

	// next is assigned before Run starts; the bridge only sends from Run.
	var next blemidi.Transport
	var ws *transport.WebSocketSink
	opts := bridge.Options{
		MTU:           bridgeMTU,
		TickInterval:  bridgeTickInterval(),
		RunningStatus: bridgeRunningStatus,
		RunningArity:  bridgeRunningArity,
		Logger:        logger,
		Connected: func() bool {
			return ws == nil || ws.Connected()
		},
	}
	if packets != nil {
		opts.OnPacket = func(at time.Time, packet []byte) {
			msg := packetMsg{at: at, packet: append([]byte(nil), packet...)}
			select {
			case packets <- msg:
			default:
			}
		}
	}

	b, err := bridge.New(blemidi.TransportFunc(func(p []byte) error {
		return next.Send(p)
	}), opts)
	if err != nil {
		return err
	}

	sinkInfo := "stdout"
	switch {
	case bridgeSinkURL != "":
		dial, err := dialOptions(bridgeSinkURL)
		if err != nil {
			return err
		}
		ws, err = transport.NewWebSocketSink(ctx, transport.SinkOptions{
			DialOptions: dial,
			Announce: transport.Announce{
				Name:        cfg.Device.Name,
				IntervalMin: cfg.Device.IntervalMin,
				IntervalMax: cfg.Device.IntervalMax,
				MTU:         bridgeMTU,
			},
			Logger: logger,
			OnLink: func(up bool) {
				logger.Info("link state changed", "up", up)
			},
			OnMTU: func(mtu int) {
				if err := b.SetMTU(mtu); err != nil {
					logger.Debug("MTU update after shutdown", "mtu", mtu)
				}
			},
			OnConnInterval: func(units uint16) {
				if err := b.SetConnInterval(units); err != nil {
					logger.Debug("connection interval update ignored", "units", units, "error", err)
				}
			},
		})
		if err != nil {
			return err
		}
		defer ws.Close()
		next = ws
		sinkInfo = bridgeSinkURL

		go func() {
			select {
			case <-ws.Done():
				if err := ws.Err(); err != nil {
					logger.Warn("sink connection lost", "error", err)
				}
				stop()
			case <-b.Done():
			}
		}()
	case bridgeTUI:
		next = blemidi.TransportFunc(func([]byte) error { return nil })
		sinkInfo = "none"
	default:
		next = transport.NewWriterSink(os.Stdout)
	}

	if bridgeCapture != "" {
		f, err := os.Create(bridgeCapture)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		defer f.Close()
		rec := transport.NewCaptureRecorder(f, next)
		next = rec
		defer func() {
			logger.Info("capture written", "path", bridgeCapture, "records", rec.Records())
		}()
	}

	if bridgeStatusAddr != "" {
		srv := status.NewServer(b, status.Info{
			Device:        cfg.Device.Name,
			Source:        connInfo,
			Sink:          sinkInfo,
			MTU:           bridgeMTU,
			IntervalMin:   cfg.Device.IntervalMin,
			IntervalMax:   cfg.Device.IntervalMax,
			RunningStatus: bridgeRunningStatus,
			Capture:       bridgeCapture,
		})
		go func() {
			if err := srv.ListenAndServe(ctx, bridgeStatusAddr); err != nil {
				logger.Error("status server failed", "addr", bridgeStatusAddr, "error", err)
			}
		}()
	}

	go func() {
		if _, err := b.ReadFrom(conn); err != nil && !errors.Is(err, bridge.ErrClosed) {
			logger.Warn("source read failed", "error", err)
		}
		b.CloseInput()
	}()

	if bridgeTUI {
		return runMonitor(ctx, stop, b, packets, monitorInfo{source: connInfo, sink: sinkInfo})
	}

	fmt.Fprintf(os.Stderr, "blemidi - Bridge\n")
	fmt.Fprintf(os.Stderr, "Source: %s\n", connInfo)
	fmt.Fprintf(os.Stderr, "Sink: %s\n", sinkInfo)
	fmt.Fprintf(os.Stderr, "Capacity: %d bytes\n", blemidi.CapacityForMTU(bridgeMTU))
	fmt.Fprintf(os.Stderr, "Press Ctrl+C to exit\n\n")

	if bridgeStatsInterval > 0 {
		go printStats(b, time.Duration(bridgeStatsInterval)*time.Second)
	}

	err = b.Run(ctx)
	final := b.Stats()
	fmt.Fprintf(os.Stderr, "\n%s", final.String())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// bridgeTickInterval returns the initial flush period. Zero leaves the bridge
// default in place.
func bridgeTickInterval() time.Duration {
	if bridgeConnInterval == 0 {
		return 0
	}
	return bridge.ConnIntervalFromUnits(bridgeConnInterval)
}

// printStats writes a statistics summary every interval until the bridge stops.
func printStats(b *bridge.Bridge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			stats := b.Stats()
			fmt.Fprintf(os.Stderr, "\n%s", stats.String())
		case <-b.Done():
			return
		}
	}
}

// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/blemidi/pkg/bridge"
	"github.com/Thermoquad/blemidi/pkg/transport"
	"github.com/spf13/cobra"
)

var rawLogInput string

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display BLE-MIDI packets in human-readable format",
	Long: `Continuously transcode the MIDI source and print one line per BLE-MIDI
notification, listing the complete MIDI messages it carries.

Supports serial, WebSocket and file sources.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogInput, "input", "", "Read MIDI bytes from a file (- for stdin)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx, rawLogInput)
	if err != nil {
		return err
	}
	defer conn.Close()

	b, err := bridge.New(transport.NewCompactWriterSink(os.Stdout), bridge.Options{
		MTU: cfg.Device.MTU,
	})
	if err != nil {
		return err
	}

	fmt.Printf("blemidi - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	go func() {
		if _, err := b.ReadFrom(conn); err != nil && !errors.Is(err, bridge.ErrClosed) {
			slog.Info("source closed", "error", err)
		}
		b.CloseInput()
	}()

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

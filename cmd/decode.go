// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
	"github.com/Thermoquad/blemidi/pkg/transport"
	"github.com/spf13/cobra"
)

var decodeCompact bool

var decodeCmd = &cobra.Command{
	Use:   "decode <capture-file>",
	Short: "Print a recorded BLE-MIDI capture",
	Long: `Read a capture written by 'bridge --capture' and print each notification
with its decoded events, in the order it was sent.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeCompact, "compact", false, "One line per packet with reassembled messages")
}

func runDecode(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := printCapture(os.Stdout, f, decodeCompact)
	fmt.Fprintf(os.Stderr, "%d packets\n", n)
	return err
}

// printCapture writes every record in r to w and returns how many were read.
func printCapture(w io.Writer, r io.Reader, compact bool) (int, error) {
	reader := transport.NewCaptureReader(r)
	decoder := blemidi.NewDecoder()
	var asm blemidi.Assembler

	count := 0
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("record %d: %w", count, err)
		}
		count++

		events, decodeErr := decoder.DecodePacket(rec.Packet)
		var out string
		if compact {
			out = transport.FormatCompact(rec.Time(), rec.Packet, asm.Feed(events), decodeErr)
		} else {
			out = blemidi.FormatPacket(rec.Time(), rec.Packet, events, decodeErr)
		}
		if _, err := io.WriteString(w, out); err != nil {
			return count, err
		}
	}
}

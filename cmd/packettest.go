// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
	packetTestInput   string
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test the source by waiting for a MIDI event",
	Long: `Wait for the first MIDI event on the source until timeout.

Bytes are run through the transcoder; stray data bytes before the first status
byte are ignored. The first packet carrying an event counts as success.

Exit codes:
  0 - Event received before timeout
  1 - Timeout or end of input without receiving an event
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a message")
	packetTestCmd.Flags().StringVar(&packetTestInput, "input", "", "Read MIDI bytes from a file (- for stdin)")
}

// firstPacket feeds r through an engine and returns the first BLE-MIDI
// packet it produces along with the count of bytes ignored before it.
func firstPacket(r io.Reader) ([]byte, uint64, error) {
	var found []byte
	engine, err := blemidi.NewEngine(blemidi.TransportFunc(func(p []byte) error {
		if found == nil {
			found = p
		}
		return nil
	}), blemidi.CapacityForMTU(blemidi.DefaultMTU))
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	buf := make([]byte, 128)
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			ts := blemidi.TimestampFromMillis(uint64(time.Since(start).Milliseconds()))
			engine.ProcessByte(buf[i], ts)
			if engine.Counters().Events > 0 {
				engine.Flush(blemidi.FlushDrain)
				return found, engine.Counters().Ignored, nil
			}
		}
		if err != nil {
			return nil, engine.Counters().Ignored, err
		}
	}
}

// readExitCode maps a source error to an exit code. A source that ends
// cleanly never produced an event, same as a timeout.
func readExitCode(err error) int {
	if errors.Is(err, io.EOF) {
		return 1
	}
	return 2
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(context.Background(), packetTestInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("blemidi - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for a MIDI message...\n\n")

	type result struct {
		packet  []byte
		ignored uint64
		err     error
	}
	resultChan := make(chan result, 1)

	go func() {
		packet, ignored, err := firstPacket(conn)
		resultChan <- result{packet, ignored, err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			code := readExitCode(res.err)
			if code == 1 {
				fmt.Fprintf(os.Stderr, "NO EVENT: Input ended without a MIDI message\n")
			} else {
				fmt.Fprintf(os.Stderr, "Read error: %v\n", res.err)
			}
			os.Exit(code)
		}
		if res.ignored > 0 {
			fmt.Printf("(ignored %d bytes before sync)\n", res.ignored)
		}
		events, decodeErr := blemidi.DecodePacket(res.packet)
		fmt.Printf("SUCCESS: Received MIDI message\n")
		fmt.Print(blemidi.FormatPacket(time.Now(), res.packet, events, decodeErr))
		os.Exit(0)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No MIDI message received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}

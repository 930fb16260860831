// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/blemidi/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	wsTestDuration int
	wsTestSinkURL  string
)

var wsTestCmd = &cobra.Command{
	Use:   "ws_test",
	Short: "Test the WebSocket link to the BLE peer",
	Long: `Connect to the BLE peer as the bridge would, announce the advertising
parameters and log every control message received, without sending MIDI.
Useful for debugging link state, MTU and connection interval negotiation.

Exit codes:
  0 - Test completed normally
  1 - Connection lost during the test
  2 - Connection error`,
	RunE: runWsTest,
}

func init() {
	rootCmd.AddCommand(wsTestCmd)
	wsTestCmd.Flags().IntVar(&wsTestDuration, "duration", 30, "Test duration in seconds")
	wsTestCmd.Flags().StringVar(&wsTestSinkURL, "sink-url", "", "WebSocket peer URL (default from config)")
}

func runWsTest(cmd *cobra.Command, args []string) error {
	url := wsTestSinkURL
	if url == "" {
		url = cfg.Sink.URL
	}
	if url == "" {
		fmt.Fprintf(os.Stderr, "Connection error: --sink-url must be specified\n")
		os.Exit(2)
	}

	dial, err := dialOptions(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	stamp := func() string { return time.Now().Format("15:04:05.000") }
	var controls atomic.Uint64

	sink, err := transport.NewWebSocketSink(context.Background(), transport.SinkOptions{
		DialOptions: dial,
		Announce: transport.Announce{
			Name:        cfg.Device.Name,
			IntervalMin: cfg.Device.IntervalMin,
			IntervalMax: cfg.Device.IntervalMax,
			MTU:         cfg.Device.MTU,
		},
		OnLink: func(up bool) {
			controls.Add(1)
			fmt.Printf("[%s] Link %s\n", stamp(), map[bool]string{true: "UP", false: "DOWN"}[up])
		},
		OnMTU: func(mtu int) {
			controls.Add(1)
			fmt.Printf("[%s] MTU %d (capacity %d)\n", stamp(), mtu, mtu-3)
		},
		OnConnInterval: func(units uint16) {
			controls.Add(1)
			fmt.Printf("[%s] Connection interval %d (%.2f ms)\n", stamp(), units, float64(units)*1.25)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer sink.Close()

	fmt.Printf("WebSocket Link Test\n")
	fmt.Printf("Peer: %s\n", url)
	fmt.Printf("Announced: %q interval %d-%d MTU %d\n",
		cfg.Device.Name, cfg.Device.IntervalMin, cfg.Device.IntervalMax, cfg.Device.MTU)
	fmt.Printf("Duration: %d seconds\n\n", wsTestDuration)

	endTime := time.Now().Add(time.Duration(wsTestDuration) * time.Second)
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	for time.Now().Before(endTime) {
		select {
		case <-sink.Done():
			fmt.Printf("\n[%s] Connection error: %v\n", stamp(), sink.Err())
			fmt.Printf("\n--- Test Results ---\n")
			fmt.Printf("Control messages: %d\n", controls.Load())
			fmt.Printf("Result: FAILED (connection lost)\n")
			os.Exit(1)

		case <-heartbeat.C:
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected, link %s... (%.0fs remaining)\n",
				stamp(), map[bool]string{true: "up", false: "down"}[sink.Connected()], remaining)
		}
	}

	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %d seconds\n", wsTestDuration)
	fmt.Printf("Control messages: %d\n", controls.Load())
	fmt.Printf("Result: PASSED (connection stable)\n")

	return nil
}

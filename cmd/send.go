// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
	"github.com/Thermoquad/blemidi/pkg/bridge"
	"github.com/Thermoquad/blemidi/pkg/transport"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
)

var (
	sendSinkURL  string
	sendChannel  uint8
	sendNote     int
	sendVelocity uint8
	sendCC       int
	sendValue    uint8
	sendProgram  int
	sendSysEx    string
	sendRepeat   int
	sendGap      time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send test MIDI messages through the transcoder",
	Long: `Build MIDI messages and push them through the transcoder to the BLE peer,
without a serial instrument attached.

Examples:
  blemidi send --note 60 --velocity 100
  blemidi send --cc 7 --value 90 --channel 2
  blemidi send --sysex "7E 7F 06 01" --sink-url ws://peer/midi

A note is sent as note on followed by note off. Without --sink-url the
notifications are printed to stdout.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	f := sendCmd.Flags()
	f.StringVar(&sendSinkURL, "sink-url", "", "WebSocket peer for notifications (ws:// or wss://)")
	f.Uint8Var(&sendChannel, "channel", 0, "MIDI channel (0-15)")
	f.IntVar(&sendNote, "note", -1, "Note number to play")
	f.Uint8Var(&sendVelocity, "velocity", 100, "Note on velocity")
	f.IntVar(&sendCC, "cc", -1, "Controller number")
	f.Uint8Var(&sendValue, "value", 0, "Controller value")
	f.IntVar(&sendProgram, "program", -1, "Program change number")
	f.StringVar(&sendSysEx, "sysex", "", "SysEx payload in hex, without F0/F7")
	f.IntVar(&sendRepeat, "repeat", 1, "Number of times to send the sequence")
	f.DurationVar(&sendGap, "gap", 100*time.Millisecond, "Delay between messages")
}

// buildMessages returns the raw MIDI messages selected by the send flags.
func buildMessages() ([]midi.Message, error) {
	if sendChannel > 15 {
		return nil, fmt.Errorf("channel %d out of range", sendChannel)
	}
	var msgs []midi.Message
	if sendProgram >= 0 {
		if sendProgram > 127 {
			return nil, fmt.Errorf("program %d out of range", sendProgram)
		}
		msgs = append(msgs, midi.ProgramChange(sendChannel, uint8(sendProgram)))
	}
	if sendCC >= 0 {
		if sendCC > 127 || sendValue > 127 {
			return nil, fmt.Errorf("controller %d=%d out of range", sendCC, sendValue)
		}
		msgs = append(msgs, midi.ControlChange(sendChannel, uint8(sendCC), sendValue))
	}
	if sendNote >= 0 {
		if sendNote > 127 || sendVelocity > 127 {
			return nil, fmt.Errorf("note %d velocity %d out of range", sendNote, sendVelocity)
		}
		msgs = append(msgs,
			midi.NoteOn(sendChannel, uint8(sendNote), sendVelocity),
			midi.NoteOff(sendChannel, uint8(sendNote)))
	}
	if sendSysEx != "" {
		data, err := hex.DecodeString(strings.ReplaceAll(sendSysEx, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("sysex: %w", err)
		}
		for _, b := range data {
			if b > 0x7F {
				return nil, fmt.Errorf("sysex byte 0x%02X is not a data byte", b)
			}
		}
		msgs = append(msgs, midi.SysEx(data))
	}
	if len(msgs) == 0 {
		return nil, errors.New("nothing to send: use --note, --cc, --program or --sysex")
	}
	return msgs, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("sink-url") {
		sendSinkURL = cfg.Sink.URL
	}

	msgs, err := buildMessages()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var next blemidi.Transport = transport.NewWriterSink(os.Stdout)
	b, err := bridge.New(blemidi.TransportFunc(func(p []byte) error {
		return next.Send(p)
	}), bridge.Options{MTU: cfg.Device.MTU})
	if err != nil {
		return err
	}

	if sendSinkURL != "" {
		dial, err := dialOptions(sendSinkURL)
		if err != nil {
			return err
		}
		sink, err := transport.NewWebSocketSink(ctx, transport.SinkOptions{
			DialOptions: dial,
			Announce: transport.Announce{
				Name:        cfg.Device.Name,
				IntervalMin: cfg.Device.IntervalMin,
				IntervalMax: cfg.Device.IntervalMax,
				MTU:         cfg.Device.MTU,
			},
			OnMTU: func(mtu int) {
				b.SetMTU(mtu)
			},
			OnConnInterval: func(units uint16) {
				b.SetConnInterval(units)
			},
		})
		if err != nil {
			return err
		}
		defer sink.Close()
		next = sink
	}

	go func() {
		defer b.CloseInput()
		for i := 0; i < sendRepeat; i++ {
			for _, m := range msgs {
				fmt.Fprintf(os.Stderr, "-> %s\n", m.String())
				if _, err := b.Write(m.Bytes()); err != nil {
					return
				}
				select {
				case <-time.After(sendGap):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	err = b.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	if s, ok := next.(*transport.WebSocketSink); ok {
		fmt.Fprintf(os.Stderr, "sent %d notifications, dropped %d (link down)\n", s.Sent(), s.Dropped())
	}
	return nil
}

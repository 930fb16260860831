// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

import (
	"fmt"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// FormatPacket formats a notification and its decoded events into a
// human-readable block. events may be nil when decoding failed.
func FormatPacket(at time.Time, pkt []byte, events []Event, decodeErr error) string {
	var s strings.Builder
	fmt.Fprintf(&s, "[%s] NOTIFY len=%d", at.Format("15:04:05.000"), len(pkt))
	if len(pkt) > 0 {
		fmt.Fprintf(&s, " header=0x%02X", pkt[0])
	}
	s.WriteString("\n")
	s.WriteString(FormatHex(pkt))

	for _, ev := range events {
		fmt.Fprintf(&s, "  %s\n", FormatEvent(ev))
	}
	if decodeErr != nil {
		fmt.Fprintf(&s, "  DECODE ERROR: %v\n", decodeErr)
	}
	return s.String()
}

// FormatEvent formats a single decoded event
func FormatEvent(ev Event) string {
	switch ev.Kind {
	case EventSysExStart, EventSysExData, EventSysExEnd:
		return fmt.Sprintf("t=%4d %-13s % X", ev.Timestamp, ev.Kind, ev.Data)
	}
	return fmt.Sprintf("t=%4d %-13s %s", ev.Timestamp, ev.Kind, FormatMessage(ev.Data))
}

// FormatMessage renders a complete MIDI message
func FormatMessage(msg []byte) string {
	if len(msg) == 0 {
		return "(empty)"
	}
	if msg[0] == SysExStart {
		return fmt.Sprintf("SysEx len=%d % X", len(msg), msg)
	}
	return midi.Message(msg).String()
}

// FormatHex returns a hex dump, 16 bytes per line
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "  (no bytes)\n"
	}
	result := "  Bytes: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n         "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}

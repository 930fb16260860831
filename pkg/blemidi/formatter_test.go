// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

import (
	"strings"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name     string
		msg      []byte
		contains string
	}{
		{"note on", midi.NoteOn(0, 60, 100), "NoteOn"},
		{"control change", midi.ControlChange(1, 7, 64), "ControlChange"},
		{"sysex", []byte{0xF0, 0x7E, 0x01, 0xF7}, "SysEx len=4"},
		{"empty", nil, "(empty)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatMessage(tt.msg)
			if !strings.Contains(got, tt.contains) {
				t.Errorf("FormatMessage(% X) = %q, expected to contain %q", tt.msg, got, tt.contains)
			}
		})
	}
}

func TestFormatHex(t *testing.T) {
	if got := FormatHex(nil); !strings.Contains(got, "no bytes") {
		t.Errorf("unexpected empty dump %q", got)
	}

	data := make([]byte, 20)
	got := FormatHex(data)
	if lines := strings.Count(got, "\n"); lines != 2 {
		t.Errorf("expected 2 lines for 20 bytes, got %d: %q", lines, got)
	}
}

func TestFormatPacket(t *testing.T) {
	pkt := []byte{0x80, 0x80, 0x90, 0x40, 0x7F, 0x80, 0xF8}
	events, err := DecodePacket(pkt)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	at := time.Date(2025, 1, 1, 12, 30, 45, 0, time.UTC)

	out := FormatPacket(at, pkt, events, nil)
	for _, want := range []string{"12:30:45.000", "len=7", "header=0x80", "CHANNEL", "REAL_TIME"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "DECODE ERROR") {
		t.Errorf("unexpected decode error line:\n%s", out)
	}

	bad := []byte{0x00}
	_, decErr := DecodePacket(bad)
	out = FormatPacket(at, bad, nil, decErr)
	if !strings.Contains(out, "DECODE ERROR") {
		t.Errorf("expected decode error line:\n%s", out)
	}
}

func TestFormatEvent_SysEx(t *testing.T) {
	got := FormatEvent(Event{Timestamp: 5, Kind: EventSysExData, Data: []byte{0x01, 0x02}})
	if !strings.Contains(got, "SYSEX_DATA") || !strings.Contains(got, "01 02") {
		t.Errorf("unexpected sysex event format %q", got)
	}
}

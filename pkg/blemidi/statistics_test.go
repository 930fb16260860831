// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

import (
	"strings"
	"testing"
	"time"
)

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(Counters{Packets: 4, BytesSent: 40, BytesIn: 30}, 100)

	if s.Capacity != 100 {
		t.Errorf("Capacity = %d, expected 100", s.Capacity)
	}
	if s.AveragePacketSize() != 10 {
		t.Errorf("AveragePacketSize = %.1f, expected 10", s.AveragePacketSize())
	}
}

func TestStatistics_AveragePacketSizeEmpty(t *testing.T) {
	s := NewStatistics()
	if s.AveragePacketSize() != 0 {
		t.Errorf("expected 0 with no packets, got %.1f", s.AveragePacketSize())
	}
}

func TestStatistics_CalculateRates(t *testing.T) {
	s := NewStatistics()
	s.StartTime = time.Now().Add(-2 * time.Second)
	s.Update(Counters{Packets: 10, BytesIn: 100}, 20)
	s.CalculateRates()

	if s.PacketRate < 4 || s.PacketRate > 5.1 {
		t.Errorf("PacketRate = %.2f, expected about 5", s.PacketRate)
	}
	if s.ByteRate < 40 || s.ByteRate > 51 {
		t.Errorf("ByteRate = %.2f, expected about 50", s.ByteRate)
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.TickInterval = 15 * time.Millisecond
	s.Update(Counters{
		BytesIn:      12,
		Events:       4,
		Packets:      2,
		TickFlushes:  2,
		Reconfigures: 1,
		Discarded:    3,
	}, 514)

	out := s.String()
	for _, want := range []string{"MIDI Bytes In", "Packets Sent", "Reconfigures", "discarded 3 bytes", "514 bytes", "15ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Send Errors") {
		t.Errorf("summary should omit zero send errors:\n%s", out)
	}
}

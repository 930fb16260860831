// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

import (
	"bytes"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// recorder is a Transport that keeps every packet it is handed
type recorder struct {
	packets [][]byte
	err     error
}

func (r *recorder) Send(packet []byte) error {
	r.packets = append(r.packets, packet)
	return r.err
}

func newTestEngine(t *testing.T, capacity int, opts ...Option) (*Engine, *recorder) {
	t.Helper()
	rec := &recorder{}
	e, err := NewEngine(rec, capacity, opts...)
	if err != nil {
		t.Fatalf("NewEngine(%d) failed: %v", capacity, err)
	}
	return e, rec
}

func assertBytes(t *testing.T, what string, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Errorf("%s mismatch:\n  expected % X\n  got      % X", what, want, got)
	}
}

// ============================================================
// Classifier Tests
// ============================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		b        byte
		expected Class
	}{
		{0x00, ClassData},
		{0x7F, ClassData},
		{0x80, ClassChannelVoice2},
		{0x9F, ClassChannelVoice2},
		{0xA3, ClassChannelVoice2},
		{0xB0, ClassChannelVoice2},
		{0xC5, ClassChannelVoice1},
		{0xDA, ClassChannelVoice1},
		{0xEF, ClassChannelVoice2},
		{0xF0, ClassSysExStart},
		{0xF1, ClassSysCommon1},
		{0xF2, ClassSysCommon2},
		{0xF3, ClassSysCommon1},
		{0xF4, ClassSysCommonUndefined},
		{0xF5, ClassSysCommonUndefined},
		{0xF6, ClassTuneRequest},
		{0xF7, ClassSysExEnd},
		{0xF8, ClassRealTime},
		{0xF9, ClassRealTime},
		{0xFD, ClassRealTime},
		{0xFF, ClassRealTime},
	}

	for _, tt := range tests {
		t.Run(tt.expected.String(), func(t *testing.T) {
			if got := Classify(tt.b); got != tt.expected {
				t.Errorf("Classify(0x%02X) = %s, expected %s", tt.b, got, tt.expected)
			}
		})
	}
}

func TestClassify_EveryByteHasOneClass(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		c := Classify(b)
		if c >= numClasses {
			t.Fatalf("Classify(0x%02X) returned out-of-range class %d", b, c)
		}
		if (b&0x80 != 0) != c.IsStatus() {
			t.Errorf("Classify(0x%02X) = %s disagrees with status bit", b, c)
		}
	}
}

func TestDataLength(t *testing.T) {
	tests := []struct {
		b        byte
		expected int
	}{
		{0x40, -1},
		{0x90, 2},
		{0xC0, 1},
		{0xD0, 1},
		{0xE0, 2},
		{0xF0, -1},
		{0xF1, 1},
		{0xF2, 2},
		{0xF3, 1},
		{0xF5, -1},
		{0xF6, 0},
		{0xF7, 0},
		{0xF8, 0},
	}

	for _, tt := range tests {
		if got := DataLength(tt.b); got != tt.expected {
			t.Errorf("DataLength(0x%02X) = %d, expected %d", tt.b, got, tt.expected)
		}
	}
}

// ============================================================
// Timestamp Tests
// ============================================================

func TestTimestamp_HighLow(t *testing.T) {
	tests := []struct {
		ms   uint64
		high byte
		low  byte
	}{
		{0, 0x80, 0x80},
		{127, 0x80, 0xFF},
		{128, 0x81, 0x80},
		{0x1234, 0xA4, 0xB4},
		{8191, 0xBF, 0xFF},
		{8192, 0x80, 0x80}, // wraps
		{8192 + 300, 0x82, 0xAC},
	}

	for _, tt := range tests {
		ts := TimestampFromMillis(tt.ms)
		if ts.High() != tt.high {
			t.Errorf("ms=%d: High() = 0x%02X, expected 0x%02X", tt.ms, ts.High(), tt.high)
		}
		if ts.Low() != tt.low {
			t.Errorf("ms=%d: Low() = 0x%02X, expected 0x%02X", tt.ms, ts.Low(), tt.low)
		}
		if back := JoinTimestamp(ts.High(), ts.Low()); back != ts {
			t.Errorf("ms=%d: JoinTimestamp = %d, expected %d", tt.ms, back, ts)
		}
	}
}

func TestCapacityForMTU(t *testing.T) {
	if got := CapacityForMTU(DefaultMTU); got != 514 {
		t.Errorf("CapacityForMTU(%d) = %d, expected 514", DefaultMTU, got)
	}
	if got := CapacityForMTU(23); got != 20 {
		t.Errorf("CapacityForMTU(23) = %d, expected 20", got)
	}
	if DefaultCapacity != 514 {
		t.Errorf("DefaultCapacity = %d, expected 514", DefaultCapacity)
	}
}

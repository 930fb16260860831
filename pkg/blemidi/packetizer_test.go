// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

import (
	"errors"
	"testing"
)

func TestNewPacketizer_RejectsSmallCapacity(t *testing.T) {
	for _, capacity := range []int{-1, 0, 4} {
		_, err := NewPacketizer(nil, capacity)
		if !errors.Is(err, ErrCapacityTooSmall) {
			t.Errorf("capacity %d: expected ErrCapacityTooSmall, got %v", capacity, err)
		}
	}
	if _, err := NewPacketizer(nil, MinCapacity); err != nil {
		t.Errorf("capacity %d should be accepted: %v", MinCapacity, err)
	}
}

func TestNewPacketizer_RejectsLargeCapacity(t *testing.T) {
	for _, capacity := range []int{MaxCapacity + 1, CapacityForMTU(1 << 20), CapacityForMTU(1 << 62)} {
		_, err := NewPacketizer(nil, capacity)
		if !errors.Is(err, ErrCapacityTooLarge) {
			t.Errorf("capacity %d: expected ErrCapacityTooLarge, got %v", capacity, err)
		}
	}
	if _, err := NewPacketizer(nil, MaxCapacity); err != nil {
		t.Errorf("capacity %d should be accepted: %v", MaxCapacity, err)
	}
}

func TestPacketizer_Append(t *testing.T) {
	p, _ := NewPacketizer(nil, 64)

	p.Append(TimestampFromMillis(0x1234), 0x90, 0x40, 0x7F)
	p.Append(TimestampFromMillis(0x1235), RealTimeClock)
	p.AppendRaw(TimestampFromMillis(0x1236), 0x05)

	assertBytes(t, "buffer", p.Bytes(), []byte{0xA4, 0xB4, 0x90, 0x40, 0x7F, 0xB5, 0xF8, 0x05})
}

func TestPacketizer_HeaderFromFirstEvent(t *testing.T) {
	rec := &recorder{}
	p, _ := NewPacketizer(rec, 64)

	p.Append(TimestampFromMillis(100), 0xC0, 0x01)
	p.Append(TimestampFromMillis(300), 0xC0, 0x02)
	if p.Bytes()[0] != TimestampFromMillis(100).High() {
		t.Errorf("header = 0x%02X, expected first event's 0x%02X", p.Bytes()[0], TimestampFromMillis(100).High())
	}

	p.Flush(FlushTick)
	p.Append(TimestampFromMillis(300), 0xC0, 0x03)
	if p.Bytes()[0] != TimestampFromMillis(300).High() {
		t.Errorf("header after flush = 0x%02X, expected 0x%02X", p.Bytes()[0], TimestampFromMillis(300).High())
	}
}

func TestPacketizer_FlushOnOverflow(t *testing.T) {
	rec := &recorder{}
	// header + one 4-byte event fits; a second 4-byte event does not
	p, _ := NewPacketizer(rec, 8)

	p.Append(0, 0x90, 0x40, 0x7F)
	if len(rec.packets) != 0 {
		t.Fatalf("unexpected send before overflow")
	}
	p.Append(0, 0x90, 0x41, 0x00)

	if len(rec.packets) != 1 {
		t.Fatalf("expected 1 packet sent on overflow, got %d", len(rec.packets))
	}
	assertBytes(t, "flushed packet", rec.packets[0], []byte{0x80, 0x80, 0x90, 0x40, 0x7F})
	assertBytes(t, "buffer", p.Bytes(), []byte{0x80, 0x80, 0x90, 0x41, 0x00})

	c := p.Counters()
	if c.OverflowFlushes != 1 || c.Packets != 1 || c.BytesSent != 5 {
		t.Errorf("unexpected counters: %+v", c)
	}
}

func TestPacketizer_ExactFit(t *testing.T) {
	rec := &recorder{}
	p, _ := NewPacketizer(rec, 9)

	p.Append(0, 0x90, 0x40, 0x7F)
	p.Append(0, 0x80, 0x40, 0x00)

	if len(rec.packets) != 0 {
		t.Errorf("expected no flush when events fill capacity exactly, got %d", len(rec.packets))
	}
	if p.Len() != 9 {
		t.Errorf("expected len 9, got %d", p.Len())
	}
}

func TestPacketizer_RawOverflow(t *testing.T) {
	rec := &recorder{}
	p, _ := NewPacketizer(rec, 5)

	p.Append(0, SysExStart, 0x01)
	p.AppendRaw(0, 0x02)
	p.AppendRaw(0, 0x03)

	if len(rec.packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(rec.packets))
	}
	assertBytes(t, "flushed packet", rec.packets[0], []byte{0x80, 0x80, 0xF0, 0x01, 0x02})
	assertBytes(t, "buffer", p.Bytes(), []byte{0x80, 0x03})
}

func TestPacketizer_IdempotentFlush(t *testing.T) {
	rec := &recorder{}
	p, _ := NewPacketizer(rec, 16)

	before := p.Counters()
	if p.Flush(FlushTick) {
		t.Error("Flush on empty buffer reported a send")
	}
	if len(rec.packets) != 0 {
		t.Errorf("expected no transport call, got %d", len(rec.packets))
	}
	if p.Counters() != before {
		t.Errorf("counters changed on empty flush: %+v", p.Counters())
	}

	p.Append(0, 0xF8)
	if !p.Flush(FlushTick) {
		t.Error("Flush on non-empty buffer reported no send")
	}
	p.Flush(FlushTick)
	if len(rec.packets) != 1 {
		t.Errorf("expected exactly 1 packet, got %d", len(rec.packets))
	}
}

func TestPacketizer_FlushHandsOffCopy(t *testing.T) {
	rec := &recorder{}
	p, _ := NewPacketizer(rec, 16)

	p.Append(0, 0xC0, 0x01)
	p.Flush(FlushTick)
	p.Append(0, 0xC0, 0x02)

	assertBytes(t, "first packet", rec.packets[0], []byte{0x80, 0x80, 0xC0, 0x01})
}

func TestPacketizer_SendErrorCounted(t *testing.T) {
	rec := &recorder{err: errors.New("link down")}
	p, _ := NewPacketizer(rec, 16)

	p.Append(0, 0xF8)
	p.Flush(FlushTick)

	if p.Len() != 0 {
		t.Errorf("buffer should reset even when send fails, len=%d", p.Len())
	}
	if p.Counters().SendErrors != 1 {
		t.Errorf("expected 1 send error, got %d", p.Counters().SendErrors)
	}
}

func TestPacketizer_ReconfigureDiscards(t *testing.T) {
	rec := &recorder{}
	p, _ := NewPacketizer(rec, 16)

	p.Append(0, 0x90, 0x40, 0x7F)
	discarded, err := p.Reconfigure(32)
	if err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}

	if discarded != 5 {
		t.Errorf("expected 5 discarded bytes, got %d", discarded)
	}
	if p.Len() != 0 || p.Capacity() != 32 {
		t.Errorf("expected empty buffer of 32, got len=%d cap=%d", p.Len(), p.Capacity())
	}
	if len(rec.packets) != 0 {
		t.Errorf("discarded bytes must not reach the transport, got %d packets", len(rec.packets))
	}
	c := p.Counters()
	if c.Reconfigures != 1 || c.Discarded != 5 {
		t.Errorf("unexpected counters: %+v", c)
	}
}

func TestPacketizer_ReconfigureRejected(t *testing.T) {
	p, _ := NewPacketizer(nil, 16)
	p.Append(0, 0xF8)

	_, err := p.Reconfigure(4)
	if !errors.Is(err, ErrCapacityTooSmall) {
		t.Fatalf("expected ErrCapacityTooSmall, got %v", err)
	}
	if p.Capacity() != 16 || p.Len() != 3 {
		t.Errorf("rejected reconfigure changed state: len=%d cap=%d", p.Len(), p.Capacity())
	}
	if p.Counters().RejectedReconfigures != 1 {
		t.Errorf("expected 1 rejected reconfigure, got %d", p.Counters().RejectedReconfigures)
	}
}

func TestPacketizer_ReconfigureRejectsHugeCapacity(t *testing.T) {
	p, _ := NewPacketizer(nil, 16)
	p.Append(0, 0xF8)

	_, err := p.Reconfigure(CapacityForMTU(1 << 62))
	if !errors.Is(err, ErrCapacityTooLarge) {
		t.Fatalf("expected ErrCapacityTooLarge, got %v", err)
	}
	if p.Capacity() != 16 || p.Len() != 3 {
		t.Errorf("rejected reconfigure changed state: len=%d cap=%d", p.Len(), p.Capacity())
	}
	if p.Counters().RejectedReconfigures != 1 {
		t.Errorf("expected 1 rejected reconfigure, got %d", p.Counters().RejectedReconfigures)
	}

	if _, err := p.Reconfigure(CapacityForMTU(MaxMTU)); err != nil {
		t.Errorf("largest MTU rejected: %v", err)
	}
}

func TestPacketizer_RunningStatus(t *testing.T) {
	tests := []struct {
		name     string
		events   [][]byte
		expected []byte
	}{
		{
			name:     "repeated status elided",
			events:   [][]byte{{0x90, 0x40, 0x7F}, {0x90, 0x41, 0x00}},
			expected: []byte{0x80, 0x80, 0x90, 0x40, 0x7F, 0x80, 0x41, 0x00},
		},
		{
			name:     "different status kept",
			events:   [][]byte{{0x90, 0x40, 0x7F}, {0x91, 0x41, 0x00}},
			expected: []byte{0x80, 0x80, 0x90, 0x40, 0x7F, 0x80, 0x91, 0x41, 0x00},
		},
		{
			name:     "real-time does not break running status",
			events:   [][]byte{{0xC0, 0x01}, {0xF8}, {0xC0, 0x02}},
			expected: []byte{0x80, 0x80, 0xC0, 0x01, 0x80, 0xF8, 0x80, 0x02},
		},
		{
			name:     "system common breaks running status",
			events:   [][]byte{{0xC0, 0x01}, {0xF6}, {0xC0, 0x02}},
			expected: []byte{0x80, 0x80, 0xC0, 0x01, 0x80, 0xF6, 0x80, 0xC0, 0x02},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := NewPacketizer(nil, 64, WithRunningStatus())
			for _, ev := range tt.events {
				p.Append(0, ev...)
			}
			assertBytes(t, "buffer", p.Bytes(), tt.expected)
		})
	}
}

func TestPacketizer_RunningStatusResetByFlush(t *testing.T) {
	rec := &recorder{}
	p, _ := NewPacketizer(rec, 8, WithRunningStatus())

	p.Append(0, 0x90, 0x40, 0x7F)
	p.Append(0, 0x90, 0x41, 0x7F) // elided, fits in 8
	p.Append(0, 0x90, 0x42, 0x7F) // 8+3 > 8, flush, status written again

	assertBytes(t, "flushed packet", rec.packets[0], []byte{0x80, 0x80, 0x90, 0x40, 0x7F, 0x80, 0x41, 0x7F})
	assertBytes(t, "buffer", p.Bytes(), []byte{0x80, 0x80, 0x90, 0x42, 0x7F})
}

func TestFlushReason_String(t *testing.T) {
	tests := map[FlushReason]string{
		FlushOverflow:   "overflow",
		FlushTick:       "tick",
		FlushDrain:      "drain",
		FlushReason(99): "unknown",
	}
	for r, expected := range tests {
		if r.String() != expected {
			t.Errorf("FlushReason(%d).String() = %q, expected %q", r, r.String(), expected)
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

// Timestamp is a 13-bit BLE-MIDI millisecond timestamp (0-8191, wrapping).
type Timestamp uint16

// TimestampFromMillis keeps the low 13 bits of a millisecond counter.
func TimestampFromMillis(ms uint64) Timestamp {
	return Timestamp(ms & timestampMask)
}

// High returns the packet header byte carrying the upper 6 timestamp bits.
func (t Timestamp) High() byte {
	return headerMarker | byte((t>>7)&tsHighMask)
}

// Low returns the per-event byte carrying the lower 7 timestamp bits.
func (t Timestamp) Low() byte {
	return timestampMarker | byte(t&tsLowMask)
}

// JoinTimestamp rebuilds a timestamp from a header byte and an event byte.
func JoinTimestamp(high, low byte) Timestamp {
	return Timestamp(uint16(high&tsHighMask)<<7 | uint16(low&tsLowMask))
}

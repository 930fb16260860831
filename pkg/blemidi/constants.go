// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package blemidi transcodes a classic serial MIDI byte stream into BLE-MIDI
// notification packets.
//
// The Engine reconstructs MIDI messages one byte at a time (running status,
// system common messages, streamed System Exclusive, interleaved real-time
// bytes) and hands each completed event to a Packetizer, which frames it with
// 13-bit BLE-MIDI timestamps into a bounded buffer and flushes that buffer to
// a Transport. The package performs no I/O of its own; the driving loop lives
// in package bridge.
package blemidi

// Status byte high nibbles
const (
	StatusNoteOff         = 0x8
	StatusNoteOn          = 0x9
	StatusPolyAftertouch  = 0xA
	StatusControlChange   = 0xB
	StatusProgramChange   = 0xC
	StatusChannelPressure = 0xD
	StatusPitchBend       = 0xE
	StatusSystem          = 0xF
)

// System message status bytes
const (
	SysExStart       = 0xF0
	SysTimeCode      = 0xF1
	SysSongPosition  = 0xF2
	SysSongSelect    = 0xF3
	SysUndefined1    = 0xF4
	SysUndefined2    = 0xF5
	SysTuneRequest   = 0xF6
	SysExEnd         = 0xF7
	RealTimeClock    = 0xF8
	RealTimeStart    = 0xFA
	RealTimeContinue = 0xFB
	RealTimeStop     = 0xFC
	ActiveSensing    = 0xFE
	SystemReset      = 0xFF
)

// BLE-MIDI framing
const (
	headerMarker    = 0x80
	timestampMarker = 0x80
	tsHighMask      = 0x3F
	tsLowMask       = 0x7F
	timestampMask   = 0x1FFF // 13-bit millisecond counter
)

// Capacity limits
const (
	// MaxEventSize is the largest single write the engine can make into an
	// empty buffer: header + timestamp-low + status + two data bytes.
	MaxEventSize = 5

	// MinCapacity is the smallest buffer the Packetizer accepts.
	MinCapacity = MaxEventSize

	// ATTOverhead is subtracted from the negotiated MTU to get the
	// notification payload capacity.
	ATTOverhead = 3

	// MaxMTU is the largest ATT MTU a peer can negotiate.
	MaxMTU = 517

	// MaxCapacity is the largest buffer the Packetizer accepts.
	MaxCapacity = MaxMTU - ATTOverhead

	// DefaultMTU is the preferred ATT MTU requested on connect.
	DefaultMTU = MaxMTU

	// DefaultCapacity is the buffer capacity used before any MTU exchange.
	DefaultCapacity = DefaultMTU - ATTOverhead
)

// CapacityForMTU returns the notification payload capacity for a negotiated MTU.
func CapacityForMTU(mtu int) int {
	return mtu - ATTOverhead
}

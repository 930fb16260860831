// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

// EventKind identifies what a decoded BLE-MIDI event carries.
type EventKind uint8

const (
	EventChannel      EventKind = iota // channel voice message
	EventSystemCommon                  // MTC, song position, song select, tune request
	EventRealTime                      // single-byte real-time message
	EventSysExStart                    // 0xF0 and the payload bytes that followed it
	EventSysExData                     // SysEx payload continuation
	EventSysExEnd                      // 0xF7
)

func (k EventKind) String() string {
	switch k {
	case EventChannel:
		return "CHANNEL"
	case EventSystemCommon:
		return "SYSTEM_COMMON"
	case EventRealTime:
		return "REAL_TIME"
	case EventSysExStart:
		return "SYSEX_START"
	case EventSysExData:
		return "SYSEX_DATA"
	case EventSysExEnd:
		return "SYSEX_END"
	}
	return "UNKNOWN"
}

// Event is one MIDI event recovered from a BLE-MIDI packet. Data holds the
// raw MIDI bytes with any BLE running status expanded.
type Event struct {
	Timestamp Timestamp
	Kind      EventKind
	Data      []byte
}

// Assembler joins SysEx fragments back into complete F0..F7 messages.
// Other events pass through unchanged. It keeps state across packets.
type Assembler struct {
	sysex  []byte
	inSysx bool
}

// Feed consumes decoded events and returns the complete MIDI messages they
// finish, in order.
func (a *Assembler) Feed(events []Event) [][]byte {
	var out [][]byte
	for _, ev := range events {
		switch ev.Kind {
		case EventSysExStart:
			a.sysex = append(a.sysex[:0], ev.Data...)
			a.inSysx = true
		case EventSysExData:
			if a.inSysx {
				a.sysex = append(a.sysex, ev.Data...)
			}
		case EventSysExEnd:
			if a.inSysx {
				msg := make([]byte, len(a.sysex)+1)
				copy(msg, a.sysex)
				msg[len(a.sysex)] = SysExEnd
				out = append(out, msg)
				a.inSysx = false
			}
		case EventRealTime:
			out = append(out, append([]byte(nil), ev.Data...))
		default:
			// any other status except tune request abandons an open SysEx
			if !isTuneRequest(ev.Data) {
				a.inSysx = false
			}
			out = append(out, append([]byte(nil), ev.Data...))
		}
	}
	return out
}

func isTuneRequest(data []byte) bool {
	return len(data) == 1 && data[0] == SysTuneRequest
}

// Pending reports whether a SysEx message is still open.
func (a *Assembler) Pending() bool {
	return a.inSysx
}

// Assemble is Feed on a fresh Assembler.
func Assemble(events []Event) [][]byte {
	var a Assembler
	return a.Feed(events)
}

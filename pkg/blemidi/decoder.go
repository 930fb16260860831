// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

// Decoder parses BLE-MIDI notification packets back into events. An open
// SysEx stream carries over between packets; running status does not.
type Decoder struct {
	inSysEx bool
}

// NewDecoder creates a packet decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset forgets any open SysEx stream
func (d *Decoder) Reset() {
	d.inSysEx = false
}

// DecodePacket decodes one notification. On error the events decoded before
// the failing offset are returned along with a *DecodeError.
func (d *Decoder) DecodePacket(pkt []byte) ([]Event, error) {
	if len(pkt) == 0 {
		return nil, ErrEmptyPacket
	}
	header := pkt[0]
	if header&0xC0 != headerMarker {
		return nil, &DecodeError{Offset: 0, Byte: header, Err: ErrInvalidHeader}
	}

	high := uint16(header & tsHighMask)
	lastLow := -1
	ts := Timestamp(high << 7)
	running := byte(0)
	var events []Event

	fail := func(i int, err error) ([]Event, error) {
		var b byte
		if i < len(pkt) {
			b = pkt[i]
		}
		return events, &DecodeError{Offset: i, Byte: b, Err: err}
	}

	i := 1
	for i < len(pkt) {
		b := pkt[i]
		if b&0x80 != 0 {
			// timestamp-low byte; a smaller low part means the 7-bit counter wrapped
			low := int(b & tsLowMask)
			if lastLow >= 0 && low < lastLow {
				high = (high + 1) & tsHighMask
			}
			lastLow = low
			ts = Timestamp(high<<7 | uint16(low))
			i++
			if i >= len(pkt) {
				return fail(i, ErrTruncatedPacket)
			}
			b = pkt[i]
		}

		if b&0x80 == 0 {
			switch {
			case d.inSysEx:
				j := dataRun(pkt, i)
				events = append(events, Event{Timestamp: ts, Kind: EventSysExData, Data: clone(pkt[i:j])})
				i = j
			case running != 0:
				n := DataLength(running)
				if i+n > len(pkt) {
					return fail(len(pkt), ErrTruncatedPacket)
				}
				data := make([]byte, 0, n+1)
				data = append(data, running)
				data = append(data, pkt[i:i+n]...)
				events = append(events, Event{Timestamp: ts, Kind: EventChannel, Data: data})
				i += n
			default:
				return fail(i, ErrUnexpectedData)
			}
			continue
		}

		switch c := Classify(b); c {
		case ClassRealTime:
			events = append(events, Event{Timestamp: ts, Kind: EventRealTime, Data: []byte{b}})
			i++
		case ClassSysExStart:
			j := dataRun(pkt, i+1)
			events = append(events, Event{Timestamp: ts, Kind: EventSysExStart, Data: clone(pkt[i:j])})
			d.inSysEx = true
			running = 0
			i = j
		case ClassSysExEnd:
			if !d.inSysEx {
				return fail(i, ErrUnexpectedData)
			}
			events = append(events, Event{Timestamp: ts, Kind: EventSysExEnd, Data: []byte{b}})
			d.inSysEx = false
			i++
		default:
			n := c.DataBytes()
			if i+1+n > len(pkt) {
				return fail(len(pkt), ErrTruncatedPacket)
			}
			for k := i + 1; k <= i+n; k++ {
				if pkt[k]&0x80 != 0 {
					return fail(k, ErrTruncatedPacket)
				}
			}
			kind := EventSystemCommon
			running = 0
			if c == ClassChannelVoice1 || c == ClassChannelVoice2 {
				kind = EventChannel
				running = b
			}
			// Tune request passes through an open SysEx like real-time.
			if c != ClassTuneRequest {
				d.inSysEx = false
			}
			events = append(events, Event{Timestamp: ts, Kind: kind, Data: clone(pkt[i : i+1+n])})
			i += 1 + n
		}
	}
	return events, nil
}

// DecodePacket decodes a single self-contained packet with a fresh Decoder.
func DecodePacket(pkt []byte) ([]Event, error) {
	return NewDecoder().DecodePacket(pkt)
}

// dataRun returns the index of the first byte at or after i with bit 7 set.
func dataRun(pkt []byte, i int) int {
	for i < len(pkt) && pkt[i]&0x80 == 0 {
		i++
	}
	return i
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

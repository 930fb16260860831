// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

import "fmt"

// Transport receives finished BLE-MIDI packets. Send is fire-and-forget from
// the packetizer's point of view: an error is counted and the buffer is reset
// either way. The packet slice belongs to the transport after the call.
type Transport interface {
	Send(packet []byte) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(packet []byte) error

// Send calls f(packet).
func (f TransportFunc) Send(packet []byte) error {
	return f(packet)
}

// FlushReason records why a buffer was handed to the transport.
type FlushReason uint8

const (
	FlushOverflow FlushReason = iota // an append would have exceeded capacity
	FlushTick                        // periodic connection-interval tick
	FlushDrain                       // byte source ended
)

func (r FlushReason) String() string {
	switch r {
	case FlushOverflow:
		return "overflow"
	case FlushTick:
		return "tick"
	case FlushDrain:
		return "drain"
	}
	return "unknown"
}

// Packetizer serializes events into a bounded BLE-MIDI buffer.
//
// Invariants: len(buf) <= capacity, and buf[0] is the header byte whenever
// the buffer is non-empty.
type Packetizer struct {
	buf       []byte
	capacity  int
	transport Transport

	runningStatus bool
	lastStatus    byte // channel status of the previous event in this packet

	counters Counters
}

// NewPacketizer creates a packetizer with an empty buffer of the given capacity.
func NewPacketizer(transport Transport, capacity int, opts ...Option) (*Packetizer, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Packetizer{
		buf:           make([]byte, 0, capacity),
		capacity:      capacity,
		transport:     transport,
		runningStatus: o.runningStatus,
	}, nil
}

// Append writes one complete event: a timestamp-low byte followed by the
// event's raw MIDI bytes (1-3). The buffer is flushed first if the event
// would not fit.
func (p *Packetizer) Append(ts Timestamp, event ...byte) {
	if len(event) == 0 {
		return
	}
	status := event[0]
	body := p.elide(event)

	if len(p.buf)+1+len(body) > p.capacity {
		p.Flush(FlushOverflow)
		body = p.elide(event)
	}
	p.writeHeader(ts)
	p.buf = append(p.buf, ts.Low())
	p.buf = append(p.buf, body...)

	switch Classify(status) {
	case ClassChannelVoice1, ClassChannelVoice2:
		p.lastStatus = status
	case ClassRealTime:
		// real-time bytes do not interrupt running status
	default:
		p.lastStatus = 0
	}
}

// AppendRaw writes a single SysEx continuation byte with no timestamp prefix.
func (p *Packetizer) AppendRaw(ts Timestamp, b byte) {
	if len(p.buf)+1 > p.capacity {
		p.Flush(FlushOverflow)
	}
	p.writeHeader(ts)
	p.buf = append(p.buf, b)
}

// Flush hands a non-empty buffer to the transport and empties it. It reports
// whether anything was sent; flushing an empty buffer is a no-op.
func (p *Packetizer) Flush(reason FlushReason) bool {
	if len(p.buf) == 0 {
		return false
	}
	packet := make([]byte, len(p.buf))
	copy(packet, p.buf)
	p.buf = p.buf[:0]
	p.lastStatus = 0

	p.counters.Packets++
	p.counters.BytesSent += uint64(len(packet))
	switch reason {
	case FlushOverflow:
		p.counters.OverflowFlushes++
	case FlushTick:
		p.counters.TickFlushes++
	case FlushDrain:
		p.counters.DrainFlushes++
	}
	if p.transport != nil {
		if err := p.transport.Send(packet); err != nil {
			p.counters.SendErrors++
		}
	}
	return true
}

// Reconfigure replaces the buffer with an empty one of the new capacity.
// Unflushed bytes are dropped and their count returned. A capacity below
// MinCapacity or above MaxCapacity is rejected and the current buffer is kept.
func (p *Packetizer) Reconfigure(capacity int) (int, error) {
	if err := checkCapacity(capacity); err != nil {
		p.counters.RejectedReconfigures++
		return 0, err
	}
	discarded := len(p.buf)
	p.buf = make([]byte, 0, capacity)
	p.capacity = capacity
	p.lastStatus = 0

	p.counters.Reconfigures++
	p.counters.Discarded += uint64(discarded)
	return discarded, nil
}

func checkCapacity(capacity int) error {
	switch {
	case capacity < MinCapacity:
		return fmt.Errorf("%w: %d (min %d)", ErrCapacityTooSmall, capacity, MinCapacity)
	case capacity > MaxCapacity:
		return fmt.Errorf("%w: %d (max %d)", ErrCapacityTooLarge, capacity, MaxCapacity)
	}
	return nil
}

// Len returns the number of buffered bytes.
func (p *Packetizer) Len() int {
	return len(p.buf)
}

// Capacity returns the current buffer capacity.
func (p *Packetizer) Capacity() int {
	return p.capacity
}

// Bytes returns the buffered bytes. The slice is only valid until the next
// call that mutates the packetizer.
func (p *Packetizer) Bytes() []byte {
	return p.buf
}

// Counters returns the packetizer's activity counters.
func (p *Packetizer) Counters() Counters {
	return p.counters
}

func (p *Packetizer) writeHeader(ts Timestamp) {
	if len(p.buf) == 0 {
		p.buf = append(p.buf, ts.High())
	}
}

// elide drops the status byte of a channel event that repeats the previous
// channel status in the current packet, when running status is enabled.
func (p *Packetizer) elide(event []byte) []byte {
	if !p.runningStatus || len(p.buf) == 0 || len(event) < 2 {
		return event
	}
	if event[0] == p.lastStatus {
		return event[1:]
	}
	return event
}

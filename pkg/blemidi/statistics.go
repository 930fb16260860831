// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

import (
	"fmt"
	"time"
)

// Counters accumulates engine and packetizer activity
type Counters struct {
	BytesIn uint64 `json:"bytes_in"` // raw MIDI bytes consumed
	Events  uint64 `json:"events"`   // complete events written (SysEx payload bytes excluded)
	Ignored uint64 `json:"ignored"`  // bytes discarded by the parser

	Packets    uint64 `json:"packets"` // notifications handed to the transport
	BytesSent  uint64 `json:"bytes_sent"`
	SendErrors uint64 `json:"send_errors"`

	OverflowFlushes uint64 `json:"overflow_flushes"`
	TickFlushes     uint64 `json:"tick_flushes"`
	DrainFlushes    uint64 `json:"drain_flushes"`

	Reconfigures         uint64 `json:"reconfigures"`
	RejectedReconfigures uint64 `json:"rejected_reconfigures"`
	Discarded            uint64 `json:"discarded"` // buffered bytes dropped by reconfiguration
}

// Statistics tracks counters plus derived rates for display
type Statistics struct {
	StartTime      time.Time `json:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time"`

	Counters

	Capacity     int           `json:"capacity"`
	TickInterval time.Duration `json:"tick_interval_ns"`
	Connected    bool          `json:"connected"`

	// Rates (calculated)
	PacketRate float64 `json:"packet_rate"` // packets/sec
	ByteRate   float64 `json:"byte_rate"`   // MIDI bytes in/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update replaces the counters with a fresh snapshot
func (s *Statistics) Update(c Counters, capacity int) {
	s.Counters = c
	s.Capacity = capacity
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates packet and byte rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.Packets) / elapsed
		s.ByteRate = float64(s.BytesIn) / elapsed
	}
}

// AveragePacketSize returns the mean notification size in bytes
func (s *Statistics) AveragePacketSize() float64 {
	if s.Packets == 0 {
		return 0
	}
	return float64(s.BytesSent) / float64(s.Packets)
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()
	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("MIDI Bytes In:   %8d\n", s.BytesIn)
	result += fmt.Sprintf("Events:          %8d\n", s.Events)
	if s.Ignored > 0 {
		result += fmt.Sprintf("Ignored Bytes:   %8d\n", s.Ignored)
	}
	result += fmt.Sprintf("Packets Sent:    %8d (avg %.1f bytes)\n", s.Packets, s.AveragePacketSize())
	result += fmt.Sprintf("  Tick Flushes:     %5d\n", s.TickFlushes)
	result += fmt.Sprintf("  Overflow Flushes: %5d\n", s.OverflowFlushes)
	if s.DrainFlushes > 0 {
		result += fmt.Sprintf("  Drain Flushes:    %5d\n", s.DrainFlushes)
	}
	if s.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", s.SendErrors)
	}
	if s.Reconfigures > 0 || s.RejectedReconfigures > 0 {
		result += fmt.Sprintf("Reconfigures:    %8d (rejected %d, discarded %d bytes)\n",
			s.Reconfigures, s.RejectedReconfigures, s.Discarded)
	}
	result += fmt.Sprintf("Capacity:        %8d bytes\n", s.Capacity)
	if s.TickInterval > 0 {
		result += fmt.Sprintf("Tick Interval:   %8s\n", s.TickInterval)
	}
	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Byte Rate:       %8.1f bytes/sec\n", s.ByteRate)
	result += "================================\n"

	return result
}

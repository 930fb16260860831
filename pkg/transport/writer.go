// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
)

// WriterSink prints each notification with its decoded events.
type WriterSink struct {
	mu      sync.Mutex
	w       io.Writer
	compact bool
	decoder *blemidi.Decoder
	asm     blemidi.Assembler
	now     func() time.Time
}

// NewWriterSink prints a hex dump plus one line per event for each packet.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w, decoder: blemidi.NewDecoder(), now: time.Now}
}

// NewCompactWriterSink prints one line per packet listing the complete MIDI
// messages it finished.
func NewCompactWriterSink(w io.Writer) *WriterSink {
	s := NewWriterSink(w)
	s.compact = true
	return s
}

func (s *WriterSink) Send(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	events, err := s.decoder.DecodePacket(packet)
	if !s.compact {
		_, werr := io.WriteString(s.w, blemidi.FormatPacket(at, packet, events, err))
		return werr
	}

	_, werr := io.WriteString(s.w, FormatCompact(at, packet, s.asm.Feed(events), err))
	return werr
}

// FormatCompact renders a packet and the messages it completed on one line.
func FormatCompact(at time.Time, packet []byte, msgs [][]byte, decodeErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] len=%-3d", at.Format("15:04:05.000"), len(packet))
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, blemidi.FormatMessage(m))
	}
	if len(parts) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(parts, " | "))
	}
	if decodeErr != nil {
		fmt.Fprintf(&b, " [ERROR] %v", decodeErr)
	}
	b.WriteString("\n")
	return b.String()
}

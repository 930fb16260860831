// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
)

type failingSink struct{}

func (failingSink) Send([]byte) error {
	return errors.New("sink failed")
}

func TestCapture_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.cbor")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var forwarded [][]byte
	rec := NewCaptureRecorder(f, blemidi.TransportFunc(func(p []byte) error {
		forwarded = append(forwarded, p)
		return nil
	}))
	base := time.Unix(1700000000, 0)
	tick := 0
	rec.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	packets := [][]byte{
		{0x80, 0x80, 0x90, 0x40, 0x7F},
		{0x81, 0x85, 0xF8},
		{0x80, 0x80, 0xF0, 0x01, 0x02, 0x03},
	}
	for _, p := range packets {
		if err := rec.Send(p); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	f.Close()

	if rec.Records() != 3 || len(forwarded) != 3 {
		t.Fatalf("recorded %d, forwarded %d, expected 3", rec.Records(), len(forwarded))
	}

	f, err = os.Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	r := NewCaptureReader(f)
	for i, want := range packets {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !bytes.Equal(got.Packet, want) {
			t.Errorf("record %d: % X, expected % X", i, got.Packet, want)
		}
		if !got.Time().Equal(base.Add(time.Duration(i+1) * time.Millisecond)) {
			t.Errorf("record %d: time %s", i, got.Time())
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestCaptureRecorder_ForwardError(t *testing.T) {
	var buf bytes.Buffer
	rec := NewCaptureRecorder(&buf, failingSink{})

	if err := rec.Send([]byte{0x80, 0x80, 0xF8}); err == nil {
		t.Error("expected forwarded error")
	}
	if rec.Records() != 1 {
		t.Errorf("packet should still be recorded, got %d", rec.Records())
	}
}

func TestCaptureReader_Corrupt(t *testing.T) {
	r := NewCaptureReader(bytes.NewReader([]byte{0xA2, 0x00}))
	if _, err := r.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestWriterSink(t *testing.T) {
	var out bytes.Buffer
	s := NewWriterSink(&out)
	s.now = func() time.Time { return time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC) }

	if err := s.Send([]byte{0x80, 0x80, 0x90, 0x40, 0x7F}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	for _, want := range []string{"09:00:00.000", "NOTIFY len=5", "NoteOn"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCompactWriterSink(t *testing.T) {
	var out bytes.Buffer
	s := NewCompactWriterSink(&out)

	s.Send([]byte{0x80, 0x80, 0xF0, 0x01})
	s.Send([]byte{0x80, 0x02, 0x80, 0xF7, 0x80, 0xC0, 0x05})
	s.Send([]byte{0x00})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), out.String())
	}
	if strings.Contains(lines[0], "SysEx") {
		t.Errorf("incomplete sysex printed early: %q", lines[0])
	}
	if !strings.Contains(lines[1], "SysEx len=4") || !strings.Contains(lines[1], "ProgramChange") {
		t.Errorf("unexpected second line %q", lines[1])
	}
	if !strings.Contains(lines[2], "[ERROR]") {
		t.Errorf("expected error on third line %q", lines[2])
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/blemidi/pkg/blemidi"
	"github.com/fxamacker/cbor/v2"
)

// CaptureRecord is one notification in a capture file.
type CaptureRecord struct {
	UnixNano int64  `cbor:"0,keyasint"`
	Packet   []byte `cbor:"1,keyasint"`
}

// Time returns the capture time.
func (r CaptureRecord) Time() time.Time {
	return time.Unix(0, r.UnixNano)
}

// CaptureRecorder appends every packet to a CBOR record stream and passes it
// on to the next transport, if any.
type CaptureRecorder struct {
	mu      sync.Mutex
	enc     *cbor.Encoder
	next    blemidi.Transport
	records uint64
	now     func() time.Time
}

// NewCaptureRecorder records to w, forwarding to next (may be nil).
func NewCaptureRecorder(w io.Writer, next blemidi.Transport) *CaptureRecorder {
	return &CaptureRecorder{enc: cbor.NewEncoder(w), next: next, now: time.Now}
}

func (c *CaptureRecorder) Send(packet []byte) error {
	c.mu.Lock()
	err := c.enc.Encode(CaptureRecord{UnixNano: c.now().UnixNano(), Packet: packet})
	if err == nil {
		c.records++
	}
	c.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("capture: %w", err)
	}

	if c.next != nil {
		err = errors.Join(err, c.next.Send(packet))
	}
	return err
}

// Records returns how many packets were recorded.
func (c *CaptureRecorder) Records() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records
}

// CaptureReader reads records written by a CaptureRecorder.
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader reads records from r.
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (c *CaptureReader) Next() (CaptureRecord, error) {
	var rec CaptureRecord
	if err := c.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return rec, io.EOF
		}
		return rec, fmt.Errorf("capture: %w", err)
	}
	return rec, nil
}

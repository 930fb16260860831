// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package blemidi

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityTooSmall is returned when a buffer capacity cannot hold the
	// largest single event write.
	ErrCapacityTooSmall = errors.New("capacity smaller than largest event")

	// ErrCapacityTooLarge is returned for a capacity no ATT MTU can carry.
	ErrCapacityTooLarge = errors.New("capacity larger than maximum notification")

	// ErrEmptyPacket is returned when decoding a zero-length notification.
	ErrEmptyPacket = errors.New("empty packet")

	// ErrInvalidHeader is returned when byte 0 is not a BLE-MIDI header.
	ErrInvalidHeader = errors.New("invalid header byte")

	// ErrTruncatedPacket is returned when a packet ends inside an event.
	ErrTruncatedPacket = errors.New("packet ends inside an event")

	// ErrUnexpectedData is returned for a data byte with no status to attach to.
	ErrUnexpectedData = errors.New("data byte without status")
)

// DecodeError reports where in a packet decoding failed.
type DecodeError struct {
	Offset int
	Byte   byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("offset %d (0x%02X): %v", e.Offset, e.Byte, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport carries BLE-MIDI notifications out of the bridge: to a
// WebSocket peer that owns the BLE radio, to a terminal, or to a capture file.
package transport

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Control message types on the WebSocket link
const (
	// Bridge → peer
	MsgAnnounce = 0x01 // advertising parameters, sent once on connect
	MsgNotify   = 0x10 // one BLE-MIDI notification

	// Peer → bridge
	MsgLinkUp             = 0x20 // central connected, notifications enabled
	MsgLinkDown           = 0x21 // central disconnected
	MsgMTUUpdate          = 0x22 // negotiated ATT MTU changed
	MsgConnIntervalUpdate = 0x23 // connection interval changed (1.25 ms units)
)

// Payload map keys
const (
	KeyPacket = 0 // MsgNotify: bytes

	KeyName        = 0 // MsgAnnounce: device name
	KeyIntervalMin = 1 // MsgAnnounce: preferred min interval (1.25 ms units)
	KeyIntervalMax = 2 // MsgAnnounce: preferred max interval (1.25 ms units)
	KeyMTU         = 3 // MsgAnnounce: preferred MTU

	KeyUpdateValue = 0 // MsgMTUUpdate, MsgConnIntervalUpdate
)

// Announce holds the advertising parameters the peer should apply.
type Announce struct {
	Name        string
	IntervalMin uint16
	IntervalMax uint16
	MTU         int
}

// Payload returns the announce payload map.
func (a Announce) Payload() map[int]interface{} {
	return map[int]interface{}{
		KeyName:        a.Name,
		KeyIntervalMin: uint64(a.IntervalMin),
		KeyIntervalMax: uint64(a.IntervalMax),
		KeyMTU:         uint64(a.MTU),
	}
}

// EncodeControlMessage encodes [msgType, payload]. A nil payload encodes as
// CBOR null.
func EncodeControlMessage(msgType uint8, payload map[int]interface{}) ([]byte, error) {
	var msg []interface{}
	if payload == nil {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payload}
	}
	data, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return data, nil
}

// EncodeNotify wraps a BLE-MIDI packet in a MsgNotify envelope.
func EncodeNotify(packet []byte) ([]byte, error) {
	return EncodeControlMessage(MsgNotify, map[int]interface{}{KeyPacket: packet})
}

// ParseControlMessage parses a control message: [msg_type, payload_map]
// Returns the message type and decoded payload map (nil for empty payloads)
func ParseControlMessage(data []byte) (msgType uint8, payload map[int]interface{}, err error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty CBOR payload")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}

	if len(msg) != 2 {
		return 0, nil, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	v, ok := msg[0].(uint64)
	if !ok {
		return 0, nil, fmt.Errorf("expected uint for message type, got %T", msg[0])
	}
	if v > 255 {
		return 0, nil, fmt.Errorf("message type out of range: %d", v)
	}
	msgType = uint8(v)

	if msg[1] == nil {
		return msgType, nil, nil
	}

	m, ok := msg[1].(map[interface{}]interface{})
	if !ok {
		return 0, nil, fmt.Errorf("expected map or nil for payload, got %T", msg[1])
	}
	payload = make(map[int]interface{}, len(m))
	for key, val := range m {
		switch k := key.(type) {
		case uint64:
			payload[int(k)] = val
		case int64:
			payload[int(k)] = val
		default:
			return 0, nil, fmt.Errorf("expected integer map key, got %T", key)
		}
	}
	return msgType, payload, nil
}

// GetMapUint extracts a uint64 from a CBOR map by key
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

// GetMapBytes extracts a []byte from a CBOR map by key
func GetMapBytes(m map[int]interface{}, key int) ([]byte, bool) {
	val, ok := m[key].([]byte)
	return val, ok
}

// GetMapString extracts a string from a CBOR map by key
func GetMapString(m map[int]interface{}, key int) (string, bool) {
	val, ok := m[key].(string)
	return val, ok
}

// FormatMessageType returns a human-readable control message name
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgAnnounce:
		return "ANNOUNCE"
	case MsgNotify:
		return "NOTIFY"
	case MsgLinkUp:
		return "LINK_UP"
	case MsgLinkDown:
		return "LINK_DOWN"
	case MsgMTUUpdate:
		return "MTU_UPDATE"
	case MsgConnIntervalUpdate:
		return "CONN_INTERVAL_UPDATE"
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", msgType)
}

// FormatControlMessage renders a parsed control message on one line
func FormatControlMessage(msgType uint8, payload map[int]interface{}) string {
	name := FormatMessageType(msgType)
	switch msgType {
	case MsgNotify:
		if pkt, ok := GetMapBytes(payload, KeyPacket); ok {
			return fmt.Sprintf("%s len=%d % X", name, len(pkt), pkt)
		}
	case MsgAnnounce:
		n, _ := GetMapString(payload, KeyName)
		lo, _ := GetMapUint(payload, KeyIntervalMin)
		hi, _ := GetMapUint(payload, KeyIntervalMax)
		mtu, _ := GetMapUint(payload, KeyMTU)
		return fmt.Sprintf("%s name=%q interval=%d-%d mtu=%d", name, n, lo, hi, mtu)
	case MsgMTUUpdate, MsgConnIntervalUpdate:
		if v, ok := GetMapUint(payload, KeyUpdateValue); ok {
			return fmt.Sprintf("%s value=%d", name, v)
		}
	}
	return name
}

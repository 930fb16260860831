// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when using a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

const writeTimeout = 5 * time.Second

// DialOptions describes a WebSocket endpoint.
type DialOptions struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// Dial opens a WebSocket connection with HTTP Basic auth
func Dial(ctx context.Context, opts DialOptions) (*websocket.Conn, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return conn, nil
}

// SinkOptions configures a WebSocketSink.
type SinkOptions struct {
	DialOptions

	Announce Announce

	// AssumeLinkUp starts with notifications enabled instead of waiting for
	// MsgLinkUp from the peer.
	AssumeLinkUp bool

	Logger *slog.Logger

	// Callbacks run on the sink's read goroutine.
	OnLink         func(up bool)
	OnMTU          func(mtu int)
	OnConnInterval func(units uint16)
}

// WebSocketSink forwards notifications to a peer that owns the BLE link and
// relays the peer's link, MTU and connection interval changes back.
type WebSocketSink struct {
	conn *websocket.Conn
	opts SinkOptions
	log  *slog.Logger

	writeMu sync.Mutex
	linkUp  atomic.Bool
	sent    atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// NewWebSocketSink dials the peer, announces the advertising parameters and
// starts reading control messages.
func NewWebSocketSink(ctx context.Context, opts SinkOptions) (*WebSocketSink, error) {
	conn, err := Dial(ctx, opts.DialOptions)
	if err != nil {
		return nil, err
	}
	return newWebSocketSink(conn, opts)
}

func newWebSocketSink(conn *websocket.Conn, opts SinkOptions) (*WebSocketSink, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &WebSocketSink{
		conn: conn,
		opts: opts,
		log:  opts.Logger,
		done: make(chan struct{}),
	}
	s.linkUp.Store(opts.AssumeLinkUp)

	msg, err := EncodeControlMessage(MsgAnnounce, opts.Announce.Payload())
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := s.write(msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("announce: %w", err)
	}

	go s.readLoop()
	return s, nil
}

// Send forwards one notification. While the link is down the packet is
// dropped and counted.
func (s *WebSocketSink) Send(packet []byte) error {
	select {
	case <-s.done:
		return ErrConnectionClosed
	default:
	}
	if !s.linkUp.Load() {
		s.dropped.Add(1)
		return nil
	}

	msg, err := EncodeNotify(packet)
	if err != nil {
		return err
	}
	if err := s.write(msg); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

// Connected reports whether the peer has an active BLE link.
func (s *WebSocketSink) Connected() bool {
	return s.linkUp.Load()
}

// Sent returns the number of notifications forwarded.
func (s *WebSocketSink) Sent() uint64 {
	return s.sent.Load()
}

// Dropped returns the number of notifications dropped while the link was down.
func (s *WebSocketSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Done is closed when the connection ends.
func (s *WebSocketSink) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the connection, if any.
func (s *WebSocketSink) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close sends a close frame and closes the connection.
func (s *WebSocketSink) Close() error {
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	err := s.conn.Close()
	s.finish(nil)
	return err
}

func (s *WebSocketSink) write(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (s *WebSocketSink) finish(err error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		s.linkUp.Store(false)
		close(s.done)
	})
}

func (s *WebSocketSink) readLoop() {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			s.finish(err)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		msgType, payload, err := ParseControlMessage(data)
		if err != nil {
			s.log.Warn("invalid control message", "error", err)
			continue
		}
		s.handle(msgType, payload)
	}
}

func (s *WebSocketSink) handle(msgType uint8, payload map[int]interface{}) {
	s.log.Debug("control message", "msg", FormatControlMessage(msgType, payload))

	switch msgType {
	case MsgLinkUp, MsgLinkDown:
		up := msgType == MsgLinkUp
		s.linkUp.Store(up)
		s.log.Info("link state changed", "up", up)
		if s.opts.OnLink != nil {
			s.opts.OnLink(up)
		}

	case MsgMTUUpdate:
		mtu, ok := GetMapUint(payload, KeyUpdateValue)
		if !ok {
			s.log.Warn("MTU update without value")
			return
		}
		if s.opts.OnMTU != nil {
			s.opts.OnMTU(int(mtu))
		}

	case MsgConnIntervalUpdate:
		units, ok := GetMapUint(payload, KeyUpdateValue)
		if !ok || units > 0xFFFF {
			s.log.Warn("invalid connection interval update", "units", units)
			return
		}
		if s.opts.OnConnInterval != nil {
			s.opts.OnConnInterval(uint16(units))
		}

	default:
		s.log.Debug("ignoring control message", "type", FormatMessageType(msgType))
	}
}

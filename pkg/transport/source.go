// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"

	"github.com/gorilla/websocket"
)

// WebSocketSource reads raw MIDI bytes delivered as binary WebSocket
// messages, for serial lines exposed over the network.
type WebSocketSource struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

// OpenWebSocketSource dials a WebSocket byte source.
func OpenWebSocketSource(ctx context.Context, opts DialOptions) (*WebSocketSource, error) {
	conn, err := Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &WebSocketSource{conn: conn}, nil
}

func (w *WebSocketSource) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}

		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketSource) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketSource) Close() error {
	return w.conn.Close()
}

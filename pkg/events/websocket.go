package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// WebSocketSink sends events as JSON text messages over a WebSocket.
type WebSocketSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

// NewWebSocketSink wraps conn. Each write is bounded by writeTimeout.
func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	return &WebSocketSink{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Send implements Sink.
func (s *WebSocketSink) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.sendRaw(ctx, data)
}

// sendRaw sends raw bytes with a write timeout.
func (s *WebSocketSink) sendRaw(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}

// Close implements Sink.
func (s *WebSocketSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}

// HandleSubscriber makes conn the session's subscriber and runs its read loop
// until the connection closes or is superseded. It answers "ping" with "pong"
// and {"action":"ping"} with {"type":"pong"}; every other message is ignored.
// Blocks until the connection is gone.
func (b *Broadcaster) HandleSubscriber(ctx context.Context, sessionID string, conn *websocket.Conn, writeTimeout time.Duration) {
	sink := NewWebSocketSink(conn, writeTimeout)
	detach := b.Attach(sessionID, sink)
	defer detach()

	b.logger.Info("Subscriber attached", "session_id", sessionID)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			b.logger.Debug("Subscriber read loop ended", "session_id", sessionID, "error", err)
			return
		}

		if reply := pingReply(data); reply != nil {
			if err := sink.sendRaw(ctx, reply); err != nil {
				b.logger.Warn("Failed to send pong", "session_id", sessionID, "error", err)
				return
			}
		}
	}
}

func pingReply(data []byte) []byte {
	text := strings.TrimSpace(string(data))
	if text == "ping" {
		return []byte("pong")
	}
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err == nil && msg.Action == "ping" {
		return []byte(`{"type":"pong"}`)
	}
	return nil
}

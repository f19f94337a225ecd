package stream

import (
	"time"

	"github.com/gorilla/websocket"
)

// WSSink sends every write as one binary WebSocket message.
type WSSink struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func NewWSSink(conn *websocket.Conn, writeTimeout time.Duration) *WSSink {
	return &WSSink{conn: conn, timeout: writeTimeout}
}

func (s *WSSink) Write(p []byte) (int, error) {
	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return 0, err
		}
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal close frame. The connection itself is closed by
// the caller.
func (s *WSSink) Close(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

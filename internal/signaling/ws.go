package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Dial connects to a signaling endpoint, e.g. ws://127.0.0.1:25565/rtc.
func Dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}

// Reject tells the remote side the session will not be negotiated and
// closes the WebSocket.
func Reject(conn *websocket.Conn, reason string) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(message{Type: msgTypeReject, Reason: reason})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
	conn.Close()
}

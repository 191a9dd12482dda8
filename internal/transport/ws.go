package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	wsPath  = "/ws"
	rtcPath = "/rtc"

	writeWait = 5 * time.Second

	// wsKeep is how much of a message is kept. One byte past MaxSize is
	// enough for the worker to reject it; the rest is discarded unread.
	wsKeep = protocol.MaxSize + 1
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  protocol.MaxSize,
	WriteBufferSize: protocol.MaxSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsLink carries both delivery modes over one ordered socket.
type wsLink struct {
	conn *websocket.Conn
	peer *peer
	wmu  sync.Mutex
}

func newWSLink(conn *websocket.Conn, p *peer) *wsLink {
	l := &wsLink{conn: conn, peer: p}

	conn.SetPongHandler(func(appData string) error {
		if len(appData) == 8 {
			p.pong(int64(binary.BigEndian.Uint64([]byte(appData))))
		} else {
			p.touch()
		}
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		p.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	return l
}

func (l *wsLink) start() {
	if !l.peer.host.spawn(l.readLoop) {
		l.conn.Close()
	}
}

func (l *wsLink) readLoop() {
	for {
		mt, data, size, err := l.read()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			l.peer.lost(err)
			return
		}
		if mt != websocket.BinaryMessage {
			l.peer.touch()
			continue
		}
		l.peer.deliverSized(data, size)
	}
}

// read returns at most wsKeep bytes of the next message and its full size.
// An oversized message does not end the connection.
func (l *wsLink) read() (int, []byte, int, error) {
	mt, r, err := l.conn.NextReader()
	if err != nil {
		return 0, nil, 0, err
	}
	data, err := io.ReadAll(io.LimitReader(r, wsKeep))
	if err != nil {
		return 0, nil, 0, err
	}
	rest, err := io.Copy(io.Discard, r)
	if err != nil {
		return 0, nil, 0, err
	}
	return mt, data, len(data) + int(rest), nil
}

func (l *wsLink) send(data []byte, _ protocol.Delivery) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (l *wsLink) ping(stamp int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(stamp))
	return l.conn.WriteControl(websocket.PingMessage, buf[:], time.Now().Add(writeWait))
}

// Writes are synchronous, so there is nothing left to flush.
func (l *wsLink) flush(context.Context) error { return nil }

func (l *wsLink) close(graceful bool) error {
	if graceful {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "disconnect")
		return l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(disconnectGrace))
	}
	return l.conn.Close()
}

func (l *wsLink) remoteAddr() string { return l.conn.RemoteAddr().String() }

// dialWS opens a client socket, e.g. ws://127.0.0.1:25565/ws.
func dialWS(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		ReadBufferSize:  protocol.MaxSize,
		WriteBufferSize: protocol.MaxSize,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return conn, nil
}

// Package transport is an event-serviced, message-oriented connection layer.
//
// A Host owns every connection of one endpoint role. Link goroutines (socket
// readers, liveness pingers) never call back into the application; they
// queue Events that the owning network worker collects with CheckEvents and
// Service, the same way an ENet host is serviced.
//
// Two link kinds are provided:
//
//	ws:  one WebSocket per peer on /ws, binary messages, ping/pong liveness
//	rtc: WebSocket signaling on /rtc, then WebRTC DataChannels
//	      (reliable-ordered, unordered without retransmits, control)
//
// A Server listens for both kinds on the same port.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/util"
)

// EventType classifies a serviced Event.
type EventType uint8

const (
	EventNone EventType = iota
	EventConnect
	EventReceive
	EventDisconnect
	EventTimeout
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventReceive:
		return "receive"
	case EventDisconnect:
		return "disconnect"
	case EventTimeout:
		return "timeout"
	}
	return "none"
}

// Event is one resolved network occurrence.
type Event struct {
	Type EventType
	Peer Peer
	Data []byte // EventReceive only

	// Size is the length the remote sent. It exceeds len(Data) when a link
	// truncated an oversized message.
	Size int
	Err  error  // Cause of an unexpected disconnect, if known
}

var (
	ErrHostClosed   = errors.New("host closed")
	ErrHostFull     = errors.New("no free peer slots")
	ErrPeerClosed   = errors.New("peer closed")
	ErrNotConnected = errors.New("peer not connected")
	ErrTimeout      = errors.New("peer timed out")
	ErrUnknownKind  = errors.New("unknown transport kind")
)

// Peer is one remote endpoint. Its ID is a slot index, stable for the life
// of the connection and reused after it closes.
type Peer interface {
	ID() uint16
	RemoteAddr() string
	Send(data []byte, delivery protocol.Delivery) error

	// Configure sets ping interval and timeout thresholds.
	Configure(t Timing)

	// Disconnect starts a graceful close. An EventDisconnect follows once the
	// remote acknowledges or the grace period runs out.
	Disconnect()

	// RoundTrip returns the smoothed round-trip time.
	RoundTrip() time.Duration
}

// Host is serviced by exactly one goroutine.
type Host interface {
	// CheckEvents returns an already-queued event without waiting.
	CheckEvents() (Event, bool)

	// Service waits up to timeout for the next event.
	Service(timeout time.Duration) (Event, bool)

	// Flush waits for buffered outbound data to leave the host.
	Flush() error

	Close() error
}

// ClientHost connects to a single server.
type ClientHost interface {
	Host

	// Connect starts an asynchronous connection attempt. The returned peer
	// produces EventConnect on success or EventDisconnect on failure.
	Connect(address string, port uint16) (Peer, error)
}

// ServerHost accepts many peers.
type ServerHost interface {
	Host
	Addr() net.Addr
}

// Kind selects the link used by a client.
type Kind string

const (
	KindWebSocket Kind = "ws"
	KindWebRTC    Kind = "rtc"
)

// ParseKind validates a kind given on the command line or in options.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindWebSocket, KindWebRTC:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnknownKind)
}

// Options configures a Host.
type Options struct {
	Log         *util.Logger
	ICEServers  []string      // rtc only; empty means host candidates only
	DialTimeout time.Duration // Connect attempt bound; defaults to 5s
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = util.NewLogger(util.LogOptions{})
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	return o
}

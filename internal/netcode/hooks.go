package netcode

import (
	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/transport"
)

// Hooks are optional callbacks. OnConnect, OnDisconnect and OnTimeout run on
// the worker goroutine; OnCommand runs inside Update on the simulation
// goroutine and receives every command the generic switch does not handle.
type Hooks struct {
	OnConnect    func(peer transport.Peer)
	OnDisconnect func(peer transport.Peer)
	OnTimeout    func(peer transport.Peer)
	OnCommand    func(cmd SimCommand)
}

func (h Hooks) connect(p transport.Peer) {
	if h.OnConnect != nil {
		h.OnConnect(p)
	}
}

func (h Hooks) disconnect(p transport.Peer) {
	if h.OnDisconnect != nil {
		h.OnDisconnect(p)
	}
}

func (h Hooks) timeout(p transport.Peer) {
	if h.OnTimeout != nil {
		h.OnTimeout(p)
	}
}

func (h Hooks) command(cmd SimCommand) {
	if h.OnCommand != nil {
		h.OnCommand(cmd)
	}
}

// LogSink shows worker-originated log lines to the user.
type LogSink interface {
	Log(origin, message string)
}

// SceneSink performs the scene transitions that terminal connection states
// request.
type SceneSink interface {
	ToMainMenu()
	ExitApplication()
}

// Dispatcher routes a decoded client-side packet to its handler.
type Dispatcher interface {
	Dispatch(op protocol.Opcode, rd *protocol.Reader) error
}

// PeerDispatcher routes a decoded server-side packet from peer.
type PeerDispatcher interface {
	Dispatch(peer uint16, op protocol.Opcode, rd *protocol.Reader) error
}

type nopScene struct{}

func (nopScene) ToMainMenu()      {}
func (nopScene) ExitApplication() {}

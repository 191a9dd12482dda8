package netcode

import (
	"github.com/1ureka/netbridge/internal/protocol"
)

// WorkerCommandKind tags a control request sent to the network worker.
type WorkerCommandKind uint8

const (
	RequestConnect WorkerCommandKind = iota + 1
	RequestDisconnect
	RequestExit
	RequestKick // server only
)

// WorkerCommand is consumed once by the worker at the top of a loop
// iteration.
type WorkerCommand struct {
	Kind    WorkerCommandKind
	Address string // RequestConnect
	Port    uint16 // RequestConnect
	Peer    uint16 // RequestKick
}

// SimCommandKind tags a command sent from the worker to the simulation.
type SimCommandKind uint16

const (
	InboundPacket SimCommandKind = iota + 1
	LogMessage
	ConnectionEstablished
	ConnectionLost
	LoadMainMenu
	ExitApp

	// SimUser is the first kind available to applications. Commands of
	// these kinds are passed to Hooks.OnCommand untouched.
	SimUser SimCommandKind = 1000
)

func (k SimCommandKind) String() string {
	switch k {
	case InboundPacket:
		return "inbound-packet"
	case LogMessage:
		return "log-message"
	case ConnectionEstablished:
		return "connection-established"
	case ConnectionLost:
		return "connection-lost"
	case LoadMainMenu:
		return "load-main-menu"
	case ExitApp:
		return "exit-app"
	}
	if k >= SimUser {
		return "user"
	}
	return "unknown"
}

// SimCommand is consumed at most once, in enqueue order, by Update.
type SimCommand struct {
	Kind SimCommandKind
	Peer uint16 // InboundPacket, ConnectionEstablished, ConnectionLost

	Opcode protocol.Opcode  // InboundPacket
	Reader *protocol.Reader // InboundPacket, positioned at the first payload byte

	Origin string // LogMessage
	Text   string // LogMessage

	Reason Reason // ConnectionLost

	Value any // SimUser kinds
}

// Reason explains why a connection or worker ended.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonUserDisconnect
	ReasonUserExit
	ReasonTimeout
	ReasonRemoteDisconnect
	ReasonConnectFailed
	ReasonKicked
	ReasonServerStopped
)

func (r Reason) String() string {
	switch r {
	case ReasonUserDisconnect:
		return "user-disconnect"
	case ReasonUserExit:
		return "user-exit"
	case ReasonTimeout:
		return "timeout"
	case ReasonRemoteDisconnect:
		return "remote-disconnect"
	case ReasonConnectFailed:
		return "connect-failed"
	case ReasonKicked:
		return "kicked"
	case ReasonServerStopped:
		return "server-stopped"
	}
	return "none"
}

// terminal returns the scene command that follows a worker stopping for r.
// A user disconnect needs none.
func (r Reason) terminal() (SimCommandKind, bool) {
	switch r {
	case ReasonUserExit:
		return ExitApp, true
	case ReasonTimeout, ReasonRemoteDisconnect, ReasonConnectFailed, ReasonServerStopped:
		return LoadMainMenu, true
	}
	return 0, false
}

package game

import (
	"time"

	"github.com/1ureka/netbridge/internal/netcode"
	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/timer"
)

// SimTick asks the server simulation to broadcast a rotation snapshot.
const SimTick = netcode.SimUser

// ServerSession runs the server worker against a World. A tick timer queues
// SimTick; Update broadcasts the snapshot when it drains one.
type ServerSession struct {
	World *World
	Net   *netcode.Server

	tick *timer.Timer
}

// NewServerSession wires the server handlers, hooks and tick timer. The
// tick does not run until Start.
func NewServerSession(listen netcode.ServerFactory, opts netcode.Options, tickInterval time.Duration) (*ServerSession, error) {
	reg, err := NewServerRegistry()
	if err != nil {
		return nil, err
	}

	s := &ServerSession{World: NewWorld()}

	next := opts.Hooks.OnCommand
	opts.Hooks.OnCommand = func(cmd netcode.SimCommand) {
		s.onCommand(cmd)
		if next != nil {
			next(cmd)
		}
	}

	s.Net = netcode.NewServer(reg.BindPeer(func(peer uint16) *ServerContext {
		return &ServerContext{World: s.World, Peer: peer, Send: s.Net.Send}
	}), listen, opts)

	s.tick, err = timer.New(tickInterval, func() {
		s.Net.Bridge().SimCmds.Enqueue(netcode.SimCommand{Kind: SimTick})
	}, false, true)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ServerSession) Start(port uint16, maxPeers int) error {
	if err := s.Net.Start(port, maxPeers); err != nil {
		return err
	}
	s.tick.Start()
	return nil
}

// Stop disconnects every peer and halts the tick.
func (s *ServerSession) Stop() {
	s.tick.Stop()
	s.Net.Stop()
}

// Exit halts the tick and stops the worker for good.
func (s *ServerSession) Exit() {
	s.tick.Stop()
	s.Net.Exit()
}

// Update drains the server's queues. Call once per simulation frame.
func (s *ServerSession) Update() int { return s.Net.Update() }

// Close stops the tick timer for good. The worker is stopped with Stop or
// Exit.
func (s *ServerSession) Close() error { return s.tick.Close() }

func (s *ServerSession) onCommand(cmd netcode.SimCommand) {
	switch cmd.Kind {
	case SimTick:
		if !s.Net.Running() {
			// Stopped without Stop or Exit, e.g. the worker ended on its own.
			s.tick.Stop()
			return
		}
		if s.World.Len() > 0 && s.Net.PeerCount() > 0 {
			if err := s.Net.Broadcast(s.World.Snapshot(), protocol.Unreliable); err != nil {
				s.Net.Logf("snapshot of %d players not sent: %v", s.World.Len(), err)
			}
		}
	case netcode.ConnectionLost:
		s.World.Leave(cmd.Peer)
	}
}

// ClientSession joins a server under a name and mirrors what it reports.
type ClientSession struct {
	View *View
	Net  *netcode.Client

	name string
}

func NewClientSession(name string, newHost netcode.ClientFactory, opts netcode.Options) (*ClientSession, error) {
	reg, err := NewClientRegistry()
	if err != nil {
		return nil, err
	}

	c := &ClientSession{View: NewView(), name: name}

	next := opts.Hooks.OnCommand
	opts.Hooks.OnCommand = func(cmd netcode.SimCommand) {
		c.onCommand(cmd)
		if next != nil {
			next(cmd)
		}
	}

	c.Net = netcode.NewClient(reg.Bind(&ClientContext{View: c.View}), newHost, opts)
	return c, nil
}

func (c *ClientSession) Connect(address string, port uint16) error {
	return c.Net.Connect(address, port)
}

// SendRotation queues the local player's rotation. Rotation updates are
// superseded by the next one, so they go unreliable.
func (c *ClientSession) SendRotation(rotation float32) error {
	return c.Net.Enqueue(&protocol.PlayerRotation{Rotation: rotation}, protocol.Unreliable)
}

func (c *ClientSession) Update() int { return c.Net.Update() }

func (c *ClientSession) onCommand(cmd netcode.SimCommand) {
	switch cmd.Kind {
	case netcode.ConnectionEstablished:
		if err := c.Net.Enqueue(&protocol.Join{Name: c.name}, protocol.ReliableOrdered); err != nil {
			c.Net.Logf("join as %q not sent: %v", c.name, err)
		}
	case netcode.ConnectionLost:
		c.View.reset()
	}
}

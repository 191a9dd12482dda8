package netcode

import (
	"context"
	"net"
	"sort"
	"sync/atomic"
	"time"

	"github.com/1ureka/netbridge/internal/lifecycle"
	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/transport"
)

// ServerFactory creates the listening host for a server worker.
type ServerFactory func(port uint16, maxPeers int) (transport.ServerHost, error)

// PeerOutbound is a server packet addressed to one peer or to all of them.
type PeerOutbound struct {
	protocol.Outbound
	Peer      uint16
	Broadcast bool
}

// Server runs at most one hosting worker. Every peer has its own lifecycle;
// one peer closing never affects the others.
type Server struct {
	core
	bridge   *Bridge[PeerOutbound]
	dispatch PeerDispatcher
	listen   ServerFactory
	running  atomic.Bool
	peers    atomic.Int32
	addr     atomic.Value // net.Addr of the last started host
}

func NewServer(dispatch PeerDispatcher, listen ServerFactory, opts Options) *Server {
	bridge := NewBridge[PeerOutbound]()
	return &Server{
		core:     newCore("server", bridge.SimCmds, opts),
		bridge:   bridge,
		dispatch: dispatch,
		listen:   listen,
	}
}

func (s *Server) Bridge() *Bridge[PeerOutbound] { return s.bridge }

func (s *Server) Running() bool { return s.running.Load() }

// Addr returns the listening address of the most recent Start, or nil.
func (s *Server) Addr() net.Addr {
	addr, _ := s.addr.Load().(net.Addr)
	return addr
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int { return int(s.peers.Load()) }

// Start listens on port and runs the worker. While a worker is running it
// returns ErrWorkerRunning and changes nothing.
func (s *Server) Start(port uint16, maxPeers int) error {
	if !s.running.CompareAndSwap(false, true) {
		s.sink.Log(s.origin, "start ignored: network worker is running already")
		return ErrWorkerRunning
	}

	host, err := s.listen(port, maxPeers)
	if err != nil {
		s.running.Store(false)
		return err
	}

	s.addr.Store(host.Addr())
	s.log.Infof("[%s] hosting on %s for up to %d peers", s.origin, host.Addr(), maxPeers)
	go s.run(host)
	return nil
}

// Send queues msg for one peer.
func (s *Server) Send(peer uint16, msg protocol.Message, delivery protocol.Delivery) error {
	o, err := protocol.NewOutbound(msg, delivery)
	if err != nil {
		return err
	}
	s.bridge.Outgoing.Enqueue(PeerOutbound{Outbound: o, Peer: peer})
	return nil
}

// Broadcast queues msg for every connected peer.
func (s *Server) Broadcast(msg protocol.Message, delivery protocol.Delivery) error {
	o, err := protocol.NewOutbound(msg, delivery)
	if err != nil {
		return err
	}
	s.bridge.Outgoing.Enqueue(PeerOutbound{Outbound: o, Broadcast: true})
	return nil
}

// Kick disconnects one peer.
func (s *Server) Kick(peer uint16) {
	if s.running.Load() {
		s.bridge.WorkerCmds.Enqueue(WorkerCommand{Kind: RequestKick, Peer: peer})
	}
}

// Stop disconnects every peer and stops hosting.
func (s *Server) Stop() {
	if s.running.Load() {
		s.bridge.WorkerCmds.Enqueue(WorkerCommand{Kind: RequestDisconnect})
	}
}

// Exit stops hosting and then exits the application.
func (s *Server) Exit() {
	if s.running.Load() {
		s.bridge.WorkerCmds.Enqueue(WorkerCommand{Kind: RequestExit})
		return
	}
	s.emit(SimCommand{Kind: ExitApp, Reason: ReasonUserExit})
}

// Update drains and dispatches every pending command. Call once per tick.
func (s *Server) Update() int {
	return s.update(func(cmd SimCommand) error {
		return s.dispatch.Dispatch(cmd.Peer, cmd.Opcode, cmd.Reader)
	})
}

func (s *Server) run(host transport.ServerHost) {
	stopReporter := s.startReporter()

	w := &serverWorker{Server: s, host: host, peers: make(map[uint16]*remotePeer)}
	reason := w.loop()
	w.shutdown()
	stopReporter()

	s.log.Infof("[%s] stopped (%s)", s.origin, reason)
	s.finish(reason)

	if n, _ := s.bridge.WaitIdle(context.Background(), DefaultIdlePoll); n > 0 {
		s.log.Debugf("[%s] discarded %d queued entries after stop", s.origin, n)
	}
	s.running.Store(false)
}

type remotePeer struct {
	peer   transport.Peer
	state  *lifecycle.Machine
	reason Reason // Set when the server starts the close
}

type serverWorker struct {
	*Server
	host  transport.ServerHost
	peers map[uint16]*remotePeer
}

func (w *serverWorker) loop() Reason {
	for {
		if reason, stop := w.drainCommands(); stop {
			return reason
		}
		w.drainOutgoing()

		if ev, ok := w.poll(w.host); ok {
			w.handle(ev)
		}
	}
}

func (w *serverWorker) drainCommands() (Reason, bool) {
	reason := ReasonNone
	for {
		cmd, ok := w.bridge.WorkerCmds.TryDequeue()
		if !ok {
			break
		}
		switch cmd.Kind {
		case RequestKick:
			w.kick(cmd.Peer)
		case RequestDisconnect:
			if reason == ReasonNone {
				reason = ReasonServerStopped
			}
		case RequestExit:
			reason = ReasonUserExit
		}
	}
	return reason, reason != ReasonNone
}

func (w *serverWorker) kick(id uint16) {
	rp, ok := w.peers[id]
	if !ok || rp.state.State() != lifecycle.Connected {
		w.diag("kick ignored: peer %d is not connected", id)
		return
	}
	w.closePeer(rp, ReasonKicked)
}

func (w *serverWorker) closePeer(rp *remotePeer, reason Reason) {
	if err := rp.state.Transition(lifecycle.Disconnecting); err != nil {
		return
	}
	rp.reason = reason
	rp.peer.Disconnect()
}

func (w *serverWorker) drainOutgoing() {
	for {
		o, ok := w.bridge.Outgoing.TryDequeue()
		if !ok {
			return
		}
		if o.Broadcast {
			for _, id := range w.connectedIDs() {
				w.send(w.peers[id].peer, o.Outbound)
			}
			continue
		}
		rp, ok := w.peers[o.Peer]
		if !ok || rp.state.State() != lifecycle.Connected {
			w.diag("dropped %s for peer %d: not connected", o.Opcode, o.Peer)
			continue
		}
		w.send(rp.peer, o.Outbound)
	}
}

// connectedIDs lists connected peers in slot order.
func (w *serverWorker) connectedIDs() []uint16 {
	ids := make([]uint16, 0, len(w.peers))
	for id, rp := range w.peers {
		if rp.state.State() == lifecycle.Connected {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *serverWorker) handle(ev transport.Event) {
	id := ev.Peer.ID()
	switch ev.Type {
	case transport.EventConnect:
		rp := &remotePeer{peer: ev.Peer, state: lifecycle.NewMachine()}
		_ = rp.state.Transition(lifecycle.Connecting)
		_ = rp.state.Transition(lifecycle.Connected)
		w.peers[id] = rp
		w.Server.peers.Add(1)
		ev.Peer.Configure(w.timing)
		w.stats.AddConn()
		w.diag("peer %d connected from %s", id, ev.Peer.RemoteAddr())
		w.emit(SimCommand{Kind: ConnectionEstablished, Peer: id})
		w.hooks.connect(ev.Peer)

	case transport.EventReceive:
		rp, ok := w.peers[id]
		if !ok || rp.state.State() != lifecycle.Connected {
			return
		}
		w.receive(ev)

	case transport.EventTimeout:
		rp, ok := w.peers[id]
		if !ok {
			return
		}
		_ = rp.state.Transition(lifecycle.TimingOut)
		w.diag("peer %d timed out", id)
		w.hooks.timeout(ev.Peer)
		w.remove(rp, ReasonTimeout)

	case transport.EventDisconnect:
		rp, ok := w.peers[id]
		if !ok {
			return
		}
		reason := rp.reason
		if reason == ReasonNone {
			reason = ReasonRemoteDisconnect
		}
		w.diag("peer %d disconnected (%s)", id, reason)
		w.hooks.disconnect(ev.Peer)
		w.remove(rp, reason)
	}
}

func (w *serverWorker) remove(rp *remotePeer, reason Reason) {
	id := rp.peer.ID()
	_ = rp.state.Transition(lifecycle.Closed)
	delete(w.peers, id)
	w.Server.peers.Add(-1)
	w.stats.RemoveConn()
	w.emit(SimCommand{Kind: ConnectionLost, Peer: id, Reason: reason})
}

// shutdown sends what is queued, disconnects every peer and waits a
// bounded time for each to acknowledge.
func (w *serverWorker) shutdown() {
	defer w.host.Close()

	w.drainOutgoing()
	for _, id := range w.connectedIDs() {
		w.closePeer(w.peers[id], ReasonServerStopped)
	}

	deadline := time.Now().Add(disconnectWait)
	for len(w.peers) > 0 && time.Now().Before(deadline) {
		ev, ok := w.poll(w.host)
		if !ok || ev.Type == transport.EventReceive {
			continue
		}
		w.handle(ev)
		if ev.Type == transport.EventConnect {
			w.closePeer(w.peers[ev.Peer.ID()], ReasonServerStopped)
		}
	}
	for _, rp := range w.peers {
		w.hooks.disconnect(rp.peer)
		w.remove(rp, ReasonServerStopped)
	}

	if err := w.host.Flush(); err != nil {
		w.log.Warnf("[%s] flush: %v", w.origin, err)
	}
}

package netcode

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/1ureka/netbridge/internal/lifecycle"
	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/transport"
)

// ClientFactory creates the host a client worker connects through.
type ClientFactory func() (transport.ClientHost, error)

// Client runs at most one network worker connected to a server. Connect,
// Disconnect, Exit, Enqueue and Update are called from the simulation
// goroutine.
type Client struct {
	core
	bridge   *Bridge[protocol.Outbound]
	dispatch Dispatcher
	newHost  ClientFactory
	state    *lifecycle.Machine
	running  atomic.Bool
}

func NewClient(dispatch Dispatcher, newHost ClientFactory, opts Options) *Client {
	bridge := NewBridge[protocol.Outbound]()
	return &Client{
		core:     newCore("client", bridge.SimCmds, opts),
		bridge:   bridge,
		dispatch: dispatch,
		newHost:  newHost,
		state:    lifecycle.NewMachine(),
	}
}

// Bridge exposes the client's queues.
func (c *Client) Bridge() *Bridge[protocol.Outbound] { return c.bridge }

// State returns the connection state.
func (c *Client) State() lifecycle.State { return c.state.State() }

// Running reports whether a worker holds the guard. It stays true until the
// worker has stopped and every queue is empty.
func (c *Client) Running() bool { return c.running.Load() }

// Connect starts a worker that connects to address:port. While a worker is
// running it returns ErrWorkerRunning and changes nothing.
func (c *Client) Connect(address string, port uint16) error {
	if !c.running.CompareAndSwap(false, true) {
		c.sink.Log(c.origin, "connect ignored: network worker is running already")
		return ErrWorkerRunning
	}
	if err := c.state.Transition(lifecycle.Connecting); err != nil {
		c.running.Store(false)
		return err
	}

	host, err := c.newHost()
	if err != nil {
		c.state.Close()
		c.running.Store(false)
		return err
	}

	c.bridge.WorkerCmds.Enqueue(WorkerCommand{Kind: RequestConnect, Address: address, Port: port})
	go c.run(host)
	return nil
}

// Disconnect asks the worker to close the connection and stop.
func (c *Client) Disconnect() {
	if c.running.Load() {
		c.bridge.WorkerCmds.Enqueue(WorkerCommand{Kind: RequestDisconnect})
	}
}

// Exit asks the worker to drain, disconnect and then exit the application.
// Without a worker the exit is requested immediately.
func (c *Client) Exit() {
	if c.running.Load() {
		c.bridge.WorkerCmds.Enqueue(WorkerCommand{Kind: RequestExit})
		return
	}
	c.emit(SimCommand{Kind: ExitApp, Reason: ReasonUserExit})
}

// Enqueue encodes msg and queues it for the worker.
func (c *Client) Enqueue(msg protocol.Message, delivery protocol.Delivery) error {
	o, err := protocol.NewOutbound(msg, delivery)
	if err != nil {
		return err
	}
	c.bridge.Outgoing.Enqueue(o)
	return nil
}

// Update drains and dispatches every pending command. Call once per tick.
func (c *Client) Update() int {
	return c.update(func(cmd SimCommand) error {
		return c.dispatch.Dispatch(cmd.Opcode, cmd.Reader)
	})
}

func (c *Client) run(host transport.ClientHost) {
	stopReporter := c.startReporter()

	w := &clientWorker{Client: c, host: host}
	reason := w.loop()
	w.shutdown(reason)
	stopReporter()

	c.log.Infof("[%s] stopped (%s)", c.origin, reason)
	c.emit(SimCommand{Kind: ConnectionLost, Reason: reason})
	c.finish(reason)

	if n, _ := c.bridge.WaitIdle(context.Background(), DefaultIdlePoll); n > 0 {
		c.log.Debugf("[%s] discarded %d queued entries after stop", c.origin, n)
	}
	c.running.Store(false)
}

// clientWorker is the state owned by one worker goroutine.
type clientWorker struct {
	*Client
	host        transport.ClientHost
	peer        transport.Peer
	peerGone    bool
	established bool
}

func (w *clientWorker) loop() Reason {
	for {
		if reason, stop := w.drainCommands(); stop {
			return reason
		}
		w.drainOutgoing()

		ev, ok := w.poll(w.host)
		if !ok {
			continue
		}
		if reason, stop := w.handle(ev); stop {
			return reason
		}
	}
}

// drainCommands applies every queued worker command. Exit outranks
// disconnect when both are queued.
func (w *clientWorker) drainCommands() (Reason, bool) {
	reason := ReasonNone
	for {
		cmd, ok := w.bridge.WorkerCmds.TryDequeue()
		if !ok {
			break
		}
		switch cmd.Kind {
		case RequestConnect:
			if w.peer != nil {
				w.diag("connect ignored: already connecting")
				continue
			}
			peer, err := w.host.Connect(cmd.Address, cmd.Port)
			if err != nil {
				w.diag("failed to connect to %s:%d: %v", cmd.Address, cmd.Port, err)
				w.peerGone = true
				return ReasonConnectFailed, true
			}
			w.peer = peer
			w.log.Infof("[%s] connecting to %s:%d", w.origin, cmd.Address, cmd.Port)
		case RequestDisconnect:
			if reason == ReasonNone {
				reason = ReasonUserDisconnect
			}
		case RequestExit:
			reason = ReasonUserExit
		}
	}
	return reason, reason != ReasonNone
}

func (w *clientWorker) connected() bool {
	return w.peer != nil && !w.peerGone && w.state.State() == lifecycle.Connected
}

// drainOutgoing sends everything queued. Packets wait in the queue until
// the connection is established.
func (w *clientWorker) drainOutgoing() {
	if !w.connected() {
		return
	}
	for {
		o, ok := w.bridge.Outgoing.TryDequeue()
		if !ok {
			return
		}
		w.send(w.peer, o)
	}
}

func (w *clientWorker) handle(ev transport.Event) (Reason, bool) {
	switch ev.Type {
	case transport.EventConnect:
		ev.Peer.Configure(w.timing)
		w.transition(lifecycle.Connected)
		w.established = true
		w.stats.AddConn()
		w.diag("connected to %s", ev.Peer.RemoteAddr())
		w.emit(SimCommand{Kind: ConnectionEstablished, Peer: ev.Peer.ID()})
		w.hooks.connect(ev.Peer)

	case transport.EventReceive:
		w.receive(ev)

	case transport.EventTimeout:
		w.peerGone = true
		w.transition(lifecycle.TimingOut)
		w.stats.RemoveConn()
		w.diag("connection to server timed out")
		w.hooks.timeout(ev.Peer)
		return ReasonTimeout, true

	case transport.EventDisconnect:
		w.peerGone = true
		if w.state.State() == lifecycle.Connecting {
			w.diag("failed to connect: %v", ev.Err)
			return ReasonConnectFailed, true
		}
		w.stats.RemoveConn()
		w.diag("disconnected from server")
		w.hooks.disconnect(ev.Peer)
		return ReasonRemoteDisconnect, true
	}
	return ReasonNone, false
}

// shutdown flushes what can still be sent, closes the peer gracefully and
// releases the host. Every path ends Closed.
func (w *clientWorker) shutdown(reason Reason) {
	defer func() {
		w.host.Close()
		w.transition(lifecycle.Closed)
	}()

	if w.peer != nil && !w.peerGone {
		w.drainOutgoing()
		if w.state.State().Active() {
			w.transition(lifecycle.Disconnecting)
		}
		w.peer.Disconnect()
		w.awaitDisconnect()
		if w.established {
			w.stats.RemoveConn()
			w.hooks.disconnect(w.peer)
		}
	}

	if err := w.host.Flush(); err != nil {
		w.log.Warnf("[%s] flush: %v", w.origin, err)
	}
}

// awaitDisconnect services the host until the peer's closing event arrives
// or disconnectWait runs out.
func (w *clientWorker) awaitDisconnect() {
	deadline := time.Now().Add(disconnectWait)
	for time.Now().Before(deadline) {
		ev, ok := w.poll(w.host)
		if !ok {
			continue
		}
		if ev.Type == transport.EventDisconnect || ev.Type == transport.EventTimeout {
			w.peerGone = true
			return
		}
	}
	w.log.Warnf("[%s] no disconnect acknowledgment within %v", w.origin, disconnectWait)
}

func (w *clientWorker) transition(to lifecycle.State) {
	if err := w.state.Transition(to); err != nil {
		w.log.Debugf("[%s] %v", w.origin, err)
	}
}

package netcode

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/transport"
)

type sentPacket struct {
	data     []byte
	delivery protocol.Delivery
}

// fakePeer records sends. Disconnect acknowledges immediately unless the
// host is configured to stay silent.
type fakePeer struct {
	id   uint16
	host *fakeHost

	mu           sync.Mutex
	sent         []sentPacket
	timing       transport.Timing
	disconnected bool
}

func (p *fakePeer) ID() uint16                   { return p.id }
func (p *fakePeer) RemoteAddr() string           { return "fake" }
func (p *fakePeer) RoundTrip() time.Duration     { return time.Millisecond }
func (p *fakePeer) Configure(t transport.Timing) { p.mu.Lock(); p.timing = t; p.mu.Unlock() }

func (p *fakePeer) Send(data []byte, delivery protocol.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnected {
		return transport.ErrPeerClosed
	}
	p.sent = append(p.sent, sentPacket{data: append([]byte(nil), data...), delivery: delivery})
	return nil
}

func (p *fakePeer) Disconnect() {
	p.mu.Lock()
	already := p.disconnected
	p.disconnected = true
	p.mu.Unlock()
	if !already && !p.host.silent {
		p.host.push(transport.Event{Type: transport.EventDisconnect, Peer: p})
	}
}

func (p *fakePeer) packets() []sentPacket {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentPacket(nil), p.sent...)
}

func (p *fakePeer) isDisconnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

func (p *fakePeer) configured() transport.Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timing
}

// fakeHost satisfies both ClientHost and ServerHost.
type fakeHost struct {
	events      chan transport.Event
	autoConnect bool
	silent      bool

	mu     sync.Mutex
	peers  map[uint16]*fakePeer
	closed atomic.Bool
	flushs atomic.Int32
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		events:      make(chan transport.Event, 256),
		autoConnect: true,
		peers:       make(map[uint16]*fakePeer),
	}
}

func (h *fakeHost) push(ev transport.Event) { h.events <- ev }

func (h *fakeHost) peer(id uint16) *fakePeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[id]
	if !ok {
		p = &fakePeer{id: id, host: h}
		h.peers[id] = p
	}
	return p
}

// connect simulates a remote peer arriving.
func (h *fakeHost) connect(id uint16) *fakePeer {
	p := h.peer(id)
	h.push(transport.Event{Type: transport.EventConnect, Peer: p})
	return p
}

func (h *fakeHost) receive(id uint16, data []byte) {
	h.push(transport.Event{Type: transport.EventReceive, Peer: h.peer(id), Data: data})
}

func (h *fakeHost) CheckEvents() (transport.Event, bool) {
	select {
	case ev := <-h.events:
		return ev, true
	default:
		return transport.Event{}, false
	}
}

func (h *fakeHost) Service(timeout time.Duration) (transport.Event, bool) {
	select {
	case ev := <-h.events:
		return ev, true
	case <-time.After(timeout):
		return transport.Event{}, false
	}
}

func (h *fakeHost) Flush() error { h.flushs.Add(1); return nil }
func (h *fakeHost) Close() error { h.closed.Store(true); return nil }

func (h *fakeHost) Connect(address string, port uint16) (transport.Peer, error) {
	p := h.peer(0)
	if h.autoConnect {
		h.push(transport.Event{Type: transport.EventConnect, Peer: p})
	}
	return p, nil
}

func (h *fakeHost) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

// recorder collects everything the simulation side observes.
type recorder struct {
	mu       sync.Mutex
	logs     []string
	packets  []protocol.Opcode
	commands []SimCommand
	menus    int
	exits    int
	onExit   func()
	failWith error
}

func (r *recorder) Log(origin, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, origin+": "+message)
}

func (r *recorder) ToMainMenu() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.menus++
}

func (r *recorder) ExitApplication() {
	r.mu.Lock()
	r.exits++
	fn := r.onExit
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (r *recorder) Dispatch(op protocol.Opcode, rd *protocol.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.packets = append(r.packets, op)
	return nil
}

func (r *recorder) command(cmd SimCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
}

func (r *recorder) snapshot() recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorder{
		logs:     append([]string(nil), r.logs...),
		packets:  append([]protocol.Opcode(nil), r.packets...),
		commands: append([]SimCommand(nil), r.commands...),
		menus:    r.menus,
		exits:    r.exits,
	}
}

func (r *recorder) lost() []SimCommand {
	var out []SimCommand
	for _, cmd := range r.snapshot().commands {
		if cmd.Kind == ConnectionLost {
			out = append(out, cmd)
		}
	}
	return out
}

// peerDispatch adapts recorder to PeerDispatcher.
type peerDispatch struct {
	*recorder
	from []uint16
}

func (d *peerDispatch) Dispatch(peer uint16, op protocol.Opcode, rd *protocol.Reader) error {
	d.mu.Lock()
	d.from = append(d.from, peer)
	d.mu.Unlock()
	return d.recorder.Dispatch(op, rd)
}

package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/netbridge/internal/protocol"
)

// disconnectGrace bounds how long a graceful close waits for the remote.
const disconnectGrace = time.Second

// link is one established connection beneath a peer.
type link interface {
	send(data []byte, delivery protocol.Delivery) error
	ping(stamp int64) error

	// start begins delivering inbound data to the peer.
	start()

	flush(ctx context.Context) error

	// close tears the link down. A graceful close asks the remote to close
	// first; the peer is terminated when that acknowledgment arrives.
	close(graceful bool) error
	remoteAddr() string
}

type peer struct {
	id     uint16
	host   *host
	ctx    context.Context
	cancel context.CancelFunc

	// announceFailure makes a peer that never connected still emit
	// EventDisconnect. Clients need this to learn a connect attempt failed.
	announceFailure bool

	mu     sync.Mutex
	link   link
	addr   string
	timing Timing
	early  []Event // received before the connect event was queued

	lastRecv      atomic.Int64 // unix nanos
	rtt           atomic.Int64 // nanos
	connected     atomic.Bool
	disconnecting atomic.Bool
	closed        atomic.Bool
	termOnce      sync.Once
}

func newPeer(h *host, id uint16) *peer {
	ctx, cancel := context.WithCancel(h.ctx)
	p := &peer{
		id:     id,
		host:   h,
		ctx:    ctx,
		cancel: cancel,
		timing: DefaultTiming(),
	}
	p.rtt.Store(int64(initialRoundTrip))
	p.touch()
	return p
}

func (p *peer) ID() uint16 { return p.id }

func (p *peer) RemoteAddr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

func (p *peer) Send(data []byte, delivery protocol.Delivery) error {
	if p.closed.Load() || p.disconnecting.Load() {
		return ErrPeerClosed
	}
	l := p.currentLink()
	if l == nil {
		return ErrNotConnected
	}
	return l.send(data, delivery)
}

func (p *peer) Configure(t Timing) {
	t = t.Normalize()
	p.mu.Lock()
	p.timing = t
	p.mu.Unlock()
}

func (p *peer) RoundTrip() time.Duration {
	return time.Duration(p.rtt.Load())
}

func (p *peer) Disconnect() {
	if p.closed.Load() || !p.disconnecting.CompareAndSwap(false, true) {
		return
	}

	l := p.currentLink()
	if l == nil {
		// Still dialing or negotiating.
		p.terminate(EventDisconnect, nil)
		return
	}

	if err := l.close(true); err != nil {
		p.terminate(EventDisconnect, nil)
		return
	}
	time.AfterFunc(disconnectGrace, func() {
		p.terminate(EventDisconnect, nil)
	})
}

func (p *peer) currentLink() link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link
}

func (p *peer) currentTiming() Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timing
}

// attach installs an established link and queues EventConnect. A peer
// closed while its link was being set up discards the link.
func (p *peer) attach(l link) {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		l.close(false)
		return
	}
	p.link = l
	p.addr = l.remoteAddr()
	p.touch()

	p.host.emit(Event{Type: EventConnect, Peer: p})
	for _, ev := range p.early {
		p.host.emit(ev)
	}
	p.early = nil
	p.connected.Store(true)
	p.mu.Unlock()

	l.start()
	p.host.spawn(p.liveness)
}

// deliver queues inbound application data.
func (p *peer) deliver(data []byte) { p.deliverSized(data, len(data)) }

// deliverSized queues data that may be a truncated prefix of a size-byte
// message.
func (p *peer) deliverSized(data []byte, size int) {
	p.touch()
	if p.closed.Load() {
		return
	}
	ev := Event{Type: EventReceive, Peer: p, Data: data, Size: size}
	if !p.connected.Load() {
		p.mu.Lock()
		if !p.connected.Load() {
			p.early = append(p.early, ev)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
	p.host.emit(ev)
}

func (p *peer) touch() {
	p.lastRecv.Store(time.Now().UnixNano())
}

// pong records a round-trip sample from a ping sent at stamp.
func (p *peer) pong(stamp int64) {
	p.touch()
	sample := time.Now().UnixNano() - stamp
	if sample <= 0 {
		return
	}
	for {
		old := p.rtt.Load()
		smoothed := (7*old + sample) / 8
		if p.rtt.CompareAndSwap(old, smoothed) {
			return
		}
	}
}

// lost handles the link going away underneath the peer.
func (p *peer) lost(err error) {
	if p.closed.Load() {
		return
	}
	if p.disconnecting.Load() {
		err = nil
	}
	p.terminate(EventDisconnect, err)
}

func (p *peer) terminate(typ EventType, err error) {
	p.termOnce.Do(func() {
		p.mu.Lock()
		p.closed.Store(true)
		l := p.link
		p.mu.Unlock()

		p.cancel()
		if l != nil {
			l.close(false)
		}

		// The slot is freed only after the event is queued, so a peer that
		// reuses the ID cannot have its connect overtake this disconnect.
		if p.connected.Load() || p.announceFailure {
			p.host.emit(Event{Type: typ, Peer: p, Err: err})
		}
		p.host.release(p)
	})
}

// liveness pings the remote each interval and times the peer out when it
// has been silent too long.
func (p *peer) liveness() {
	for {
		t := p.currentTiming()
		tick := time.NewTimer(t.PingInterval)
		select {
		case <-p.ctx.Done():
			tick.Stop()
			return
		case <-tick.C:
		}

		silence := time.Since(time.Unix(0, p.lastRecv.Load()))
		if t.Expired(silence, p.RoundTrip()) {
			p.host.log.Warnf("[transport] peer %d silent for %v, timing out", p.id, silence.Round(time.Millisecond))
			p.terminate(EventTimeout, ErrTimeout)
			return
		}

		if l := p.currentLink(); l != nil && !p.disconnecting.Load() {
			// Failures surface through the read side.
			_ = l.ping(time.Now().UnixNano())
		}
	}
}

package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/1ureka/netbridge/internal/queue"
	"github.com/1ureka/netbridge/internal/util"
)

// host is the slot table and event queue shared by Client and Server.
// Link goroutines enqueue events without blocking; the servicing goroutine
// drains them.
type host struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	log    *util.Logger

	events *queue.Queue[Event]
	notify chan struct{}

	mu       sync.Mutex
	peers    map[uint16]*peer
	maxPeers int
	closed   bool
	wg       sync.WaitGroup

	closeOnce sync.Once
}

func newHost(maxPeers int, opts Options) *host {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &host{
		ctx:      ctx,
		cancel:   cancel,
		opts:     opts,
		log:      opts.Log,
		events:   queue.New[Event](),
		notify:   make(chan struct{}, 1),
		peers:    make(map[uint16]*peer),
		maxPeers: maxPeers,
	}
}

func (h *host) emit(ev Event) {
	h.events.Enqueue(ev)
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *host) CheckEvents() (Event, bool) {
	return h.events.TryDequeue()
}

func (h *host) Service(timeout time.Duration) (Event, bool) {
	if ev, ok := h.events.TryDequeue(); ok {
		return ev, true
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	for {
		select {
		case <-h.notify:
			if ev, ok := h.events.TryDequeue(); ok {
				return ev, true
			}
		case <-t.C:
			return h.events.TryDequeue()
		case <-h.ctx.Done():
			return h.events.TryDequeue()
		}
	}
}

// spawn runs fn on a goroutine that Close waits for. It refuses once the
// host is closed.
func (h *host) spawn(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
	return true
}

// reserve allocates the lowest free slot.
func (h *host) reserve() (*peer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHostClosed
	}
	for id := 0; id < h.maxPeers; id++ {
		if _, used := h.peers[uint16(id)]; !used {
			p := newPeer(h, uint16(id))
			h.peers[uint16(id)] = p
			return p, nil
		}
	}
	return nil, ErrHostFull
}

func (h *host) release(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[p.id] == p {
		delete(h.peers, p.id)
	}
}

func (h *host) snapshot() []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

// PeerCount counts connected peers. Slots still negotiating are excluded.
func (h *host) PeerCount() int {
	n := 0
	for _, p := range h.snapshot() {
		if p.connected.Load() {
			n++
		}
	}
	return n
}

// Flush waits up to a second for every link to drain.
func (h *host) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var errs []error
	for _, p := range h.snapshot() {
		if l := p.currentLink(); l != nil {
			if err := l.flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close terminates every peer and waits for link goroutines to exit.
func (h *host) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()

		h.cancel()
		for _, p := range h.snapshot() {
			p.terminate(EventDisconnect, ErrHostClosed)
		}
		h.wg.Wait()
	})
	return nil
}

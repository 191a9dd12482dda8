package netcode

import (
	"errors"
	"fmt"
	"time"

	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/queue"
	"github.com/1ureka/netbridge/internal/transport"
	"github.com/1ureka/netbridge/internal/util"
)

const (
	// serviceTimeout bounds one Service wait per loop iteration.
	serviceTimeout = 15 * time.Millisecond

	// disconnectWait bounds how long shutdown waits for disconnect
	// acknowledgments.
	disconnectWait = time.Second
)

// ErrWorkerRunning is returned by Connect and Start while a worker is live.
var ErrWorkerRunning = errors.New("network worker already running")

// Options configures a Client or Server.
type Options struct {
	Log   *util.Logger
	Sink  LogSink   // Defaults to Log
	Scene SceneSink // Defaults to a no-op
	Hooks Hooks

	// Timing is applied to every peer when it connects.
	Timing transport.Timing

	// StatsInterval enables the traffic reporter; zero disables it.
	StatsInterval time.Duration
}

// core is the state shared by both worker roles.
type core struct {
	origin        string
	log           *util.Logger
	sink          LogSink
	scene         SceneSink
	hooks         Hooks
	timing        transport.Timing
	statsInterval time.Duration
	stats         *util.Stats
	simCmds       *queue.Queue[SimCommand]
}

func newCore(origin string, simCmds *queue.Queue[SimCommand], opts Options) core {
	if opts.Log == nil {
		opts.Log = util.NewLogger(util.LogOptions{})
	}
	if opts.Sink == nil {
		opts.Sink = opts.Log
	}
	if opts.Scene == nil {
		opts.Scene = nopScene{}
	}
	return core{
		origin:        origin,
		log:           opts.Log,
		sink:          opts.Sink,
		scene:         opts.Scene,
		hooks:         opts.Hooks,
		timing:        opts.Timing.Normalize(),
		statsInterval: opts.StatsInterval,
		stats:         &util.Stats{},
		simCmds:       simCmds,
	}
}

// Stats returns the worker's traffic counters.
func (c *core) Stats() *util.Stats { return c.stats }

// diag queues a log line for the simulation goroutine.
func (c *core) diag(format string, args ...any) {
	c.simCmds.Enqueue(SimCommand{Kind: LogMessage, Origin: c.origin, Text: fmt.Sprintf(format, args...)})
}

// Logf writes straight to the log sink. Call it from the simulation
// goroutine only.
func (c *core) Logf(format string, args ...any) {
	c.sink.Log(c.origin, fmt.Sprintf(format, args...))
}

func (c *core) emit(cmd SimCommand) { c.simCmds.Enqueue(cmd) }

// poll returns an already-queued event if there is one, otherwise waits up
// to serviceTimeout for the next.
func (c *core) poll(h transport.Host) (transport.Event, bool) {
	if ev, ok := h.CheckEvents(); ok {
		return ev, true
	}
	return h.Service(serviceTimeout)
}

// receive validates an inbound packet and queues it for dispatch.
func (c *core) receive(ev transport.Event) {
	size := max(ev.Size, len(ev.Data))
	c.stats.AddRecv(size)
	op, rd, err := protocol.Decode(ev.Data)
	if err != nil {
		c.stats.AddDropped()
		c.diag("rejected %d-byte packet from peer %d (max %d): %v", size, ev.Peer.ID(), protocol.MaxSize, err)
		return
	}
	c.emit(SimCommand{Kind: InboundPacket, Peer: ev.Peer.ID(), Opcode: op, Reader: rd})
}

func (c *core) send(p transport.Peer, o protocol.Outbound) {
	data := o.Bytes()
	if err := p.Send(data, o.Delivery); err != nil {
		c.diag("failed to send %s to peer %d: %v", o.Opcode, p.ID(), err)
		return
	}
	c.stats.AddSent(len(data))
}

// startReporter runs the stats reporter; the returned func stops it.
func (c *core) startReporter() func() {
	if c.statsInterval <= 0 {
		return func() {}
	}
	t, err := util.NewStatsReporter(c.stats, c.log, c.origin, c.statsInterval)
	if err != nil {
		c.log.Warnf("[%s] stats reporter disabled: %v", c.origin, err)
		return func() {}
	}
	return func() { t.Close() }
}

// finish queues the scene command, if any, that follows a stopped worker.
func (c *core) finish(reason Reason) {
	if kind, ok := reason.terminal(); ok {
		c.emit(SimCommand{Kind: kind, Reason: reason})
	}
}

// update drains every queued SimCommand on the calling goroutine.
func (c *core) update(dispatch func(cmd SimCommand) error) int {
	n := 0
	for {
		cmd, ok := c.simCmds.TryDequeue()
		if !ok {
			return n
		}
		n++

		switch cmd.Kind {
		case InboundPacket:
			if err := dispatch(cmd); err != nil {
				c.stats.AddDropped()
				c.sink.Log(c.origin, fmt.Sprintf("dropped packet from peer %d: %v", cmd.Peer, err))
			}
		case LogMessage:
			c.sink.Log(cmd.Origin, cmd.Text)
		case LoadMainMenu:
			c.scene.ToMainMenu()
		case ExitApp:
			c.scene.ExitApplication()
		default:
			c.hooks.command(cmd)
		}
	}
}

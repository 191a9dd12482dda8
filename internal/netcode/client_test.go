package netcode

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1ureka/netbridge/internal/lifecycle"
	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/registry"
	"github.com/1ureka/netbridge/internal/transport"
	"github.com/1ureka/netbridge/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

func quietLogger() *util.Logger {
	return util.NewLogger(util.LogOptions{Writer: io.Discard})
}

type clientFixture struct {
	client  *Client
	host    *fakeHost
	rec     *recorder
	created atomic.Int32
}

func newClientFixture(t *testing.T, configure func(h *fakeHost)) *clientFixture {
	return newClientFixtureWithHooks(t, configure, Hooks{})
}

func newClientFixtureWithHooks(t *testing.T, configure func(h *fakeHost), hooks Hooks) *clientFixture {
	t.Helper()
	f := &clientFixture{host: newFakeHost(), rec: &recorder{}}
	if configure != nil {
		configure(f.host)
	}
	hooks.OnCommand = f.rec.command
	factory := func() (transport.ClientHost, error) {
		f.created.Add(1)
		return f.host, nil
	}
	f.client = NewClient(f.rec, factory, Options{
		Log:   quietLogger(),
		Sink:  f.rec,
		Scene: f.rec,
		Hooks: hooks,
	})
	t.Cleanup(func() {
		f.client.Exit()
		f.pump(t, func() bool { return !f.client.Running() })
	})
	return f
}

// pump runs Update until cond holds.
func (f *clientFixture) pump(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.client.Update()
		return cond()
	}, waitFor, 5*time.Millisecond)
}

func (f *clientFixture) connect(t *testing.T) *fakePeer {
	t.Helper()
	require.NoError(t, f.client.Connect("127.0.0.1", 25565))
	f.pump(t, func() bool { return f.client.State() == lifecycle.Connected })
	return f.host.peer(0)
}

func payloads(packets []sentPacket) [][]byte {
	out := make([][]byte, len(packets))
	for i, p := range packets {
		out[i] = p.data
	}
	return out
}

func TestClientSendsQueuedPacketsInOrder(t *testing.T) {
	f := newClientFixture(t, nil)

	// Queued before the connection exists; held until connected.
	for i := 0; i < 3; i++ {
		require.NoError(t, f.client.Enqueue(&protocol.PlayerRotation{Rotation: float32(i)}, protocol.Unreliable))
	}
	peer := f.connect(t)
	require.NoError(t, f.client.Enqueue(&protocol.Join{Name: "ana"}, protocol.ReliableOrdered))

	f.pump(t, func() bool { return len(peer.packets()) == 4 })

	var want [][]byte
	for i := 0; i < 3; i++ {
		data, err := protocol.Encode(&protocol.PlayerRotation{Rotation: float32(i)})
		require.NoError(t, err)
		want = append(want, data)
	}
	join, err := protocol.Encode(&protocol.Join{Name: "ana"})
	require.NoError(t, err)
	want = append(want, join)

	sent := peer.packets()
	assert.Equal(t, want, payloads(sent))
	assert.Equal(t, protocol.Unreliable, sent[0].delivery)
	assert.Equal(t, protocol.ReliableOrdered, sent[3].delivery)
	assert.Equal(t, transport.DefaultTiming(), peer.configured())
}

func TestClientDispatchesInboundPackets(t *testing.T) {
	f := newClientFixture(t, nil)
	f.connect(t)

	data, err := protocol.Encode(&protocol.Welcome{PlayerID: 3})
	require.NoError(t, err)
	f.host.receive(0, data)

	f.pump(t, func() bool { return len(f.rec.snapshot().packets) == 1 })
	assert.Equal(t, []protocol.Opcode{protocol.OpWelcome}, f.rec.snapshot().packets)

	var est []SimCommand
	for _, cmd := range f.rec.snapshot().commands {
		if cmd.Kind == ConnectionEstablished {
			est = append(est, cmd)
		}
	}
	assert.Len(t, est, 1)
}

func TestClientLogsFullSizeOfTruncatedPacket(t *testing.T) {
	f := newClientFixture(t, nil)
	f.connect(t)

	size := 4*protocol.MaxSize + 1
	f.host.push(transport.Event{
		Type: transport.EventReceive,
		Peer: f.host.peer(0),
		Data: make([]byte, protocol.MaxSize+1),
		Size: size,
	})
	f.host.receive(0, []byte{byte(protocol.OpWelcome), 0x00, 0x07})

	f.pump(t, func() bool {
		s := f.rec.snapshot()
		return len(s.packets) == 1 &&
			strings.Contains(strings.Join(s.logs, "\n"), fmt.Sprintf("rejected %d-byte packet", size))
	})

	assert.Equal(t, int64(1), f.client.Stats().Dropped.Load())
	assert.Equal(t, lifecycle.Connected, f.client.State())
}

func TestClientRejectsOversizedPacket(t *testing.T) {
	f := newClientFixture(t, nil)
	f.connect(t)

	f.host.receive(0, make([]byte, protocol.MaxSize+1))
	f.host.receive(0, nil)

	f.pump(t, func() bool {
		joined := strings.Join(f.rec.snapshot().logs, "\n")
		return strings.Contains(joined, fmt.Sprintf("rejected %d-byte packet", protocol.MaxSize+1)) &&
			strings.Contains(joined, "rejected 0-byte packet")
	})

	assert.Empty(t, f.rec.snapshot().packets)
	assert.Equal(t, int64(2), f.client.Stats().Dropped.Load())
	assert.Equal(t, lifecycle.Connected, f.client.State())
}

func TestClientLogsUnknownOpcode(t *testing.T) {
	f := newClientFixture(t, nil)
	f.connect(t)
	f.rec.mu.Lock()
	f.rec.failWith = fmt.Errorf("%w: 0x7f", registry.ErrUnknownOpcode)
	f.rec.mu.Unlock()

	f.host.receive(0, []byte{0x7f})
	f.pump(t, func() bool {
		return strings.Contains(strings.Join(f.rec.snapshot().logs, "\n"), "dropped packet")
	})
	assert.Equal(t, lifecycle.Connected, f.client.State())
}

func TestClientDoubleConnectRejected(t *testing.T) {
	f := newClientFixture(t, nil)
	f.connect(t)

	err := f.client.Connect("127.0.0.1", 25565)
	assert.ErrorIs(t, err, ErrWorkerRunning)
	assert.Equal(t, int32(1), f.created.Load())
	assert.Equal(t, lifecycle.Connected, f.client.State())
	assert.Contains(t, strings.Join(f.rec.snapshot().logs, "\n"), "running already")
}

func TestClientExitDrainsBeforeExitApp(t *testing.T) {
	f := newClientFixture(t, nil)
	peer := f.connect(t)

	var sentAtExit atomic.Int32
	f.rec.mu.Lock()
	f.rec.onExit = func() { sentAtExit.Store(int32(len(peer.packets()))) }
	f.rec.mu.Unlock()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.client.Enqueue(&protocol.PlayerRotation{Rotation: float32(i)}, protocol.ReliableOrdered))
	}
	f.client.Exit()

	f.pump(t, func() bool { return f.rec.snapshot().exits == 1 })
	assert.Equal(t, int32(3), sentAtExit.Load())
	assert.True(t, peer.isDisconnected())

	lost := f.rec.lost()
	require.Len(t, lost, 1)
	assert.Equal(t, ReasonUserExit, lost[0].Reason)
	assert.Zero(t, f.rec.snapshot().menus)

	f.pump(t, func() bool { return !f.client.Running() })
	assert.Equal(t, lifecycle.Closed, f.client.State())
	assert.True(t, f.host.closed.Load())
	assert.Positive(t, f.host.flushs.Load())
}

func TestClientUserDisconnect(t *testing.T) {
	f := newClientFixture(t, nil)
	peer := f.connect(t)

	f.client.Disconnect()
	f.pump(t, func() bool { return !f.client.Running() })

	assert.True(t, peer.isDisconnected())
	assert.Equal(t, lifecycle.Closed, f.client.State())
	snap := f.rec.snapshot()
	assert.Zero(t, snap.menus)
	assert.Zero(t, snap.exits)
	lost := f.rec.lost()
	require.Len(t, lost, 1)
	assert.Equal(t, ReasonUserDisconnect, lost[0].Reason)
	assert.True(t, f.client.Bridge().Idle())
}

func TestClientDisconnectWithoutAcknowledgment(t *testing.T) {
	f := newClientFixture(t, func(h *fakeHost) { h.silent = true })
	f.connect(t)

	start := time.Now()
	f.client.Disconnect()
	f.pump(t, func() bool { return !f.client.Running() })
	assert.GreaterOrEqual(t, time.Since(start), disconnectWait)
	assert.Equal(t, lifecycle.Closed, f.client.State())
}

func TestClientRemoteDisconnectLoadsMainMenu(t *testing.T) {
	var disconnected atomic.Bool
	f := newClientFixtureWithHooks(t, nil, Hooks{
		OnDisconnect: func(transport.Peer) { disconnected.Store(true) },
	})
	peer := f.connect(t)
	f.host.push(transport.Event{Type: transport.EventDisconnect, Peer: peer})

	f.pump(t, func() bool { return f.rec.snapshot().menus == 1 })
	lost := f.rec.lost()
	require.Len(t, lost, 1)
	assert.Equal(t, ReasonRemoteDisconnect, lost[0].Reason)
	assert.True(t, disconnected.Load())

	f.pump(t, func() bool { return !f.client.Running() })
	assert.Equal(t, lifecycle.Closed, f.client.State())
}

func TestClientTimeoutLoadsMainMenu(t *testing.T) {
	var timedOut atomic.Bool
	f := newClientFixtureWithHooks(t, nil, Hooks{
		OnTimeout: func(transport.Peer) { timedOut.Store(true) },
	})
	peer := f.connect(t)
	f.host.push(transport.Event{Type: transport.EventTimeout, Peer: peer, Err: transport.ErrTimeout})

	f.pump(t, func() bool { return f.rec.snapshot().menus == 1 })
	assert.True(t, timedOut.Load())
	lost := f.rec.lost()
	require.Len(t, lost, 1)
	assert.Equal(t, ReasonTimeout, lost[0].Reason)
	// The transport already dropped the peer.
	assert.False(t, peer.isDisconnected())
}

func TestClientFailedConnectLoadsMainMenu(t *testing.T) {
	f := newClientFixture(t, func(h *fakeHost) { h.autoConnect = false })
	require.NoError(t, f.client.Connect("127.0.0.1", 25565))

	f.host.push(transport.Event{Type: transport.EventDisconnect, Peer: f.host.peer(0), Err: errors.New("refused")})

	f.pump(t, func() bool { return !f.client.Running() })
	assert.Equal(t, 1, f.rec.snapshot().menus)
	lost := f.rec.lost()
	require.Len(t, lost, 1)
	assert.Equal(t, ReasonConnectFailed, lost[0].Reason)
}

func TestClientReconnectAfterClose(t *testing.T) {
	f := newClientFixture(t, nil)
	f.connect(t)
	f.client.Disconnect()
	f.pump(t, func() bool { return !f.client.Running() })

	f.host.peer(0).mu.Lock()
	f.host.peer(0).disconnected = false
	f.host.peer(0).mu.Unlock()

	f.connect(t)
	assert.Equal(t, int32(2), f.created.Load())
}

func TestClientExitWithoutWorker(t *testing.T) {
	f := newClientFixture(t, nil)
	f.client.Exit()
	f.client.Update()
	assert.Equal(t, 1, f.rec.snapshot().exits)
}

func TestClientFactoryError(t *testing.T) {
	boom := errors.New("no sockets")
	c := NewClient(&recorder{}, func() (transport.ClientHost, error) { return nil, boom }, Options{Log: quietLogger()})
	assert.ErrorIs(t, c.Connect("127.0.0.1", 1), boom)
	assert.False(t, c.Running())
	assert.Equal(t, lifecycle.Closed, c.State())
}

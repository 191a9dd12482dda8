package game

import (
	"testing"

	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistriesCoverEveryOpcode(t *testing.T) {
	srv, err := NewServerRegistry()
	require.NoError(t, err)
	assert.Equal(t, []protocol.Opcode{protocol.OpJoin, protocol.OpPlayerRotation}, srv.Opcodes())

	cli, err := NewClientRegistry()
	require.NoError(t, err)
	assert.Equal(t, []protocol.Opcode{protocol.OpWelcome, protocol.OpRotationSnapshot}, cli.Opcodes())
}

func TestDuplicateEntryFailsFast(t *testing.T) {
	entries := append(ServerEntries(), ServerEntries()[0])
	_, err := registry.New(entries...)
	assert.ErrorIs(t, err, registry.ErrDuplicateOpcode)
	assert.Panics(t, func() { registry.MustNew(entries...) })
}

type sent struct {
	peer uint16
	msg  protocol.Message
}

func dispatchServer(t *testing.T, world *World, peer uint16, msg protocol.Message) ([]sent, error) {
	t.Helper()
	reg, err := NewServerRegistry()
	require.NoError(t, err)

	var out []sent
	bound := reg.BindPeer(func(p uint16) *ServerContext {
		return &ServerContext{World: world, Peer: p, Send: func(to uint16, m protocol.Message, _ protocol.Delivery) error {
			out = append(out, sent{peer: to, msg: m})
			return nil
		}}
	})

	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	op, rd, err := protocol.Decode(data)
	require.NoError(t, err)
	return out, bound.Dispatch(peer, op, rd)
}

func TestJoinWelcomesSender(t *testing.T) {
	world := NewWorld()
	out, err := dispatchServer(t, world, 3, &protocol.Join{Name: "ana"})
	require.NoError(t, err)

	p, ok := world.Player(3)
	require.True(t, ok)
	assert.Equal(t, "ana", p.Name)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(3), out[0].peer)
	assert.Equal(t, &protocol.Welcome{PlayerID: 3}, out[0].msg)
}

func TestRotationRoundedOnTheWire(t *testing.T) {
	world := NewWorld()
	world.Join(1, "bo")

	_, err := dispatchServer(t, world, 1, &protocol.PlayerRotation{Rotation: 47.36})
	require.NoError(t, err)
	p, _ := world.Player(1)
	assert.Equal(t, float32(47.4), p.Rotation)
}

func TestRotationFromUnknownPlayer(t *testing.T) {
	_, err := dispatchServer(t, NewWorld(), 5, &protocol.PlayerRotation{Rotation: 1})
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestWorldSnapshotOrdered(t *testing.T) {
	w := NewWorld()
	w.Join(4, "d")
	w.Join(1, "a")
	require.NoError(t, w.SetRotation(4, 90))
	w.Leave(2)

	snap := w.Snapshot()
	assert.Equal(t, []protocol.RotationEntry{{PlayerID: 1}, {PlayerID: 4, Rotation: 90}}, snap.Entries)

	w.Leave(1)
	assert.Equal(t, 1, w.Len())
}

func TestClientHandlersUpdateView(t *testing.T) {
	reg, err := NewClientRegistry()
	require.NoError(t, err)
	view := NewView()
	bound := reg.Bind(&ClientContext{View: view})

	for _, msg := range []protocol.Message{
		&protocol.Welcome{PlayerID: 2},
		&protocol.RotationSnapshot{Entries: []protocol.RotationEntry{{PlayerID: 2, Rotation: 12.5}}},
	} {
		data, err := protocol.Encode(msg)
		require.NoError(t, err)
		op, rd, err := protocol.Decode(data)
		require.NoError(t, err)
		require.NoError(t, bound.Dispatch(op, rd))
	}

	id, ok := view.PlayerID()
	assert.True(t, ok)
	assert.Equal(t, uint16(2), id)
	rot, ok := view.Rotation(2)
	assert.True(t, ok)
	assert.Equal(t, float32(12.5), rot)

	view.reset()
	_, ok = view.PlayerID()
	assert.False(t, ok)
}

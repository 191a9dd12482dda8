package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netbridge/internal/protocol"
)

type table struct {
	rotations map[uint16]float32
	calls     int
}

type rotationHandler struct {
	msg  protocol.PlayerRotation
	peer uint16
}

func (h *rotationHandler) Read(r *protocol.Reader) error { return h.msg.Read(r) }

func (h *rotationHandler) Handle(ctx *table) error {
	ctx.calls++
	ctx.rotations[h.peer] = h.msg.Rotation
	return nil
}

type failingHandler struct{}

func (failingHandler) Read(*protocol.Reader) error { return nil }
func (failingHandler) Handle(*table) error         { return errors.New("boom") }

func rotationEntry() Entry[*table] {
	return Entry[*table]{
		Opcode: protocol.OpPlayerRotation,
		New:    func() Handler[*table] { return &rotationHandler{} },
	}
}

func newTable() *table { return &table{rotations: map[uint16]float32{}} }

func TestNewRejectsDuplicateOpcode(t *testing.T) {
	_, err := New(rotationEntry(), rotationEntry())
	assert.ErrorIs(t, err, ErrDuplicateOpcode)

	assert.Panics(t, func() { MustNew(rotationEntry(), rotationEntry()) })
}

func TestNewRejectsNilConstructor(t *testing.T) {
	_, err := New(Entry[*table]{Opcode: protocol.OpJoin})
	assert.ErrorIs(t, err, ErrNilConstructor)
}

func TestRequireReportsMissing(t *testing.T) {
	r := MustNew(rotationEntry())
	assert.NoError(t, r.Require(protocol.OpPlayerRotation))

	err := r.Require(protocol.OpPlayerRotation, protocol.OpJoin)
	assert.ErrorIs(t, err, ErrMissingHandler)
	assert.Contains(t, err.Error(), "Join")
}

func TestDispatchDecodesThenHandles(t *testing.T) {
	r := MustNew(rotationEntry())
	tbl := newTable()

	data, err := protocol.Encode(&protocol.PlayerRotation{Rotation: 47.36})
	require.NoError(t, err)
	op, rd, err := protocol.Decode(data)
	require.NoError(t, err)

	require.NoError(t, r.Dispatch(tbl, op, rd))
	assert.Equal(t, 1, tbl.calls)
	assert.Equal(t, float32(47.4), tbl.rotations[0])
}

func TestDispatchUnknownOpcodeIsNoop(t *testing.T) {
	r := MustNew(rotationEntry())
	tbl := newTable()

	err := r.Dispatch(tbl, protocol.OpWelcome, protocol.NewReader(nil))
	assert.ErrorIs(t, err, ErrUnknownOpcode)
	assert.Zero(t, tbl.calls)
}

func TestDispatchDecodeErrorSkipsHandle(t *testing.T) {
	r := MustNew(rotationEntry())
	tbl := newTable()

	err := r.Dispatch(tbl, protocol.OpPlayerRotation, protocol.NewReader([]byte{0x01}))
	assert.ErrorIs(t, err, protocol.ErrShortBuffer)
	assert.Zero(t, tbl.calls)
}

func TestDispatchWrapsHandlerError(t *testing.T) {
	r := MustNew(Entry[*table]{
		Opcode: protocol.OpJoin,
		New:    func() Handler[*table] { return failingHandler{} },
	})
	err := r.Dispatch(newTable(), protocol.OpJoin, protocol.NewReader(nil))
	assert.EqualError(t, err, "handle Join: boom")
}

func TestBindPeerBuildsContextPerPacket(t *testing.T) {
	tbl := newTable()
	r := MustNew(Entry[*table]{
		Opcode: protocol.OpPlayerRotation,
		New:    func() Handler[*table] { return &rotationHandler{} },
	})

	var peers []uint16
	bound := r.BindPeer(func(peer uint16) *table {
		peers = append(peers, peer)
		return tbl
	})

	data, _ := protocol.Encode(&protocol.PlayerRotation{Rotation: 1})
	_, rd, _ := protocol.Decode(data)
	require.NoError(t, bound.Dispatch(9, protocol.OpPlayerRotation, rd))
	assert.Equal(t, []uint16{9}, peers)
}

func TestOpcodesSorted(t *testing.T) {
	r := MustNew(
		Entry[*table]{Opcode: protocol.OpPlayerRotation, New: func() Handler[*table] { return &rotationHandler{} }},
		Entry[*table]{Opcode: protocol.OpJoin, New: func() Handler[*table] { return failingHandler{} }},
	)
	assert.Equal(t, []protocol.Opcode{protocol.OpJoin, protocol.OpPlayerRotation}, r.Opcodes())
	assert.True(t, r.Has(protocol.OpJoin))
	assert.False(t, r.Has(protocol.OpWelcome))
}

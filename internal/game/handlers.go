package game

import (
	"github.com/1ureka/netbridge/internal/protocol"
	"github.com/1ureka/netbridge/internal/registry"
)

// ServerContext is what server handlers may touch for one packet.
type ServerContext struct {
	World *World
	Peer  uint16
	Send  func(peer uint16, msg protocol.Message, delivery protocol.Delivery) error
}

// ClientContext is what client handlers may touch.
type ClientContext struct {
	View *View
}

// ServerEntries is the server's opcode table.
func ServerEntries() []registry.Entry[*ServerContext] {
	return []registry.Entry[*ServerContext]{
		{Opcode: protocol.OpJoin, New: func() registry.Handler[*ServerContext] { return &joinHandler{} }},
		{Opcode: protocol.OpPlayerRotation, New: func() registry.Handler[*ServerContext] { return &rotationHandler{} }},
	}
}

// ClientEntries is the client's opcode table.
func ClientEntries() []registry.Entry[*ClientContext] {
	return []registry.Entry[*ClientContext]{
		{Opcode: protocol.OpWelcome, New: func() registry.Handler[*ClientContext] { return &welcomeHandler{} }},
		{Opcode: protocol.OpRotationSnapshot, New: func() registry.Handler[*ClientContext] { return &snapshotHandler{} }},
	}
}

// NewServerRegistry builds the server table and checks every client →
// server opcode is handled.
func NewServerRegistry() (*registry.Registry[*ServerContext], error) {
	r, err := registry.New(ServerEntries()...)
	if err != nil {
		return nil, err
	}
	if err := r.Require(protocol.OpJoin, protocol.OpPlayerRotation); err != nil {
		return nil, err
	}
	return r, nil
}

// NewClientRegistry builds the client table and checks every server →
// client opcode is handled.
func NewClientRegistry() (*registry.Registry[*ClientContext], error) {
	r, err := registry.New(ClientEntries()...)
	if err != nil {
		return nil, err
	}
	if err := r.Require(protocol.OpWelcome, protocol.OpRotationSnapshot); err != nil {
		return nil, err
	}
	return r, nil
}

// joinHandler registers the sender and tells it its player ID.
type joinHandler struct {
	msg protocol.Join
}

func (h *joinHandler) Read(r *protocol.Reader) error { return h.msg.Read(r) }

func (h *joinHandler) Handle(ctx *ServerContext) error {
	ctx.World.Join(ctx.Peer, h.msg.Name)
	return ctx.Send(ctx.Peer, &protocol.Welcome{PlayerID: ctx.Peer}, protocol.ReliableOrdered)
}

type rotationHandler struct {
	msg protocol.PlayerRotation
}

func (h *rotationHandler) Read(r *protocol.Reader) error { return h.msg.Read(r) }

func (h *rotationHandler) Handle(ctx *ServerContext) error {
	return ctx.World.SetRotation(ctx.Peer, h.msg.Rotation)
}

type welcomeHandler struct {
	msg protocol.Welcome
}

func (h *welcomeHandler) Read(r *protocol.Reader) error { return h.msg.Read(r) }

func (h *welcomeHandler) Handle(ctx *ClientContext) error {
	ctx.View.welcome(h.msg.PlayerID)
	return nil
}

type snapshotHandler struct {
	msg protocol.RotationSnapshot
}

func (h *snapshotHandler) Read(r *protocol.Reader) error { return h.msg.Read(r) }

func (h *snapshotHandler) Handle(ctx *ClientContext) error {
	ctx.View.apply(&h.msg)
	return nil
}

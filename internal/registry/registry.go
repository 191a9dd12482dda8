// Package registry maps packet opcodes to the handlers that decode and
// execute them on the simulation goroutine.
//
// A registry is built once at startup from an explicit table and never
// changes afterwards, so it can be read without locking.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/1ureka/netbridge/internal/protocol"
)

var (
	ErrDuplicateOpcode = errors.New("opcode registered twice")
	ErrMissingHandler  = errors.New("no handler registered")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrNilConstructor  = errors.New("nil handler constructor")
)

// Handler decodes one packet and then acts on it with the simulation-side
// context C.
type Handler[C any] interface {
	Read(r *protocol.Reader) error
	Handle(ctx C) error
}

// Entry binds an opcode to a handler constructor. A fresh handler is built
// for every packet, so handlers may keep decoded fields without sharing.
type Entry[C any] struct {
	Opcode protocol.Opcode
	New    func() Handler[C]
}

// Registry is an immutable opcode → handler table.
type Registry[C any] struct {
	entries map[protocol.Opcode]func() Handler[C]
}

// New builds a registry from entries, rejecting duplicates and nil
// constructors.
func New[C any](entries ...Entry[C]) (*Registry[C], error) {
	r := &Registry[C]{entries: make(map[protocol.Opcode]func() Handler[C], len(entries))}
	for _, e := range entries {
		if e.New == nil {
			return nil, fmt.Errorf("%s: %w", e.Opcode, ErrNilConstructor)
		}
		if _, exists := r.entries[e.Opcode]; exists {
			return nil, fmt.Errorf("%s: %w", e.Opcode, ErrDuplicateOpcode)
		}
		r.entries[e.Opcode] = e.New
	}
	return r, nil
}

// MustNew is New for startup tables; it panics on an invalid table.
func MustNew[C any](entries ...Entry[C]) *Registry[C] {
	r, err := New(entries...)
	if err != nil {
		panic("registry: " + err.Error())
	}
	return r
}

// Require reports every opcode in ops that has no handler.
func (r *Registry[C]) Require(ops ...protocol.Opcode) error {
	var errs []error
	for _, op := range ops {
		if _, ok := r.entries[op]; !ok {
			errs = append(errs, fmt.Errorf("%s: %w", op, ErrMissingHandler))
		}
	}
	return errors.Join(errs...)
}

// Has reports whether op has a handler.
func (r *Registry[C]) Has(op protocol.Opcode) bool {
	_, ok := r.entries[op]
	return ok
}

// Opcodes returns the registered opcodes in ascending order.
func (r *Registry[C]) Opcodes() []protocol.Opcode {
	ops := make([]protocol.Opcode, 0, len(r.entries))
	for op := range r.entries {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Dispatch decodes the packet with op's handler and executes it with ctx.
// An unregistered opcode returns ErrUnknownOpcode without side effects.
func (r *Registry[C]) Dispatch(ctx C, op protocol.Opcode, rd *protocol.Reader) error {
	newHandler, ok := r.entries[op]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrUnknownOpcode)
	}

	h := newHandler()
	if err := h.Read(rd); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	if err := h.Handle(ctx); err != nil {
		return fmt.Errorf("handle %s: %w", op, err)
	}
	return nil
}

// Bound is a registry paired with a fixed context.
type Bound[C any] struct {
	reg *Registry[C]
	ctx C
}

// Bind fixes the context passed to every handler.
func (r *Registry[C]) Bind(ctx C) *Bound[C] {
	return &Bound[C]{reg: r, ctx: ctx}
}

func (b *Bound[C]) Dispatch(op protocol.Opcode, rd *protocol.Reader) error {
	return b.reg.Dispatch(b.ctx, op, rd)
}

// PeerBound builds a context per packet from the sending peer's ID.
type PeerBound[C any] struct {
	reg     *Registry[C]
	context func(peer uint16) C
}

// BindPeer derives the handler context from the peer the packet came from.
func (r *Registry[C]) BindPeer(context func(peer uint16) C) *PeerBound[C] {
	return &PeerBound[C]{reg: r, context: context}
}

func (b *PeerBound[C]) Dispatch(peer uint16, op protocol.Opcode, rd *protocol.Reader) error {
	return b.reg.Dispatch(b.context(peer), op, rd)
}

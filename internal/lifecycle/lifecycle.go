// Package lifecycle is the connection state machine shared by the client
// worker and every server-side peer record.
package lifecycle

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// State is a connection lifecycle state.
type State int32

const (
	Idle State = iota
	Connecting
	Connected
	Disconnecting
	TimingOut
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case TimingOut:
		return "timing-out"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Active reports whether a worker holding this state owns a live transport.
func (s State) Active() bool {
	return s == Connecting || s == Connected
}

var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State][]State{
	Idle:          {Connecting},
	Connecting:    {Connected, Disconnecting, TimingOut, Closed},
	Connected:     {Disconnecting, TimingOut, Closed},
	Disconnecting: {Closed},
	TimingOut:     {Closed},
	Closed:        {Connecting, Idle},
}

// CanTransition reports whether from → to is a valid edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine holds one connection's state. It may be read from any goroutine;
// transitions are made by the owning worker.
type Machine struct {
	state atomic.Int32
}

// NewMachine returns a machine in Idle.
func NewMachine() *Machine {
	return &Machine{}
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Transition moves to the target state if the edge is valid.
func (m *Machine) Transition(to State) error {
	for {
		from := m.State()
		if !CanTransition(from, to) {
			return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
		}
		if m.state.CompareAndSwap(int32(from), int32(to)) {
			return nil
		}
	}
}

// Close moves any state to Closed, passing through no intermediate state.
// Closing an already closed machine is a no-op.
func (m *Machine) Close() {
	m.state.Store(int32(Closed))
}

// Package game holds the illustrative packet handlers and the simulation
// state they act on: a server-side player table and the client's view of
// it.
package game

import (
	"errors"
	"sort"
	"sync"

	"github.com/1ureka/netbridge/internal/protocol"
)

var ErrUnknownPlayer = errors.New("unknown player")

// Player is one joined peer.
type Player struct {
	ID       uint16
	Name     string
	Rotation float32
}

// World is the server's player table, keyed by peer slot.
type World struct {
	mu      sync.RWMutex
	players map[uint16]*Player
}

func NewWorld() *World {
	return &World{players: make(map[uint16]*Player)}
}

// Join adds or renames the player in slot id.
func (w *World) Join(id uint16, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.players[id]; ok {
		p.Name = name
		return
	}
	w.players[id] = &Player{ID: id, Name: name}
}

func (w *World) Leave(id uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.players, id)
}

func (w *World) SetRotation(id uint16, rotation float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.players[id]
	if !ok {
		return ErrUnknownPlayer
	}
	p.Rotation = rotation
	return nil
}

func (w *World) Player(id uint16) (Player, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.players)
}

// Snapshot lists every player's rotation in slot order.
func (w *World) Snapshot() *protocol.RotationSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap := &protocol.RotationSnapshot{Entries: make([]protocol.RotationEntry, 0, len(w.players))}
	for _, p := range w.players {
		snap.Entries = append(snap.Entries, protocol.RotationEntry{PlayerID: p.ID, Rotation: p.Rotation})
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].PlayerID < snap.Entries[j].PlayerID })
	return snap
}

// View is the client's copy of the world as last reported by the server.
type View struct {
	mu        sync.RWMutex
	playerID  uint16
	welcomed  bool
	rotations map[uint16]float32
}

func NewView() *View {
	return &View{rotations: make(map[uint16]float32)}
}

// PlayerID returns the ID the server assigned, once welcomed.
func (v *View) PlayerID() (uint16, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.playerID, v.welcomed
}

func (v *View) Rotation(id uint16) (float32, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.rotations[id]
	return r, ok
}

func (v *View) welcome(id uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playerID = id
	v.welcomed = true
}

func (v *View) apply(snap *protocol.RotationSnapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	clear(v.rotations)
	for _, e := range snap.Entries {
		v.rotations[e.PlayerID] = e.Rotation
	}
}

func (v *View) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.welcomed = false
	v.playerID = 0
	clear(v.rotations)
}

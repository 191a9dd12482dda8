package protocol

import "unicode/utf8"

// MaxNameLength bounds the player name carried by Join.
const MaxNameLength = 32

// Join announces the connecting player's display name.
type Join struct {
	Name string
}

func (*Join) Opcode() Opcode { return OpJoin }

func (m *Join) Write(w *Writer) error {
	return w.WriteString(truncateName(m.Name))
}

// truncateName cuts name to MaxNameLength bytes without splitting a rune.
func truncateName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}
	n := MaxNameLength
	for n > 0 && !utf8.RuneStart(name[n]) {
		n--
	}
	return name[:n]
}

func (m *Join) Read(r *Reader) error {
	name, err := r.ReadString()
	if err != nil {
		return err
	}
	m.Name = name
	return nil
}

// PlayerRotation carries the local player's rotation. The value is rounded
// to one decimal on the wire to bound bandwidth.
type PlayerRotation struct {
	Rotation float32
}

func (*PlayerRotation) Opcode() Opcode { return OpPlayerRotation }

func (m *PlayerRotation) Write(w *Writer) error {
	return w.WriteFloat32(Round1(m.Rotation))
}

func (m *PlayerRotation) Read(r *Reader) error {
	v, err := r.ReadFloat32()
	if err != nil {
		return err
	}
	m.Rotation = v
	return nil
}

// Welcome tells a client which player slot the server assigned to it.
type Welcome struct {
	PlayerID uint16
}

func (*Welcome) Opcode() Opcode { return OpWelcome }

func (m *Welcome) Write(w *Writer) error { return w.WriteUint16(m.PlayerID) }

func (m *Welcome) Read(r *Reader) error {
	id, err := r.ReadUint16()
	if err != nil {
		return err
	}
	m.PlayerID = id
	return nil
}

// RotationEntry is one player's rotation inside a snapshot.
type RotationEntry struct {
	PlayerID uint16
	Rotation float32
}

// RotationSnapshot is broadcast by the server on every tick.
type RotationSnapshot struct {
	Entries []RotationEntry
}

func (*RotationSnapshot) Opcode() Opcode { return OpRotationSnapshot }

func (m *RotationSnapshot) Write(w *Writer) error {
	if err := w.WriteUint16(uint16(len(m.Entries))); err != nil {
		return err
	}
	for _, e := range m.Entries {
		if err := w.WriteUint16(e.PlayerID); err != nil {
			return err
		}
		if err := w.WriteFloat32(Round1(e.Rotation)); err != nil {
			return err
		}
	}
	return nil
}

// entrySize is the encoded size of one RotationEntry.
const entrySize = 2 + 4

func (m *RotationSnapshot) Read(r *Reader) error {
	n, err := r.ReadUint16()
	if err != nil {
		return err
	}
	if int(n)*entrySize > r.Remaining() {
		return ErrShortBuffer
	}
	entries := make([]RotationEntry, n)
	for i := range entries {
		if entries[i].PlayerID, err = r.ReadUint16(); err != nil {
			return err
		}
		if entries[i].Rotation, err = r.ReadFloat32(); err != nil {
			return err
		}
	}
	m.Entries = entries
	return nil
}

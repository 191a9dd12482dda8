// Package protocol defines the wire format shared by client and server: a
// one-byte opcode followed by opcode-defined payload fields.
package protocol

import "fmt"

// Opcode identifies a packet's type and, on the receiving side, its handler.
type Opcode uint8

// Client → server opcodes.
const (
	OpJoin           Opcode = 0x01 // Player name announcement
	OpPlayerRotation Opcode = 0x02 // Local player rotation update
)

// Server → client opcodes.
const (
	OpWelcome          Opcode = 0x81 // Assigned player ID
	OpRotationSnapshot Opcode = 0x82 // Rotations of every known player
)

// MaxSize is the largest packet, opcode included, either side will accept.
const MaxSize = 8192

// HeaderSize is the fixed header size: Opcode(1).
const HeaderSize = 1

func (op Opcode) String() string {
	switch op {
	case OpJoin:
		return "Join"
	case OpPlayerRotation:
		return "PlayerRotation"
	case OpWelcome:
		return "Welcome"
	case OpRotationSnapshot:
		return "RotationSnapshot"
	}
	return fmt.Sprintf("Opcode(0x%02x)", uint8(op))
}

// Delivery selects how the transport ships a packet.
type Delivery uint8

const (
	ReliableOrdered Delivery = iota // Default channel; retransmitted, in order
	Unreliable                      // May be dropped or reordered
)

func (d Delivery) String() string {
	if d == Unreliable {
		return "unreliable"
	}
	return "reliable"
}

// Message is a typed packet body. Write and Read must visit fields in the
// same fixed order.
type Message interface {
	Opcode() Opcode
	Write(w *Writer) error
	Read(r *Reader) error
}

// Outbound is an encoded packet waiting to be sent. It is immutable once
// built; the producer hands it to a queue and the worker owns it afterwards.
type Outbound struct {
	Opcode   Opcode
	Payload  []byte // Fields only, without the opcode byte
	Delivery Delivery
}

// NewOutbound encodes msg for transmission with the given delivery mode.
func NewOutbound(msg Message, delivery Delivery) (Outbound, error) {
	data, err := Encode(msg)
	if err != nil {
		return Outbound{}, err
	}
	return Outbound{Opcode: msg.Opcode(), Payload: data[HeaderSize:], Delivery: delivery}, nil
}

// Bytes returns the wire form of the packet.
func (o Outbound) Bytes() []byte {
	buf := make([]byte, HeaderSize+len(o.Payload))
	buf[0] = byte(o.Opcode)
	copy(buf[HeaderSize:], o.Payload)
	return buf
}

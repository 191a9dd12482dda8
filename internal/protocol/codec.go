package protocol

import (
	"fmt"
	"math"
)

// Encode serializes msg into its wire form: opcode byte then payload fields.
func Encode(msg Message) ([]byte, error) {
	w := NewWriter(msg.Opcode())
	if err := msg.Write(w); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Opcode(), err)
	}
	return w.Bytes(), nil
}

// Decode extracts the opcode and returns a reader positioned at the first
// payload byte. Oversized packets are rejected before any payload parsing.
func Decode(data []byte) (Opcode, *Reader, error) {
	if len(data) > MaxSize {
		return 0, nil, fmt.Errorf("packet of %d bytes, max is %d: %w", len(data), MaxSize, ErrPacketTooLarge)
	}
	if len(data) < HeaderSize {
		return 0, nil, fmt.Errorf("packet of %d bytes (need at least %d): %w", len(data), HeaderSize, ErrPacketTooShort)
	}
	return Opcode(data[0]), NewReader(data[HeaderSize:]), nil
}

// DecodeInto decodes data and reads it into msg, checking the opcode matches.
func DecodeInto(data []byte, msg Message) error {
	op, r, err := Decode(data)
	if err != nil {
		return err
	}
	if op != msg.Opcode() {
		return fmt.Errorf("decode: got opcode %s, want %s", op, msg.Opcode())
	}
	return msg.Read(r)
}

// fractionless is the magnitude at and above which every float32 is an
// integer, so rounding is a no-op.
const fractionless = 1 << 23

// Round1 rounds v to one decimal place, half away from zero.
func Round1(v float32) float32 {
	if math.IsNaN(float64(v)) || math.Abs(float64(v)) >= fractionless {
		return v
	}
	return float32(math.Round(float64(v)*10) / 10)
}

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrPacketTooLarge = errors.New("packet exceeds max size")
	ErrPacketTooShort = errors.New("packet too short")
	ErrShortBuffer    = errors.New("read past end of packet")
	ErrStringTooLong  = errors.New("string too long")
)

// Writer appends fixed-width fields to a packet buffer bounded by MaxSize.
type Writer struct {
	buf []byte
}

// NewWriter starts a packet with the given opcode.
func NewWriter(op Opcode) *Writer {
	buf := make([]byte, HeaderSize, 64)
	buf[0] = byte(op)
	return &Writer{buf: buf}
}

// Bytes returns the packet written so far, opcode included.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the current packet length.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) grow(n int) ([]byte, error) {
	if len(w.buf)+n > MaxSize {
		return nil, fmt.Errorf("writing %d bytes at offset %d: %w", n, len(w.buf), ErrPacketTooLarge)
	}
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[off:], nil
}

func (w *Writer) WriteByte(v byte) error {
	b, err := w.grow(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

func (w *Writer) WriteUint16(v uint16) error {
	b, err := w.grow(2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

func (w *Writer) WriteInt16(v int16) error { return w.WriteUint16(uint16(v)) }

func (w *Writer) WriteUint32(v uint32) error {
	b, err := w.grow(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

func (w *Writer) WriteInt32(v int32) error { return w.WriteUint32(uint32(v)) }

func (w *Writer) WriteInt64(v int64) error {
	b, err := w.grow(8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, uint64(v))
	return nil
}

func (w *Writer) WriteFloat32(v float32) error { return w.WriteUint32(math.Float32bits(v)) }

func (w *Writer) WriteFloat64(v float64) error {
	b, err := w.grow(8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return nil
}

// WriteString writes a uint16 length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%d bytes: %w", len(s), ErrStringTooLong)
	}
	if err := w.WriteUint16(uint16(len(s))); err != nil {
		return err
	}
	b, err := w.grow(len(s))
	if err != nil {
		return err
	}
	copy(b, s)
	return nil
}

// WriteBytes writes a uint16 length prefix followed by p.
func (w *Writer) WriteBytes(p []byte) error { return w.WriteString(string(p)) }

// Reader is a cursor over a received packet. Every read is bounds checked;
// running past the end yields ErrShortBuffer and leaves the cursor in place.
type Reader struct {
	data []byte
	off  int
}

// NewReader wraps a payload. The cursor starts at the first byte of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Len returns the total length of the wrapped buffer.
func (r *Reader) Len() int { return len(r.data) }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.off, r.Remaining(), ErrShortBuffer)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	return string(b), err
}

// ReadBytes reads a uint16 length-prefixed byte slice. The result is a copy.
func (r *Reader) ReadBytes() ([]byte, error) {
	start := r.off
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		r.off = start
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

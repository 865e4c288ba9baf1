// Package binary implements the positional read/write codec that every
// RakNet wire structure is built on: fixed-width integers, booleans,
// byte runs and length-prefixed strings, each with an explicit byte
// order chosen by the caller.
package binary

import (
	"encoding/binary"
	"fmt"
)

// Stream is a growable write buffer / positional read cursor over a
// byte slice. It never infers byte order: every multi-byte primitive
// takes a binary.ByteOrder argument.
type Stream struct {
	data   []byte
	offset int
}

// New wraps an existing buffer for reading. Writes append past the end
// of data, same as NewEmpty.
func New(data []byte) *Stream {
	return &Stream{data: data}
}

// NewEmpty returns a Stream with no backing bytes, ready for writing.
func NewEmpty() *Stream {
	return &Stream{data: make([]byte, 0, 64)}
}

// ErrOutOfBounds is returned by any Read* call that would run past the
// end of the buffer.
var ErrOutOfBounds = fmt.Errorf("binary: read past end of buffer")

// Bytes returns the accumulated buffer.
func (s *Stream) Bytes() []byte { return s.data }

// Offset returns the current read cursor.
func (s *Stream) Offset() int { return s.offset }

// Remaining returns the number of unread bytes.
func (s *Stream) Remaining() int { return len(s.data) - s.offset }

// Reset clears the stream for reuse as a write buffer.
func (s *Stream) Reset() {
	s.data = s.data[:0]
	s.offset = 0
}

func (s *Stream) ReadByte() (byte, error) {
	if s.offset >= len(s.data) {
		return 0, ErrOutOfBounds
	}
	b := s.data[s.offset]
	s.offset++
	return b, nil
}

func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if n < 0 || s.offset+n > len(s.data) {
		return nil, ErrOutOfBounds
	}
	out := make([]byte, n)
	copy(out, s.data[s.offset:s.offset+n])
	s.offset += n
	return out, nil
}

func (s *Stream) ReadBool() (bool, error) {
	b, err := s.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (s *Stream) ReadUint16(order binary.ByteOrder) (uint16, error) {
	b, err := s.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (s *Stream) ReadInt16(order binary.ByteOrder) (int16, error) {
	v, err := s.ReadUint16(order)
	return int16(v), err
}

func (s *Stream) ReadUint32(order binary.ByteOrder) (uint32, error) {
	b, err := s.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (s *Stream) ReadInt32(order binary.ByteOrder) (int32, error) {
	v, err := s.ReadUint32(order)
	return int32(v), err
}

func (s *Stream) ReadUint64(order binary.ByteOrder) (uint64, error) {
	b, err := s.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

func (s *Stream) ReadInt64(order binary.ByteOrder) (int64, error) {
	v, err := s.ReadUint64(order)
	return int64(v), err
}

// ReadUint24 reads a 3-byte unsigned integer, zero-extended into a
// uint32, in the given byte order.
func (s *Stream) ReadUint24(order binary.ByteOrder) (uint32, error) {
	b, err := s.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	if order == binary.LittleEndian {
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
	}
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16, nil
}

// ReadString reads a 16-bit big-endian length-prefixed string.
func (s *Stream) ReadString() (string, error) {
	n, err := s.ReadUint16(binary.BigEndian)
	if err != nil {
		return "", err
	}
	b, err := s.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Stream) WriteByte(b byte) {
	s.data = append(s.data, b)
}

func (s *Stream) WriteBytes(b []byte) {
	s.data = append(s.data, b...)
}

func (s *Stream) WriteBool(v bool) {
	if v {
		s.WriteByte(1)
	} else {
		s.WriteByte(0)
	}
}

func (s *Stream) WriteUint16(v uint16, order binary.ByteOrder) {
	var b [2]byte
	order.PutUint16(b[:], v)
	s.data = append(s.data, b[:]...)
}

func (s *Stream) WriteInt16(v int16, order binary.ByteOrder) {
	s.WriteUint16(uint16(v), order)
}

func (s *Stream) WriteUint32(v uint32, order binary.ByteOrder) {
	var b [4]byte
	order.PutUint32(b[:], v)
	s.data = append(s.data, b[:]...)
}

func (s *Stream) WriteInt32(v int32, order binary.ByteOrder) {
	s.WriteUint32(uint32(v), order)
}

func (s *Stream) WriteUint64(v uint64, order binary.ByteOrder) {
	var b [8]byte
	order.PutUint64(b[:], v)
	s.data = append(s.data, b[:]...)
}

func (s *Stream) WriteInt64(v int64, order binary.ByteOrder) {
	s.WriteUint64(uint64(v), order)
}

// WriteUint24 writes the low 24 bits of v in the given byte order.
func (s *Stream) WriteUint24(v uint32, order binary.ByteOrder) {
	if order == binary.LittleEndian {
		s.data = append(s.data, byte(v), byte(v>>8), byte(v>>16))
		return
	}
	s.data = append(s.data, byte(v>>16), byte(v>>8), byte(v))
}

// WriteString writes a 16-bit big-endian length-prefixed string.
func (s *Stream) WriteString(str string) {
	s.WriteUint16(uint16(len(str)), binary.BigEndian)
	s.data = append(s.data, str...)
}

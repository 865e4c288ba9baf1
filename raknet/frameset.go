package raknet

import (
	"encoding/binary"

	rbinary "raknetclient/binary"
)

// FrameSet is the envelope carrying one datagram's worth of Frames
// under a 24-bit sequence number (spec.md §3, §4.4).
type FrameSet struct {
	Sequence uint32
	Frames   []*Frame
}

// Write encodes the FrameSet: a FrameSet ID byte, the little-endian
// 24-bit sequence, then each Frame concatenated.
func (fs *FrameSet) Write(s *rbinary.Stream) {
	s.WriteByte(FrameSetIDFirst)
	s.WriteUint24(fs.Sequence, binary.LittleEndian)
	for _, f := range fs.Frames {
		f.Write(s)
	}
}

// Encode is a convenience wrapper returning the serialized bytes.
func (fs *FrameSet) Encode() []byte {
	s := rbinary.NewEmpty()
	fs.Write(s)
	return s.Bytes()
}

// DecodeFrameSet parses a FrameSet from buf. buf[0] must satisfy
// IsFrameSetID (any byte with upper nibble 0x8); the receiver does not
// look at the low nibble. Frames are read until the buffer is
// exhausted — a zero-length payload Frame is valid and does not
// terminate the loop early (spec.md §9).
func DecodeFrameSet(buf []byte) (*FrameSet, error) {
	s := rbinary.New(buf)
	id, err := s.ReadByte()
	if err != nil {
		return nil, newError(CodecOutOfBounds, "frameset id", err)
	}
	if !IsFrameSetID(id) {
		return nil, newError(InvalidPacket, "not a frameset", nil)
	}

	seq, err := s.ReadUint24(binary.LittleEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "frameset sequence", err)
	}

	fs := &FrameSet{Sequence: seq}
	for s.Remaining() > 0 {
		f, err := ReadFrame(s)
		if err != nil {
			return nil, err
		}
		fs.Frames = append(fs.Frames, f)
	}
	return fs, nil
}

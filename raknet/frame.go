package raknet

import (
	"encoding/binary"
	"math"

	rbinary "raknetclient/binary"
)

// splitFlag marks a Frame header byte as carrying split-fragment
// metadata (spec.md §4.3).
const splitFlag byte = 0x10

// Frame is one unit of user payload or payload fragment, exactly
// spec.md §3's Frame record.
type Frame struct {
	Reliability Reliability

	// ReliableFrameIndex is present iff Reliability.IsReliable().
	ReliableFrameIndex uint32
	HasReliableIndex   bool

	// SequenceFrameIndex is present iff Reliability.IsSequenced().
	SequenceFrameIndex uint32
	HasSequenceIndex   bool

	// OrderedFrameIndex/OrderChannel are present iff Reliability.IsOrdered().
	OrderedFrameIndex uint32
	OrderChannel      uint8
	HasOrderIndex     bool

	// Split fragment metadata; all three are present together iff Split.
	Split           bool
	SplitID         uint16
	SplitFrameIndex uint32
	SplitSize       uint32

	Payload []byte
}

// Size returns the authoritative wire size of the frame, per spec.md
// §4.6.1: 3 header/length bytes + payload + optional index fields.
func (f *Frame) Size() int {
	size := 3 + len(f.Payload)
	if f.Reliability.IsReliable() {
		size += 3
	}
	if f.Reliability.IsSequenced() {
		size += 3
	}
	if f.Reliability.IsOrdered() {
		size += 4
	}
	if f.Split {
		size += 10
	}
	return size
}

// Write encodes the frame onto s per spec.md §4.3: reliability packed
// into the top 3 bits of the header byte, split flag at 0x10, a
// bit-length field, little-endian 24-bit indices, and big-endian split
// metadata.
func (f *Frame) Write(s *rbinary.Stream) {
	header := byte(f.Reliability) << 5
	if f.Split {
		header |= splitFlag
	}
	s.WriteByte(header)
	s.WriteUint16(uint16(len(f.Payload))<<3, binary.BigEndian)

	if f.Reliability.IsReliable() {
		s.WriteUint24(f.ReliableFrameIndex, binary.LittleEndian)
	}
	if f.Reliability.IsSequenced() {
		s.WriteUint24(f.SequenceFrameIndex, binary.LittleEndian)
	}
	if f.Reliability.IsOrdered() {
		s.WriteUint24(f.OrderedFrameIndex, binary.LittleEndian)
		s.WriteByte(f.OrderChannel)
	}
	if f.Split {
		s.WriteUint32(f.SplitSize, binary.BigEndian)
		s.WriteUint16(f.SplitID, binary.BigEndian)
		s.WriteUint32(f.SplitFrameIndex, binary.BigEndian)
	}
	s.WriteBytes(f.Payload)
}

// ReadFrame decodes one frame from s. A zero-length payload is a legal
// heartbeat-like frame (spec.md §9) and is not treated as end-of-buffer.
func ReadFrame(s *rbinary.Stream) (*Frame, error) {
	header, err := s.ReadByte()
	if err != nil {
		return nil, newError(CodecOutOfBounds, "frame header", err)
	}

	f := &Frame{
		Reliability: Reliability((header >> 5) & 0x07),
		Split:       header&splitFlag != 0,
	}

	bits, err := s.ReadUint16(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "frame length", err)
	}
	length := int(math.Ceil(float64(bits) / 8))

	if f.Reliability.IsReliable() {
		idx, err := s.ReadUint24(binary.LittleEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "frame reliable index", err)
		}
		f.ReliableFrameIndex = idx
		f.HasReliableIndex = true
	}
	if f.Reliability.IsSequenced() {
		idx, err := s.ReadUint24(binary.LittleEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "frame sequence index", err)
		}
		f.SequenceFrameIndex = idx
		f.HasSequenceIndex = true
	}
	if f.Reliability.IsOrdered() {
		idx, err := s.ReadUint24(binary.LittleEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "frame order index", err)
		}
		channel, err := s.ReadByte()
		if err != nil {
			return nil, newError(CodecOutOfBounds, "frame order channel", err)
		}
		f.OrderedFrameIndex = idx
		f.OrderChannel = channel
		f.HasOrderIndex = true
	}
	if f.Split {
		size, err := s.ReadUint32(binary.BigEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "frame split size", err)
		}
		id, err := s.ReadUint16(binary.BigEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "frame split id", err)
		}
		index, err := s.ReadUint32(binary.BigEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "frame split index", err)
		}
		f.SplitSize = size
		f.SplitID = id
		f.SplitFrameIndex = index
	}

	payload, err := s.ReadBytes(length)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "frame payload", err)
	}
	f.Payload = payload

	return f, nil
}

// Clone returns a value copy of f with an independent payload slice, so
// the Framer can hand out output_backup/output_frames entries safely.
func (f *Frame) Clone() *Frame {
	clone := *f
	clone.Payload = append([]byte(nil), f.Payload...)
	return &clone
}

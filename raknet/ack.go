package raknet

import (
	"encoding/binary"
	"sort"

	rbinary "raknetclient/binary"
)

// Ack is a cumulative acknowledgement of FrameSet sequence numbers.
type Ack struct {
	Sequences []uint32
}

// Nack is a cumulative negative-acknowledgement of FrameSet sequence
// numbers believed lost.
type Nack struct {
	Sequences []uint32
}

// recordSingle/recordRange are the one-byte record-type flags spec.md
// §4.4 defines: 1 for a singleton sequence, 0 for an inclusive range.
const (
	recordRange  byte = 0
	recordSingle byte = 1
)

// writeSequenceList encodes a sorted, deduplicated, run-length-encoded
// list of sequence numbers: a 16-bit big-endian record count, then one
// record per run (singleton or inclusive range), each storing
// little-endian 24-bit sequence numbers.
func writeSequenceList(s *rbinary.Stream, sequences []uint32) {
	if len(sequences) == 0 {
		s.WriteUint16(0, binary.BigEndian)
		return
	}

	sorted := append([]uint32(nil), sequences...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	type run struct{ start, end uint32 }
	var runs []run
	start, end := sorted[0], sorted[0]
	for _, seq := range sorted[1:] {
		if seq == end+1 {
			end = seq
			continue
		}
		if seq == end {
			continue // duplicate, already covered by this run
		}
		runs = append(runs, run{start, end})
		start, end = seq, seq
	}
	runs = append(runs, run{start, end})

	body := rbinary.NewEmpty()
	for _, r := range runs {
		if r.start == r.end {
			body.WriteByte(recordSingle)
			body.WriteUint24(r.start, binary.LittleEndian)
		} else {
			body.WriteByte(recordRange)
			body.WriteUint24(r.start, binary.LittleEndian)
			body.WriteUint24(r.end, binary.LittleEndian)
		}
	}

	s.WriteUint16(uint16(len(runs)), binary.BigEndian)
	s.WriteBytes(body.Bytes())
}

// readSequenceList decodes the run-length-encoded body written by
// writeSequenceList, expanding ranges into individual sequence numbers.
func readSequenceList(s *rbinary.Stream) ([]uint32, error) {
	count, err := s.ReadUint16(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "ack record count", err)
	}

	var sequences []uint32
	for i := uint16(0); i < count; i++ {
		recordType, err := s.ReadByte()
		if err != nil {
			return nil, newError(CodecOutOfBounds, "ack record type", err)
		}
		if recordType == recordSingle {
			seq, err := s.ReadUint24(binary.LittleEndian)
			if err != nil {
				return nil, newError(CodecOutOfBounds, "ack singleton", err)
			}
			sequences = append(sequences, seq)
			continue
		}
		start, err := s.ReadUint24(binary.LittleEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "ack range start", err)
		}
		end, err := s.ReadUint24(binary.LittleEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "ack range end", err)
		}
		for seq := start; seq <= end; seq++ {
			sequences = append(sequences, seq)
		}
	}
	return sequences, nil
}

func (a *Ack) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDAck)
	writeSequenceList(s, a.Sequences)
	return s.Bytes()
}

func DecodeAck(buf []byte) (*Ack, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "ack id", err)
	}
	sequences, err := readSequenceList(s)
	if err != nil {
		return nil, err
	}
	return &Ack{Sequences: sequences}, nil
}

func (n *Nack) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDNack)
	writeSequenceList(s, n.Sequences)
	return s.Bytes()
}

func DecodeNack(buf []byte) (*Nack, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "nack id", err)
	}
	sequences, err := readSequenceList(s)
	if err != nil {
		return nil, err
	}
	return &Nack{Sequences: sequences}, nil
}

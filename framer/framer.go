// Package framer implements the inbound/outbound Frame engine: FrameSet
// dispatch with duplicate and gap detection, ordered holdback,
// fragment reassembly, sequenced newest-wins delivery, MTU-bounded
// outbound batching, and Ack/Nack-driven retransmission.
//
// Grounded on original_source's client-side Framer (the Rust
// implementation this module was translated from), reshaped into the
// teacher repo's mutex-guarded session idiom.
package framer

import (
	"net"
	"sync"

	"raknetclient/logging"
	"raknetclient/raknet"
)

// DefaultMaxOrderingQueueSize bounds how many out-of-order frames a
// single order channel will hold back; once it is reached, further
// out-of-order frames on that channel are dropped.
// Not part of the wire protocol — a local safety valve against a peer
// that advances order indices without ever sending the gap.
const DefaultMaxOrderingQueueSize = 1000

// DefaultMaxFragmentsPerSplit bounds how many fragments a single
// split_id may accumulate, guarding against a bogus SplitSize field
// driving unbounded memory growth.
const DefaultMaxFragmentsPerSplit = 1024

// Recorder receives counters the caller may wire to metrics. All
// methods must tolerate a nil receiver-free no-op implementation; see
// nopRecorder.
type Recorder interface {
	FrameSent()
	FrameReceived()
	FrameRetransmitted()
	FramesAcked(n int)
	DuplicateFrameSetDropped()
	SetBackupQueueDepth(n int)
	SetOrderingQueueDepth(n int)
}

type nopRecorder struct{}

func (nopRecorder) FrameSent()                 {}
func (nopRecorder) FrameReceived()              {}
func (nopRecorder) FrameRetransmitted()         {}
func (nopRecorder) FramesAcked(int)             {}
func (nopRecorder) DuplicateFrameSetDropped()   {}
func (nopRecorder) SetBackupQueueDepth(int)     {}
func (nopRecorder) SetOrderingQueueDepth(int)   {}

const orderChannels = 64

// Framer is a single peer's reliability-transport state machine, bound
// to one remote address over a shared net.PacketConn.
type Framer struct {
	mu sync.Mutex

	conn   net.PacketConn
	remote net.Addr
	mtu    uint16

	log    logging.Logger
	rec    Recorder
	onData func(payload []byte)

	maxOrderingQueueSize int
	maxFragmentsPerSplit int

	lastInputSequence       int64
	receivedFrameSequences  map[uint32]struct{}
	lostFrameSequences      map[uint32]struct{}
	inputHighestSeqIndex    [orderChannels]uint32
	inputOrderIndex         [orderChannels]uint32
	inputOrderingQueue      map[uint8]map[uint32]*raknet.Frame
	fragmentsQueue          map[uint32]map[uint32]*raknet.Frame
	fragmentsExpectedSize   map[uint32]uint32

	outputOrderIndex    [orderChannels]uint32
	outputSequenceIndex [orderChannels]uint32
	outputSplitIndex    uint32
	outputReliableIndex uint32
	outputFrames        []*raknet.Frame
	outputBackup        map[uint32][]*raknet.Frame
	outputSequence      uint32
}

// Option configures a Framer at construction time.
type Option func(*Framer)

func WithLogger(l logging.Logger) Option { return func(f *Framer) { f.log = l } }
func WithRecorder(r Recorder) Option     { return func(f *Framer) { f.rec = r } }

// WithPacketHandler registers the callback invoked for every
// terminally-dispatched application payload (i.e. anything that isn't
// itself an Ack or a Nack, which the Framer consumes itself).
func WithPacketHandler(fn func(payload []byte)) Option {
	return func(f *Framer) { f.onData = fn }
}

func WithOrderingQueueLimit(n int) Option {
	return func(f *Framer) { f.maxOrderingQueueSize = n }
}

func WithFragmentsPerSplitLimit(n int) Option {
	return func(f *Framer) { f.maxFragmentsPerSplit = n }
}

// New builds a Framer that writes to remote over conn, batching
// outbound frames under mtu bytes.
func New(conn net.PacketConn, remote net.Addr, mtu uint16, opts ...Option) *Framer {
	f := &Framer{
		conn:                  conn,
		remote:                remote,
		mtu:                   mtu,
		log:                   logging.Nop(),
		rec:                   nopRecorder{},
		maxOrderingQueueSize:  DefaultMaxOrderingQueueSize,
		maxFragmentsPerSplit:  DefaultMaxFragmentsPerSplit,
		lastInputSequence:     -1,
		receivedFrameSequences: make(map[uint32]struct{}),
		lostFrameSequences:     make(map[uint32]struct{}),
		inputOrderingQueue:     make(map[uint8]map[uint32]*raknet.Frame),
		fragmentsQueue:         make(map[uint32]map[uint32]*raknet.Frame),
		fragmentsExpectedSize:  make(map[uint32]uint32),
		outputBackup:           make(map[uint32][]*raknet.Frame),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetMTU updates the outbound batching budget, used when the handshake
// renegotiates MTU mid-connection attempt.
func (f *Framer) SetMTU(mtu uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mtu = mtu
}

// OnFrameSet is the inbound entry point: decode-and-dispatch a received
// FrameSet, per spec.md §4.5. Duplicate or already-superseded sequence
// numbers are dropped silently; everything else updates the gap tracker
// and dispatches its frames in order.
func (f *Framer) OnFrameSet(fs *raknet.FrameSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.receivedFrameSequences[fs.Sequence]; dup {
		f.rec.DuplicateFrameSetDropped()
		return nil
	}
	delete(f.lostFrameSequences, fs.Sequence)

	seq := int64(fs.Sequence)
	if seq <= f.lastInputSequence {
		f.rec.DuplicateFrameSetDropped()
		return nil
	}

	f.receivedFrameSequences[fs.Sequence] = struct{}{}
	if seq-f.lastInputSequence != 1 {
		for i := f.lastInputSequence + 1; i < seq; i++ {
			if _, ok := f.receivedFrameSequences[uint32(i)]; !ok {
				f.lostFrameSequences[uint32(i)] = struct{}{}
			}
		}
	}
	f.lastInputSequence = seq

	for _, frame := range fs.Frames {
		if err := f.onFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// onFrame routes one decoded frame by reliability/split per spec.md
// §4.5's dispatch order: split, then sequenced, then ordered, then
// terminal delivery. Split must come first — a fragment of a large
// ReliableOrdered payload carries the same OrderedFrameIndex as every
// other fragment of that message, so routing it through onOrderedFrame
// before reassembly would deliver the first fragment alone and advance
// the order channel past the rest. Caller holds f.mu.
func (f *Framer) onFrame(frame *raknet.Frame) error {
	switch {
	case frame.Split:
		return f.onSplitFrame(frame)
	case frame.Reliability.IsSequenced():
		return f.onSequencedFrame(frame)
	case frame.Reliability.IsOrdered():
		return f.onOrderedFrame(frame)
	default:
		return f.deliver(frame)
	}
}

func (f *Framer) onOrderedFrame(frame *raknet.Frame) error {
	channel := frame.OrderChannel
	expected := f.inputOrderIndex[channel]

	if frame.OrderedFrameIndex == expected {
		if err := f.deliver(frame); err != nil {
			return err
		}
		f.inputOrderIndex[channel]++

		queue := f.inputOrderingQueue[channel]
		for {
			next := f.inputOrderIndex[channel]
			held, ok := queue[next]
			if !ok {
				break
			}
			delete(queue, next)
			if err := f.deliver(held); err != nil {
				return err
			}
			f.inputOrderIndex[channel]++
		}
		return nil
	}

	if frame.OrderedFrameIndex > expected {
		queue, ok := f.inputOrderingQueue[channel]
		if !ok {
			queue = make(map[uint32]*raknet.Frame)
			f.inputOrderingQueue[channel] = queue
		}
		if len(queue) >= f.maxOrderingQueueSize {
			f.log.Warnf("framer: order channel %d holdback queue full, dropping frame %d", channel, frame.OrderedFrameIndex)
			f.recordOrderingDepth()
			return nil
		}
		queue[frame.OrderedFrameIndex] = frame
		f.recordOrderingDepth()
		return nil
	}

	// frame.OrderedFrameIndex < expected: a retransmitted duplicate of
	// an already-delivered frame. Discard.
	return nil
}

func (f *Framer) recordOrderingDepth() {
	total := 0
	for _, q := range f.inputOrderingQueue {
		total += len(q)
	}
	f.rec.SetOrderingQueueDepth(total)
}

func (f *Framer) onSplitFrame(frame *raknet.Frame) error {
	if frame.SplitSize == 0 || int(frame.SplitSize) > f.maxFragmentsPerSplit || frame.SplitFrameIndex >= frame.SplitSize {
		f.log.Warnf("framer: rejecting split frame with invalid split size %d / index %d", frame.SplitSize, frame.SplitFrameIndex)
		return nil
	}

	fragments, ok := f.fragmentsQueue[uint32(frame.SplitID)]
	if !ok {
		fragments = make(map[uint32]*raknet.Frame)
		f.fragmentsQueue[uint32(frame.SplitID)] = fragments
		f.fragmentsExpectedSize[uint32(frame.SplitID)] = frame.SplitSize
	}
	fragments[frame.SplitFrameIndex] = frame

	if uint32(len(fragments)) != frame.SplitSize {
		return nil
	}

	totalSize := 0
	for i := uint32(0); i < frame.SplitSize; i++ {
		part, ok := fragments[i]
		if !ok {
			return nil // still missing a fragment, wait for more
		}
		totalSize += len(part.Payload)
	}

	combined := make([]byte, 0, totalSize)
	for i := uint32(0); i < frame.SplitSize; i++ {
		combined = append(combined, fragments[i].Payload...)
	}
	delete(f.fragmentsQueue, uint32(frame.SplitID))
	delete(f.fragmentsExpectedSize, uint32(frame.SplitID))

	reassembled := &raknet.Frame{
		Reliability:        frame.Reliability,
		ReliableFrameIndex: frame.ReliableFrameIndex,
		HasReliableIndex:   frame.HasReliableIndex,
		SequenceFrameIndex: frame.SequenceFrameIndex,
		HasSequenceIndex:   frame.HasSequenceIndex,
		OrderedFrameIndex:  frame.OrderedFrameIndex,
		OrderChannel:       frame.OrderChannel,
		HasOrderIndex:      frame.HasOrderIndex,
		Payload:            combined,
	}
	return f.onFrame(reassembled)
}

func (f *Framer) onSequencedFrame(frame *raknet.Frame) error {
	channel := frame.OrderChannel
	if frame.SequenceFrameIndex > f.inputHighestSeqIndex[channel] {
		f.inputHighestSeqIndex[channel] = frame.SequenceFrameIndex
		return f.deliver(frame)
	}
	return nil
}

// deliver is the terminal step for a fully-reassembled, in-order frame:
// Ack/Nack are consumed by the Framer itself; everything else is handed
// to the caller's packet handler.
func (f *Framer) deliver(frame *raknet.Frame) error {
	f.rec.FrameReceived()
	return f.dispatchPayload(frame.Payload)
}

// HandleBarePacket runs the same Ack/Nack-or-application dispatch as an
// encapsulated Frame's payload, for the id 0xC0/0xA0 datagrams a peer
// may send unwrapped by any FrameSet.
func (f *Framer) HandleBarePacket(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dispatchPayload(payload)
}

func (f *Framer) dispatchPayload(payload []byte) error {
	if len(payload) == 0 {
		if f.onData != nil {
			f.onData(payload)
		}
		return nil
	}

	switch payload[0] {
	case raknet.IDAck:
		ack, err := raknet.DecodeAck(payload)
		if err != nil {
			f.log.Warnf("framer: malformed ack: %v", err)
			return nil
		}
		for _, seq := range ack.Sequences {
			delete(f.outputBackup, seq)
		}
		f.rec.FramesAcked(len(ack.Sequences))
		f.rec.SetBackupQueueDepth(len(f.outputBackup))
	case raknet.IDNack:
		nack, err := raknet.DecodeNack(payload)
		if err != nil {
			f.log.Warnf("framer: malformed nack: %v", err)
			return nil
		}
		for _, seq := range nack.Sequences {
			frames, ok := f.outputBackup[seq]
			if !ok {
				continue
			}
			delete(f.outputBackup, seq)
			for _, lost := range frames {
				f.rec.FrameRetransmitted()
				if err := f.sendFrame(lost.Clone(), raknet.PriorityImmediate); err != nil {
					return err
				}
			}
		}
		f.rec.SetBackupQueueDepth(len(f.outputBackup))
	default:
		if f.onData != nil {
			f.onData(payload)
		}
	}
	return nil
}

// Tick drains pending acknowledgements and flushes the outbound queue.
// Called periodically by the owning Peer/Client, per spec.md §5.
func (f *Framer) Tick() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.receivedFrameSequences) > 0 {
		seqs := make([]uint32, 0, len(f.receivedFrameSequences))
		for seq := range f.receivedFrameSequences {
			seqs = append(seqs, seq)
			delete(f.receivedFrameSequences, seq)
		}
		ack := &raknet.Ack{Sequences: seqs}
		if err := f.frameAndSend(ack.Encode(), raknet.PriorityImmediate); err != nil {
			return err
		}
	}

	if len(f.lostFrameSequences) > 0 {
		seqs := make([]uint32, 0, len(f.lostFrameSequences))
		for seq := range f.lostFrameSequences {
			seqs = append(seqs, seq)
		}
		nack := &raknet.Nack{Sequences: seqs}
		if err := f.frameAndSend(nack.Encode(), raknet.PriorityImmediate); err != nil {
			return err
		}
	}

	return f.sendQueue(len(f.outputFrames))
}

// FrameAndSend wraps payload in a ReliableOrdered, channel-0 frame and
// enqueues it, the same shape the teacher's handshake replies use.
func (f *Framer) FrameAndSend(payload []byte, priority raknet.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frameAndSend(payload, priority)
}

func (f *Framer) frameAndSend(payload []byte, priority raknet.Priority) error {
	frame := &raknet.Frame{
		Reliability:   raknet.ReliableOrdered,
		OrderChannel:  0,
		HasOrderIndex: true,
		Payload:       payload,
	}
	return f.sendFrame(frame, priority)
}

// SendFrame assigns reliability-appropriate indices to frame and queues
// it (splitting first if it exceeds the MTU budget).
func (f *Framer) SendFrame(frame *raknet.Frame, priority raknet.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendFrame(frame, priority)
}

func (f *Framer) sendFrame(frame *raknet.Frame, priority raknet.Priority) error {
	channel := frame.OrderChannel

	switch {
	case frame.Reliability.IsSequenced():
		frame.OrderedFrameIndex = f.outputOrderIndex[channel]
		frame.HasOrderIndex = true
		frame.SequenceFrameIndex = f.outputSequenceIndex[channel]
		frame.HasSequenceIndex = true
		f.outputSequenceIndex[channel]++
	case frame.Reliability.IsOrdered():
		frame.OrderedFrameIndex = f.outputOrderIndex[channel]
		frame.HasOrderIndex = true
		f.outputOrderIndex[channel]++
		f.outputSequenceIndex[channel] = 0
	}

	maxSize := int(f.mtu) - int(raknet.FrameHeaderOverhead)
	if len(frame.Payload) > maxSize {
		return f.handleLargePayload(frame, maxSize)
	}

	if frame.Reliability.IsReliable() {
		frame.ReliableFrameIndex = f.outputReliableIndex
		frame.HasReliableIndex = true
		f.outputReliableIndex++
	}
	return f.queueFrame(frame, priority)
}

// handleLargePayload fragments frame across enough Frames of at most
// maxSize-28 bytes each, all queued at immediate priority so a large
// message doesn't wait behind unrelated batching.
func (f *Framer) handleLargePayload(frame *raknet.Frame, maxSize int) error {
	const splitOverhead = 28
	effective := maxSize - splitOverhead
	if effective <= 0 {
		return raknet.NewCodecInvalidLengthError("mtu too small to fragment payload")
	}

	payloadLen := len(frame.Payload)
	splitSize := (payloadLen + effective - 1) / effective
	splitID := uint16(f.outputSplitIndex % 65536)
	f.outputSplitIndex = (f.outputSplitIndex + 1) % 65536

	for i := 0; i < splitSize; i++ {
		start := i * effective
		end := start + effective
		if end > payloadLen {
			end = payloadLen
		}

		fragment := &raknet.Frame{
			Reliability:        frame.Reliability,
			SequenceFrameIndex:  frame.SequenceFrameIndex,
			HasSequenceIndex:    frame.HasSequenceIndex,
			OrderedFrameIndex:   frame.OrderedFrameIndex,
			OrderChannel:        frame.OrderChannel,
			HasOrderIndex:       frame.HasOrderIndex,
			Split:               true,
			SplitID:             splitID,
			SplitFrameIndex:     uint32(i),
			SplitSize:           uint32(splitSize),
			Payload:             append([]byte(nil), frame.Payload[start:end]...),
		}
		if fragment.Reliability.IsReliable() {
			fragment.ReliableFrameIndex = f.outputReliableIndex
			fragment.HasReliableIndex = true
			f.outputReliableIndex++
		}
		if err := f.queueFrame(fragment, raknet.PriorityImmediate); err != nil {
			return err
		}
	}
	return nil
}

// queueFrame appends frame to the pending batch, flushing first if it
// would overflow the MTU budget, then flushing immediately if priority
// demands it.
func (f *Framer) queueFrame(frame *raknet.Frame, priority raknet.Priority) error {
	const frameSetHeader = 4
	pending := frameSetHeader
	for _, qf := range f.outputFrames {
		pending += qf.Size()
	}
	if pending+frame.Size() > int(f.mtu)-int(raknet.FrameHeaderOverhead) {
		if err := f.sendQueue(len(f.outputFrames)); err != nil {
			return err
		}
	}

	f.outputFrames = append(f.outputFrames, frame)
	if priority == raknet.PriorityImmediate {
		return f.sendQueue(1)
	}
	return nil
}

// sendQueue takes up to n pending frames, assigns them the next
// FrameSet sequence, stashes a copy for retransmission, and writes the
// encoded datagram to the socket.
func (f *Framer) sendQueue(n int) error {
	if len(f.outputFrames) == 0 {
		return nil
	}
	if n > len(f.outputFrames) {
		n = len(f.outputFrames)
	}

	batch := f.outputFrames[:n]
	fs := &raknet.FrameSet{Sequence: f.outputSequence, Frames: batch}
	f.outputSequence++

	backup := make([]*raknet.Frame, len(batch))
	copy(backup, batch)
	f.outputBackup[fs.Sequence] = backup
	f.rec.SetBackupQueueDepth(len(f.outputBackup))

	f.outputFrames = append([]*raknet.Frame(nil), f.outputFrames[n:]...)

	encoded := fs.Encode()
	if _, err := f.conn.WriteTo(encoded, f.remote); err != nil {
		return raknet.NewSocketSendError(err)
	}
	for range batch {
		f.rec.FrameSent()
	}
	return nil
}

// Flush forces every currently-queued frame out immediately, useful
// when the caller is about to tear down the connection.
func (f *Framer) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendQueue(len(f.outputFrames))
}

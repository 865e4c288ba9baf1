// Package client is the Peer Facade: it owns the UDP socket, wires the
// Framer and handshake Machine together, runs the read and tick loops,
// and exposes a channel of decoded events plus a synchronous Connect
// and Ping surface.
//
// Grounded on the teacher's source/server/server.go listen/Start loop
// shape (read-loop goroutine + ticker goroutine), adapted from a
// multi-session server into a single-peer client; the event channel is
// grounded on localrivet-gomcp's channel-based delivery pattern.
package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"raknetclient/framer"
	"raknetclient/handshake"
	"raknetclient/logging"
	"raknetclient/raknet"

	"github.com/rs/xid"
)

// newGUID derives a client GUID from a freshly generated xid: the first
// 8 of the ID's 12 bytes (timestamp, machine id and the pid's high
// byte) are read as a big-endian uint64. The pid's low byte and the
// counter are not used, so two GUIDs made by one process in the same
// second are equal.
func newGUID() uint64 {
	id := xid.New()
	b := id.Bytes()
	return binary.BigEndian.Uint64(b[0:8])
}

// EventKind names the category of an Event delivered on the Peer's
// channel.
type EventKind string

const (
	EventUnconnectedPong EventKind = "unconnected_pong"
	EventConnected       EventKind = "connected"
	EventConnectedPong   EventKind = "connected_pong"
	EventDisconnect      EventKind = "disconnect"
	EventEncapsulated    EventKind = "encapsulated"
	EventUnknownPacket   EventKind = "unknown_packet"
)

// Event is one item delivered on Peer.Events().
type Event struct {
	Kind    EventKind
	Payload []byte
	RTT     time.Duration
}

// Recorder is the union of metrics surfaces the Peer's collaborators
// need; *metrics.Collector satisfies it without client importing
// metrics directly.
type Recorder interface {
	framer.Recorder
	handshake.Recorder
}

type nopRecorder struct{}

func (nopRecorder) FrameSent()                  {}
func (nopRecorder) FrameReceived()               {}
func (nopRecorder) FrameRetransmitted()          {}
func (nopRecorder) FramesAcked(int)              {}
func (nopRecorder) DuplicateFrameSetDropped()    {}
func (nopRecorder) SetBackupQueueDepth(int)      {}
func (nopRecorder) SetOrderingQueueDepth(int)    {}
func (nopRecorder) SetHandshakeState(string)     {}
func (nopRecorder) ObserveRTTSeconds(float64)    {}

// TickInterval is how often the Peer drains Acks/Nacks and flushes the
// outbound queue, matching the teacher's 50ms update loop cadence.
const TickInterval = 50 * time.Millisecond

// RetryInterval is how long the Peer waits for handshake progress
// before nudging the handshake machine to retry.
const RetryInterval = 500 * time.Millisecond

// Peer is one client-side RakNet connection to a single remote server.
type Peer struct {
	conn   net.PacketConn
	remote *net.UDPAddr
	guid   uint64

	framer    *framer.Framer
	handshake *handshake.Machine

	log    logging.Logger
	rec    Recorder
	events chan Event

	cancel context.CancelFunc
	done   chan struct{}

	pendingPing   map[int64]chan time.Duration
	pendingPingMu chan struct{} // binary semaphore guarding pendingPing

	initialMTU           uint16
	orderingQueueLimit    int
	fragmentsPerSplitMax  int
}

// Option configures a Peer at construction time.
type Option func(*Peer)

func WithLogger(l logging.Logger) Option { return func(p *Peer) { p.log = l } }
func WithRecorder(r Recorder) Option     { return func(p *Peer) { p.rec = r } }
func WithGUID(guid uint64) Option        { return func(p *Peer) { p.guid = guid } }
func WithEventBuffer(n int) Option {
	return func(p *Peer) { p.events = make(chan Event, n) }
}

// WithInitialMTU overrides the first MTU the Framer batches under,
// before the handshake negotiates one with the server.
func WithInitialMTU(mtu uint16) Option {
	return func(p *Peer) { p.initialMTU = mtu }
}

// WithOrderingQueueLimit overrides the Framer's per-channel holdback
// bound (see framer.DefaultMaxOrderingQueueSize).
func WithOrderingQueueLimit(n int) Option {
	return func(p *Peer) { p.orderingQueueLimit = n }
}

// WithFragmentsPerSplitLimit overrides the Framer's per-split fragment
// bound (see framer.DefaultMaxFragmentsPerSplit).
func WithFragmentsPerSplitLimit(n int) Option {
	return func(p *Peer) { p.fragmentsPerSplitMax = n }
}

// Dial opens a UDP socket to remote and prepares a Peer, without
// starting the handshake — call Connect for that.
func Dial(remoteAddr string, opts ...Option) (*Peer, error) {
	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("raknetclient: resolve %q: %w", remoteAddr, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("raknetclient: listen: %w", err)
	}

	p := &Peer{
		conn:                 conn,
		remote:               remote,
		guid:                 newGUID(),
		log:                  logging.Nop(),
		rec:                  nopRecorder{},
		events:               make(chan Event, 64),
		done:                 make(chan struct{}),
		pendingPing:          make(map[int64]chan time.Duration),
		pendingPingMu:        make(chan struct{}, 1),
		initialMTU:           raknet.ProbeMTU,
		orderingQueueLimit:   framer.DefaultMaxOrderingQueueSize,
		fragmentsPerSplitMax: framer.DefaultMaxFragmentsPerSplit,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pendingPingMu <- struct{}{}

	p.framer = framer.New(conn, remote, p.initialMTU,
		framer.WithLogger(p.log),
		framer.WithRecorder(p.rec),
		framer.WithPacketHandler(p.onApplicationPacket),
		framer.WithOrderingQueueLimit(p.orderingQueueLimit),
		framer.WithFragmentsPerSplitLimit(p.fragmentsPerSplitMax),
	)
	p.handshake = handshake.New(conn, remote, p.framer, p.guid,
		handshake.WithLogger(p.log),
		handshake.WithRecorder(p.rec),
		handshake.WithEstablishedCallback(func() {
			p.emit(Event{Kind: EventConnected})
		}),
	)
	return p, nil
}

// Events returns the channel the Peer delivers decoded application
// events on. The caller must keep draining it; while the buffer is
// full, further events are dropped and a warning is logged.
func (p *Peer) Events() <-chan Event { return p.events }

func (p *Peer) emit(e Event) {
	select {
	case p.events <- e:
	default:
		p.log.Warnf("client: event buffer full, dropping %s", e.Kind)
	}
}

// Connect starts the read and tick loops, begins the handshake, and
// blocks until the handshake reaches StateEstablished or ctx is done.
func (p *Peer) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.readLoop(runCtx)
	go p.tickLoop(runCtx)

	if err := p.handshake.Start(); err != nil {
		cancel()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.events:
			if !ok {
				return fmt.Errorf("raknetclient: peer closed before handshake completed")
			}
			if ev.Kind == EventConnected {
				return nil
			}
			p.emit(ev) // not our event to consume, put it back for the caller
		}
	}
}

func (p *Peer) readLoop(ctx context.Context) {
	defer close(p.done)
	buf := make([]byte, raknet.MaxMTU)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = p.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, _, err := p.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				p.log.Errorf("client: read error: %v", err)
				return
			}
		}
		datagram := buf[:n]
		if len(datagram) > 0 && datagram[0] == raknet.IDUnconnectedPong {
			p.emit(Event{Kind: EventUnconnectedPong, Payload: append([]byte(nil), datagram...)})
			continue
		}
		if err := p.handshake.HandleInbound(datagram); err != nil {
			p.log.Warnf("client: inbound dispatch error: %v", err)
		}
	}
}

func (p *Peer) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	retryTicker := time.NewTicker(RetryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.framer.Tick(); err != nil {
				p.log.Warnf("client: tick error: %v", err)
			}
		case <-retryTicker.C:
			if p.handshake.State() != handshake.StateEstablished {
				if err := p.handshake.Retry(); err != nil {
					p.log.Warnf("client: handshake retry error: %v", err)
				}
			}
		}
	}
}

// onApplicationPacket is the Framer's terminal delivery callback. It
// gives the handshake machine first refusal (to catch
// ConnectionRequestAccepted), then handles session keepalive locally,
// then forwards anything else as an Event.
func (p *Peer) onApplicationPacket(payload []byte) {
	if handled, err := p.handshake.HandleApplicationPacket(payload); err != nil {
		p.log.Warnf("client: handshake application dispatch error: %v", err)
		return
	} else if handled {
		return
	}

	if len(payload) == 0 {
		return
	}

	switch payload[0] {
	case raknet.IDConnectedPing:
		ping, err := raknet.DecodeConnectedPing(payload)
		if err != nil {
			p.log.Warnf("client: malformed connected ping: %v", err)
			return
		}
		pong := &raknet.ConnectedPong{PingTimestamp: ping.Timestamp, PongTimestamp: time.Now().UnixMilli()}
		if err := p.framer.FrameAndSend(pong.Encode(), raknet.PriorityImmediate); err != nil {
			p.log.Warnf("client: failed to send connected pong: %v", err)
		}
	case raknet.IDConnectedPong:
		pong, err := raknet.DecodeConnectedPong(payload)
		if err != nil {
			p.log.Warnf("client: malformed connected pong: %v", err)
			return
		}
		p.resolvePing(pong.PingTimestamp)
	case raknet.IDDisconnect:
		p.emit(Event{Kind: EventDisconnect})
	default:
		p.emit(Event{Kind: EventEncapsulated, Payload: payload})
	}
}

// Ping measures round-trip time: a ConnectedPing/Pong exchange once
// established, falling back to the connectionless UnconnectedPing/Pong
// probe beforehand (spec.md's supplemented RTT feature).
func (p *Peer) Ping(ctx context.Context) (time.Duration, error) {
	if p.handshake.State() != handshake.StateEstablished {
		return p.unconnectedPing(ctx)
	}

	ts := time.Now().UnixMilli()
	wait := p.registerPing(ts)
	ping := &raknet.ConnectedPing{Timestamp: ts}
	if err := p.framer.FrameAndSend(ping.Encode(), raknet.PriorityImmediate); err != nil {
		p.unregisterPing(ts)
		return 0, err
	}

	select {
	case rtt := <-wait:
		p.rec.ObserveRTTSeconds(rtt.Seconds())
		return rtt, nil
	case <-ctx.Done():
		p.unregisterPing(ts)
		return 0, ctx.Err()
	}
}

func (p *Peer) unconnectedPing(ctx context.Context) (time.Duration, error) {
	ts := time.Now().UnixMilli()
	ping := &raknet.UnconnectedPing{Timestamp: ts, GUID: p.guid}
	if _, err := p.conn.WriteTo(ping.Encode(), p.remote); err != nil {
		return 0, raknet.NewSocketSendError(err)
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case ev, ok := <-p.events:
			if !ok {
				return 0, fmt.Errorf("raknetclient: peer closed during ping")
			}
			if ev.Kind != EventUnconnectedPong {
				p.emit(ev)
				continue
			}
			return time.Since(time.UnixMilli(ts)), nil
		}
	}
}

func (p *Peer) registerPing(ts int64) <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	<-p.pendingPingMu
	p.pendingPing[ts] = ch
	p.pendingPingMu <- struct{}{}
	return ch
}

func (p *Peer) unregisterPing(ts int64) {
	<-p.pendingPingMu
	delete(p.pendingPing, ts)
	p.pendingPingMu <- struct{}{}
}

func (p *Peer) resolvePing(ts int64) {
	<-p.pendingPingMu
	ch, ok := p.pendingPing[ts]
	if ok {
		delete(p.pendingPing, ts)
	}
	p.pendingPingMu <- struct{}{}
	if ok {
		ch <- time.Duration(time.Now().UnixMilli()-ts) * time.Millisecond
	}
}

// Close tears down the read/tick loops and the underlying socket.
func (p *Peer) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.handshake.Disconnect()
	return p.conn.Close()
}

// Package handshake implements the client-side two-phase RakNet
// connection handshake: MTU discovery over OpenConnectionRequest/Reply
// One and Two, followed by the reliable ConnectionRequest /
// ConnectionRequestAccepted / NewIncomingConnection exchange that
// establishes a session.
//
// Grounded on original_source's client-side connect()/handle_packet()
// state machine, promoted from an implicit retry counter into the named
// states spec.md §4.7 lists.
package handshake

import (
	"net"
	"time"

	"raknetclient/framer"
	"raknetclient/logging"
	"raknetclient/raknet"
)

// State names one position in the handshake per spec.md §4.7.
type State int

const (
	StateOffline State = iota
	StateAwaitingReplyOne
	StateAwaitingReplyTwo
	StateConnecting
	StateEstablished
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateAwaitingReplyOne:
		return "awaiting_reply_one"
	case StateAwaitingReplyTwo:
		return "awaiting_reply_two"
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// protocolVersion is the RakNet wire protocol version this client
// speaks during OpenConnectionRequestOne.
const protocolVersion uint8 = 11

// mtuCandidates is the fallback ladder spec.md §4.7 walks down when a
// probe at the current size goes unanswered: 1492 (the PPPoE MTU; each
// candidate is the whole datagram size, IP/UDP headers included), then
// 1200, then 576 (the guaranteed-safe IPv4 minimum).
var mtuCandidates = []uint16{raknet.ProbeMTU, raknet.MTUStep2, raknet.MTUStep3}

// Recorder receives handshake state transitions for metrics wiring.
type Recorder interface {
	SetHandshakeState(state string)
	ObserveRTTSeconds(seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) SetHandshakeState(string)    {}
func (nopRecorder) ObserveRTTSeconds(float64)   {}

// Machine drives one client's handshake against one remote server.
type Machine struct {
	conn   net.PacketConn
	remote net.Addr
	framer *framer.Framer
	guid   uint64

	log logging.Logger
	rec Recorder

	state     State
	stepIndex int

	// negotiatedMTU is the MTU OpenConnectionReplyOne settled on, cached
	// so Retry can resend OpenConnectionRequestTwo verbatim rather than
	// restarting the probe ladder from scratch.
	negotiatedMTU uint16

	onEstablished func()
}

// Option configures a Machine at construction time.
type Option func(*Machine)

func WithLogger(l logging.Logger) Option { return func(m *Machine) { m.log = l } }
func WithRecorder(r Recorder) Option     { return func(m *Machine) { m.rec = r } }

// WithEstablishedCallback registers fn to run the moment the handshake
// completes (NewIncomingConnection sent, state flips to Established).
func WithEstablishedCallback(fn func()) Option {
	return func(m *Machine) { m.onEstablished = fn }
}

// New builds a Machine. The caller owns conn/remote/fr and must forward
// every inbound datagram via HandleInbound.
func New(conn net.PacketConn, remote net.Addr, fr *framer.Framer, guid uint64, opts ...Option) *Machine {
	m := &Machine{
		conn:   conn,
		remote: remote,
		framer: fr,
		guid:   guid,
		log:    logging.Nop(),
		rec:    nopRecorder{},
		state:  StateOffline,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State { return m.state }

func (m *Machine) setState(s State) {
	m.state = s
	m.rec.SetHandshakeState(s.String())
}

// Start sends the first OpenConnectionRequestOne probe at the widest
// candidate MTU.
func (m *Machine) Start() error {
	m.stepIndex = 0
	return m.sendRequestOne()
}

func (m *Machine) sendRequestOne() error {
	mtu := mtuCandidates[m.stepIndex]
	req := &raknet.OpenConnectionRequestOne{Protocol: protocolVersion, CandidateMTU: mtu}
	if _, err := m.conn.WriteTo(req.Encode(), m.remote); err != nil {
		return raknet.NewSocketSendError(err)
	}
	m.setState(StateAwaitingReplyOne)
	return nil
}

// retryWithSmallerMTU advances to the next candidate in the fallback
// ladder and restarts the probe, per spec.md §4.7's MTU backoff.
func (m *Machine) retryWithSmallerMTU() error {
	if m.stepIndex+1 >= len(mtuCandidates) {
		m.log.Warnf("handshake: exhausted mtu candidates, retrying smallest")
		m.stepIndex = len(mtuCandidates) - 1
	} else {
		m.stepIndex++
	}
	return m.sendRequestOne()
}

// HandleInbound dispatches one inbound datagram: FrameSets go to the
// Framer; offline handshake replies and bare Ack/Nack are handled here.
func (m *Machine) HandleInbound(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	if raknet.IsFrameSetID(buf[0]) {
		fs, err := raknet.DecodeFrameSet(buf)
		if err != nil {
			m.log.Warnf("handshake: malformed frameset: %v", err)
			return nil
		}
		return m.framer.OnFrameSet(fs)
	}

	switch buf[0] {
	case raknet.IDOpenConnectionReplyOne:
		return m.handleReplyOne(buf)
	case raknet.IDOpenConnectionReplyTwo:
		return m.handleReplyTwo(buf)
	case raknet.IDAck, raknet.IDNack:
		return m.framer.HandleBarePacket(buf)
	default:
		return nil
	}
}

func (m *Machine) handleReplyOne(buf []byte) error {
	reply, err := raknet.DecodeOpenConnectionReplyOne(buf)
	if err != nil {
		m.log.Warnf("handshake: malformed open connection reply one: %v", err)
		return nil
	}

	if reply.MTUSize > raknet.MaxMTU || reply.MTUSize < raknet.MinMTU {
		m.log.Warnf("handshake: open connection reply one advertised out-of-range mtu %d", reply.MTUSize)
		return m.retryWithSmallerMTU()
	}

	m.negotiatedMTU = reply.MTUSize
	m.framer.SetMTU(reply.MTUSize)
	return m.sendRequestTwo()
}

func (m *Machine) sendRequestTwo() error {
	req := &raknet.OpenConnectionRequestTwo{
		ServerAddress: addressOf(m.remote),
		MTUSize:       m.negotiatedMTU,
		GUID:          m.guid,
	}
	if _, err := m.conn.WriteTo(req.Encode(), m.remote); err != nil {
		return raknet.NewSocketSendError(err)
	}
	m.setState(StateAwaitingReplyTwo)
	return nil
}

func (m *Machine) handleReplyTwo(buf []byte) error {
	reply, err := raknet.DecodeOpenConnectionReplyTwo(buf)
	if err != nil {
		m.log.Warnf("handshake: malformed open connection reply two: %v", err)
		return nil
	}

	if reply.MTUSize > raknet.MaxMTU || reply.MTUSize < raknet.MinMTU {
		m.log.Warnf("handshake: open connection reply two advertised out-of-range mtu %d", reply.MTUSize)
		return m.retryWithSmallerMTU()
	}

	m.framer.SetMTU(reply.MTUSize)
	connReq := &raknet.ConnectionRequest{
		GUID:      m.guid,
		Timestamp: nowMillis(),
		Security:  false,
	}
	if err := m.framer.FrameAndSend(connReq.Encode(), raknet.PriorityImmediate); err != nil {
		return err
	}
	m.setState(StateConnecting)
	return nil
}

// HandleApplicationPacket intercepts ConnectionRequestAccepted out of
// the Framer's delivered-payload stream to finish the handshake. It
// reports handled=true when it consumed the packet; callers should only
// forward payloads for which handled is false to application code.
func (m *Machine) HandleApplicationPacket(payload []byte) (handled bool, err error) {
	if len(payload) == 0 || payload[0] != raknet.IDConnectionRequestAccepted {
		return false, nil
	}

	accepted, err := raknet.DecodeConnectionRequestAccepted(payload)
	if err != nil {
		m.log.Warnf("handshake: malformed connection request accepted: %v", err)
		return true, nil
	}

	var internal [20]raknet.Address
	localAddr := addressOf(m.conn.LocalAddr())
	for i := range internal {
		internal[i] = localAddr
	}

	nic := &raknet.NewIncomingConnection{
		ServerAddress:     addressOf(m.remote),
		InternalAddresses: internal,
		IncomingTimestamp: nowMillis(),
		ServerTimestamp:   accepted.ServerSendTime,
	}
	if err := m.framer.FrameAndSend(nic.Encode(), raknet.PriorityImmediate); err != nil {
		return true, err
	}

	if rtt := nowMillis() - accepted.ClientSendTime; rtt >= 0 {
		m.rec.ObserveRTTSeconds(float64(rtt) / 1000.0)
	}

	m.setState(StateEstablished)
	if m.onEstablished != nil {
		m.onEstablished()
	}
	return true, nil
}

// Retry resends the current handshake step's request, narrowing the
// candidate MTU if still probing. Callers drive this off a timeout
// while stuck in StateAwaitingReplyOne/StateAwaitingReplyTwo — the
// protocol itself carries no retransmit timer for offline messages,
// since they precede any FrameSet sequence numbering.
func (m *Machine) Retry() error {
	switch m.state {
	case StateAwaitingReplyOne:
		return m.retryWithSmallerMTU()
	case StateAwaitingReplyTwo:
		return m.sendRequestTwo()
	default:
		return nil
	}
}

// Disconnect marks the handshake terminated; it does not itself send a
// Disconnect notification (the Peer facade owns that).
func (m *Machine) Disconnect() {
	m.setState(StateDisconnected)
}

func addressOf(addr net.Addr) raknet.Address {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return raknet.Address{}
	}
	return raknet.NewAddress(udp)
}

func nowMillis() int64 { return time.Now().UnixMilli() }

package handshake

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	rbinary "raknetclient/binary"
	"raknetclient/framer"
	"raknetclient/raknet"
)

func deadlineSoon() time.Time {
	return time.Now().Add(2 * time.Second)
}

func newTestMachine(t *testing.T) (*Machine, net.PacketConn, net.PacketConn) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	remote, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP remote: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		remote.Close()
	})
	fr := framer.New(conn, remote.LocalAddr(), raknet.ProbeMTU)
	m := New(conn, remote.LocalAddr(), fr, 0xfeedface)
	return m, conn, remote
}

func TestStartSendsOpenConnectionRequestOneAndAwaitsReplyOne(t *testing.T) {
	m, _, remote := newTestMachine(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.State() != StateAwaitingReplyOne {
		t.Fatalf("State() = %v, want StateAwaitingReplyOne", m.State())
	}

	buf := make([]byte, 1500)
	remote.SetReadDeadline(deadlineSoon())
	n, _, err := remote.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected OpenConnectionRequestOne on the wire: %v", err)
	}
	req, err := raknet.DecodeOpenConnectionRequestOne(buf[:n])
	if err != nil {
		t.Fatalf("DecodeOpenConnectionRequestOne: %v", err)
	}
	if req.Protocol != protocolVersion {
		t.Fatalf("Protocol = %d, want %d", req.Protocol, protocolVersion)
	}
}

func TestRetryWithSmallerMTUAdvancesLadder(t *testing.T) {
	m, _, remote := newTestMachine(t)
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	drain(t, remote)

	if err := m.retryWithSmallerMTU(); err != nil {
		t.Fatalf("retryWithSmallerMTU: %v", err)
	}
	if m.stepIndex != 1 {
		t.Fatalf("stepIndex = %d, want 1", m.stepIndex)
	}

	buf := make([]byte, 1500)
	remote.SetReadDeadline(deadlineSoon())
	n, _, err := remote.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a second probe on the wire: %v", err)
	}
	if n+28 != int(mtuCandidates[1]) {
		t.Fatalf("second probe length+overhead = %d, want %d", n+28, mtuCandidates[1])
	}
}

func TestRetryWithSmallerMTUClampsAtSmallestCandidate(t *testing.T) {
	m, _, remote := newTestMachine(t)
	m.stepIndex = len(mtuCandidates) - 1
	if err := m.retryWithSmallerMTU(); err != nil {
		t.Fatalf("retryWithSmallerMTU: %v", err)
	}
	if m.stepIndex != len(mtuCandidates)-1 {
		t.Fatalf("stepIndex = %d, want clamped to %d", m.stepIndex, len(mtuCandidates)-1)
	}
	drain(t, remote)
}

func TestHandleReplyOneSendsRequestTwoAndAwaitsReplyTwo(t *testing.T) {
	m, _, remote := newTestMachine(t)
	reply := buildOpenConnectionReplyOneBytes(0x1111, false, 0, 1400)

	if err := m.HandleInbound(reply); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if m.State() != StateAwaitingReplyTwo {
		t.Fatalf("State() = %v, want StateAwaitingReplyTwo", m.State())
	}

	buf := make([]byte, 1500)
	remote.SetReadDeadline(deadlineSoon())
	n, addr, err := remote.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected OpenConnectionRequestTwo on the wire: %v", err)
	}
	if addr.String() == "" {
		t.Fatalf("unexpected empty sender address")
	}
	req2, err := raknet.DecodeOpenConnectionRequestTwo(buf[:n])
	if err != nil {
		t.Fatalf("DecodeOpenConnectionRequestTwo: %v", err)
	}
	if req2.MTUSize != 1400 {
		t.Fatalf("MTUSize = %d, want 1400", req2.MTUSize)
	}
}

func TestHandleReplyOneRejectsMTUBelowMinimum(t *testing.T) {
	m, _, remote := newTestMachine(t)
	reply := buildOpenConnectionReplyOneBytes(0x3333, false, 0, 200) // below raknet.MinMTU (400)

	if err := m.HandleInbound(reply); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if m.State() != StateAwaitingReplyOne {
		t.Fatalf("State() = %v, want StateAwaitingReplyOne (out-of-range mtu should restart the probe, not advance)", m.State())
	}
	if m.negotiatedMTU != 0 {
		t.Fatalf("negotiatedMTU = %d, want 0 (an out-of-range reply must not be adopted)", m.negotiatedMTU)
	}

	buf := make([]byte, 1500)
	remote.SetReadDeadline(deadlineSoon())
	n, _, err := remote.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a retried OpenConnectionRequestOne on the wire: %v", err)
	}
	if _, err := raknet.DecodeOpenConnectionRequestOne(buf[:n]); err != nil {
		t.Fatalf("DecodeOpenConnectionRequestOne: %v", err)
	}
}

func TestHandleReplyTwoRejectsMTUAboveMaximum(t *testing.T) {
	m, _, remote := newTestMachine(t)
	reply := buildOpenConnectionReplyOneBytes(0x4444, false, 0, 1200)
	if err := m.HandleInbound(reply); err != nil {
		t.Fatalf("HandleInbound reply one: %v", err)
	}
	drain(t, remote) // the OpenConnectionRequestTwo sent in response

	reply2 := buildOpenConnectionReplyTwoBytes(0x4444, 1600) // above raknet.MaxMTU (1500)
	if err := m.HandleInbound(reply2); err != nil {
		t.Fatalf("HandleInbound reply two: %v", err)
	}
	if m.State() == StateConnecting {
		t.Fatalf("State() = %v, an out-of-range reply two must not advance to StateConnecting", m.State())
	}

	buf := make([]byte, 1500)
	remote.SetReadDeadline(deadlineSoon())
	n, _, err := remote.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a retried probe on the wire: %v", err)
	}
	if _, err := raknet.DecodeOpenConnectionRequestOne(buf[:n]); err != nil {
		t.Fatalf("DecodeOpenConnectionRequestOne: %v", err)
	}
}

func TestRetryDuringAwaitingReplyTwoResendsRequestTwoVerbatim(t *testing.T) {
	m, _, remote := newTestMachine(t)
	reply := buildOpenConnectionReplyOneBytes(0x2222, false, 0, 1200)
	if err := m.HandleInbound(reply); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	drain(t, remote) // the initial OpenConnectionRequestTwo

	if err := m.Retry(); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if m.State() != StateAwaitingReplyTwo {
		t.Fatalf("State() after Retry = %v, want StateAwaitingReplyTwo", m.State())
	}

	buf := make([]byte, 1500)
	remote.SetReadDeadline(deadlineSoon())
	n, _, err := remote.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a resent OpenConnectionRequestTwo: %v", err)
	}
	req2, err := raknet.DecodeOpenConnectionRequestTwo(buf[:n])
	if err != nil {
		t.Fatalf("DecodeOpenConnectionRequestTwo: %v", err)
	}
	if req2.MTUSize != 1200 {
		t.Fatalf("resent MTUSize = %d, want 1200 (should match the first negotiation, not restart the ladder)", req2.MTUSize)
	}
}

func TestHandleApplicationPacketCompletesHandshake(t *testing.T) {
	m, conn, _ := newTestMachine(t)

	established := false
	m.onEstablished = func() { established = true }

	accepted := &raknet.ConnectionRequestAccepted{
		ClientAddress:  raknet.NewAddress(conn.LocalAddr().(*net.UDPAddr)),
		ClientSendTime: 1000,
		ServerSendTime: 2000,
	}
	for i := range accepted.SystemAddresses {
		accepted.SystemAddresses[i] = raknet.Address{IP: net.IPv4(0, 0, 0, 0), Port: 0}
	}
	payload := buildConnectionRequestAcceptedBytes(accepted)

	handled, err := m.HandleApplicationPacket(payload)
	if err != nil {
		t.Fatalf("HandleApplicationPacket: %v", err)
	}
	if !handled {
		t.Fatalf("HandleApplicationPacket should report handled=true for ConnectionRequestAccepted")
	}
	if m.State() != StateEstablished {
		t.Fatalf("State() = %v, want StateEstablished", m.State())
	}
	if !established {
		t.Fatalf("onEstablished callback was not invoked")
	}
}

func TestHandleApplicationPacketIgnoresOtherIDs(t *testing.T) {
	m, _, _ := newTestMachine(t)
	handled, err := m.HandleApplicationPacket([]byte{raknet.IDConnectedPing, 0, 0, 0, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("HandleApplicationPacket: %v", err)
	}
	if handled {
		t.Fatalf("HandleApplicationPacket should not claim a non-ConnectionRequestAccepted payload")
	}
}

func drain(t *testing.T, conn net.PacketConn) {
	t.Helper()
	buf := make([]byte, 1500)
	conn.SetReadDeadline(deadlineSoon())
	if _, _, err := conn.ReadFrom(buf); err != nil {
		t.Fatalf("drain: expected a datagram: %v", err)
	}
}

func buildOpenConnectionReplyOneBytes(guid uint64, security bool, cookie uint32, mtu uint16) []byte {
	buf := []byte{raknet.IDOpenConnectionReplyOne}
	buf = append(buf, raknet.OfflineMessageMagic[:]...)
	guidBytes := make([]byte, 8)
	for i := 0; i < 8; i++ {
		guidBytes[i] = byte(guid >> uint(8*(7-i)))
	}
	buf = append(buf, guidBytes...)
	if security {
		buf = append(buf, 1, byte(cookie>>24), byte(cookie>>16), byte(cookie>>8), byte(cookie))
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, byte(mtu>>8), byte(mtu))
	return buf
}

func buildOpenConnectionReplyTwoBytes(guid uint64, mtu uint16) []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(raknet.IDOpenConnectionReplyTwo)
	s.WriteBytes(raknet.OfflineMessageMagic[:])
	s.WriteUint64(guid, binary.BigEndian)
	raknet.WriteAddress(s, raknet.Address{IP: net.IPv4(0, 0, 0, 0), Port: 0})
	s.WriteUint16(mtu, binary.BigEndian)
	s.WriteBool(false)
	return s.Bytes()
}

func buildConnectionRequestAcceptedBytes(accepted *raknet.ConnectionRequestAccepted) []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(raknet.IDConnectionRequestAccepted)
	raknet.WriteAddress(s, accepted.ClientAddress)
	s.WriteUint16(accepted.ClientID, binary.BigEndian)
	for i := 0; i < 20; i++ {
		raknet.WriteAddress(s, accepted.SystemAddresses[i])
	}
	s.WriteInt64(accepted.ClientSendTime, binary.BigEndian)
	s.WriteInt64(accepted.ServerSendTime, binary.BigEndian)
	return s.Bytes()
}

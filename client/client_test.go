package client

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	rbinary "raknetclient/binary"
	"raknetclient/framer"
	"raknetclient/handshake"
	"raknetclient/raknet"
)

var bigEndian = binary.BigEndian

func newStream() *rbinary.Stream { return rbinary.NewEmpty() }

func newTestPeer(t *testing.T) (*Peer, net.PacketConn) {
	t.Helper()
	remote, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP remote: %v", err)
	}
	t.Cleanup(func() { remote.Close() })

	peer, err := Dial(remote.LocalAddr().String(), WithGUID(0x42), WithEventBuffer(8))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { peer.Close() })
	return peer, remote
}

func TestDialAppliesOptionsBeforeWiringCollaborators(t *testing.T) {
	peer, _ := newTestPeer(t)
	if peer.guid != 0x42 {
		t.Fatalf("guid = %x, want 0x42 (WithGUID should apply before framer/handshake construction)", peer.guid)
	}
	if cap(peer.events) != 8 {
		t.Fatalf("events buffer capacity = %d, want 8", cap(peer.events))
	}
	if peer.framer == nil || peer.handshake == nil {
		t.Fatalf("Dial should construct both the framer and handshake collaborators")
	}
}

func TestDialDefaultsTransportKnobs(t *testing.T) {
	remote, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { remote.Close() })

	peer, err := Dial(remote.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { peer.Close() })

	if peer.initialMTU != raknet.ProbeMTU {
		t.Fatalf("initialMTU = %d, want %d", peer.initialMTU, raknet.ProbeMTU)
	}
	if peer.orderingQueueLimit != framer.DefaultMaxOrderingQueueSize {
		t.Fatalf("orderingQueueLimit = %d, want %d", peer.orderingQueueLimit, framer.DefaultMaxOrderingQueueSize)
	}
	if peer.fragmentsPerSplitMax != framer.DefaultMaxFragmentsPerSplit {
		t.Fatalf("fragmentsPerSplitMax = %d, want %d", peer.fragmentsPerSplitMax, framer.DefaultMaxFragmentsPerSplit)
	}
}

func TestOnApplicationPacketRespondsToConnectedPing(t *testing.T) {
	peer, remote := newTestPeer(t)

	ping := &raknet.ConnectedPing{Timestamp: 555}
	peer.onApplicationPacket(ping.Encode())

	buf := make([]byte, 1500)
	remote.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := remote.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a ConnectedPong datagram: %v", err)
	}
	fs, err := raknet.DecodeFrameSet(buf[:n])
	if err != nil {
		t.Fatalf("DecodeFrameSet: %v", err)
	}
	if len(fs.Frames) != 1 {
		t.Fatalf("expected exactly one framed pong, got %d frames", len(fs.Frames))
	}
	pong, err := raknet.DecodeConnectedPong(fs.Frames[0].Payload)
	if err != nil {
		t.Fatalf("DecodeConnectedPong: %v", err)
	}
	if pong.PingTimestamp != 555 {
		t.Fatalf("PingTimestamp = %d, want 555", pong.PingTimestamp)
	}
}

func TestOnApplicationPacketEmitsDisconnect(t *testing.T) {
	peer, _ := newTestPeer(t)
	peer.onApplicationPacket([]byte{raknet.IDDisconnect})

	select {
	case ev := <-peer.events:
		if ev.Kind != EventDisconnect {
			t.Fatalf("event kind = %s, want %s", ev.Kind, EventDisconnect)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for EventDisconnect")
	}
}

func TestOnApplicationPacketEmitsEncapsulatedForUnknownID(t *testing.T) {
	peer, _ := newTestPeer(t)
	payload := []byte{0x7F, 1, 2, 3}
	peer.onApplicationPacket(payload)

	select {
	case ev := <-peer.events:
		if ev.Kind != EventEncapsulated {
			t.Fatalf("event kind = %s, want %s", ev.Kind, EventEncapsulated)
		}
		if string(ev.Payload) != string(payload) {
			t.Fatalf("event payload = %v, want %v", ev.Payload, payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for EventEncapsulated")
	}
}

func TestPingResolvesViaResolvePing(t *testing.T) {
	peer, _ := newTestPeer(t)

	ts := time.Now().UnixMilli()
	wait := peer.registerPing(ts)
	peer.resolvePing(ts)

	select {
	case <-wait:
	case <-time.After(time.Second):
		t.Fatalf("resolvePing did not signal the waiting channel")
	}
}

func TestUnregisterPingRemovesEntry(t *testing.T) {
	peer, _ := newTestPeer(t)

	ts := time.Now().UnixMilli()
	peer.registerPing(ts)
	peer.unregisterPing(ts)

	if _, ok := peer.pendingPing[ts]; ok {
		t.Fatalf("pendingPing still has entry %d after unregisterPing", ts)
	}
}

func TestOnApplicationPacketGivesHandshakeFirstRefusal(t *testing.T) {
	peer, _ := newTestPeer(t)

	localAddr := peer.conn.LocalAddr().(*net.UDPAddr)
	accepted := &raknet.ConnectionRequestAccepted{
		ClientAddress:  raknet.NewAddress(localAddr),
		ClientSendTime: time.Now().UnixMilli(),
		ServerSendTime: time.Now().UnixMilli(),
	}
	for i := range accepted.SystemAddresses {
		accepted.SystemAddresses[i] = raknet.Address{IP: net.IPv4(0, 0, 0, 0), Port: 0}
	}

	established := make(chan struct{}, 1)
	peer.handshake = handshake.New(peer.conn, peer.remote, peer.framer, peer.guid,
		handshake.WithEstablishedCallback(func() { established <- struct{}{} }))

	// onApplicationPacket should hand this to the handshake machine rather
	// than emitting it as an EventEncapsulated payload.
	peer.onApplicationPacket(buildAcceptedPayload(t, accepted))

	select {
	case <-established:
	case <-time.After(time.Second):
		t.Fatalf("handshake was not given first refusal of ConnectionRequestAccepted")
	}

	select {
	case ev := <-peer.events:
		if ev.Kind == EventEncapsulated {
			t.Fatalf("ConnectionRequestAccepted leaked through as EventEncapsulated")
		}
	default:
	}
}

func buildAcceptedPayload(t *testing.T, accepted *raknet.ConnectionRequestAccepted) []byte {
	t.Helper()
	s := newStream()
	s.WriteByte(raknet.IDConnectionRequestAccepted)
	raknet.WriteAddress(s, accepted.ClientAddress)
	s.WriteUint16(accepted.ClientID, bigEndian)
	for i := 0; i < 20; i++ {
		raknet.WriteAddress(s, accepted.SystemAddresses[i])
	}
	s.WriteInt64(accepted.ClientSendTime, bigEndian)
	s.WriteInt64(accepted.ServerSendTime, bigEndian)
	return s.Bytes()
}

package raknet

import (
	"encoding/binary"

	rbinary "raknetclient/binary"
)

// systemAddressCount is the fixed number of address slots RakNet carries
// in ConnectionRequestAccepted/NewIncomingConnection (spec.md §4.2).
const systemAddressCount = 20

// UnconnectedPing is the offline discovery probe a client sends before
// any session exists.
type UnconnectedPing struct {
	Timestamp int64
	GUID      uint64
}

func (p *UnconnectedPing) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDUnconnectedPing)
	s.WriteInt64(p.Timestamp, binary.BigEndian)
	s.WriteBytes(OfflineMessageMagic[:])
	s.WriteUint64(p.GUID, binary.BigEndian)
	return s.Bytes()
}

func DecodeUnconnectedPing(buf []byte) (*UnconnectedPing, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected ping id", err)
	}
	ts, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected ping timestamp", err)
	}
	if _, err := s.ReadBytes(16); err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected ping magic", err)
	}
	guid, err := s.ReadUint64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected ping guid", err)
	}
	return &UnconnectedPing{Timestamp: ts, GUID: guid}, nil
}

// UnconnectedPong answers an UnconnectedPing with the echoed timestamp,
// the server's GUID, and a free-form status message.
type UnconnectedPong struct {
	Timestamp int64
	GUID      uint64
	Message   string
}

func (p *UnconnectedPong) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDUnconnectedPong)
	s.WriteInt64(p.Timestamp, binary.BigEndian)
	s.WriteUint64(p.GUID, binary.BigEndian)
	s.WriteBytes(OfflineMessageMagic[:])
	s.WriteString(p.Message)
	return s.Bytes()
}

func DecodeUnconnectedPong(buf []byte) (*UnconnectedPong, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected pong id", err)
	}
	ts, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected pong timestamp", err)
	}
	guid, err := s.ReadUint64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected pong guid", err)
	}
	if _, err := s.ReadBytes(16); err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected pong magic", err)
	}
	msg, err := s.ReadString()
	if err != nil {
		return nil, newError(CodecOutOfBounds, "unconnected pong message", err)
	}
	return &UnconnectedPong{Timestamp: ts, GUID: guid, Message: msg}, nil
}

// OpenConnectionRequestOne is the first MTU-probe packet of the
// handshake (spec.md §4.7). Its encoded length is padded with zero
// bytes so the UDP datagram totals candidateMTU bytes; the client
// narrows candidateMTU across retries until the server responds.
type OpenConnectionRequestOne struct {
	Protocol     uint8
	CandidateMTU uint16
}

func (r *OpenConnectionRequestOne) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDOpenConnectionRequestOne)
	s.WriteBytes(OfflineMessageMagic[:])
	s.WriteByte(r.Protocol)

	const udpOverhead = 28
	current := len(s.Bytes())
	padding := int(r.CandidateMTU) - udpOverhead - current
	if padding > 0 {
		s.WriteBytes(make([]byte, padding))
	}
	return s.Bytes()
}

func DecodeOpenConnectionRequestOne(buf []byte) (*OpenConnectionRequestOne, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "open connection request one id", err)
	}
	if _, err := s.ReadBytes(16); err != nil {
		return nil, newError(CodecOutOfBounds, "open connection request one magic", err)
	}
	protocol, err := s.ReadByte()
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection request one protocol", err)
	}
	return &OpenConnectionRequestOne{Protocol: protocol, CandidateMTU: uint16(len(buf) + 28)}, nil
}

// OpenConnectionReplyOne tells the client the server's GUID and the MTU
// size it is willing to use, confirming the probe.
type OpenConnectionReplyOne struct {
	GUID     uint64
	Security bool
	Cookie   uint32
	MTUSize  uint16
}

func DecodeOpenConnectionReplyOne(buf []byte) (*OpenConnectionReplyOne, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply one id", err)
	}
	if _, err := s.ReadBytes(16); err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply one magic", err)
	}
	guid, err := s.ReadUint64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply one guid", err)
	}
	security, err := s.ReadBool()
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply one security", err)
	}
	var cookie uint32
	if security {
		cookie, err = s.ReadUint32(binary.BigEndian)
		if err != nil {
			return nil, newError(CodecOutOfBounds, "open connection reply one cookie", err)
		}
	}
	mtu, err := s.ReadUint16(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply one mtu", err)
	}
	return &OpenConnectionReplyOne{GUID: guid, Security: security, Cookie: cookie, MTUSize: mtu}, nil
}

// OpenConnectionRequestTwo carries the negotiated MTU and the client's
// GUID, addressed to the server's externally visible address.
type OpenConnectionRequestTwo struct {
	ServerAddress Address
	MTUSize       uint16
	GUID          uint64
}

func (r *OpenConnectionRequestTwo) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDOpenConnectionRequestTwo)
	s.WriteBytes(OfflineMessageMagic[:])
	WriteAddress(s, r.ServerAddress)
	s.WriteUint16(r.MTUSize, binary.BigEndian)
	s.WriteUint64(r.GUID, binary.BigEndian)
	return s.Bytes()
}

func DecodeOpenConnectionRequestTwo(buf []byte) (*OpenConnectionRequestTwo, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "open connection request two id", err)
	}
	if _, err := s.ReadBytes(16); err != nil {
		return nil, newError(CodecOutOfBounds, "open connection request two magic", err)
	}
	addr, err := ReadAddress(s)
	if err != nil {
		return nil, err
	}
	mtu, err := s.ReadUint16(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection request two mtu", err)
	}
	guid, err := s.ReadUint64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection request two guid", err)
	}
	return &OpenConnectionRequestTwo{ServerAddress: addr, MTUSize: mtu, GUID: guid}, nil
}

// OpenConnectionReplyTwo finalizes the offline handshake: the server's
// GUID, the client's address as the server observed it, the agreed MTU,
// and whether encryption is in effect.
type OpenConnectionReplyTwo struct {
	GUID              uint64
	ClientAddress     Address
	MTUSize           uint16
	EncryptionEnabled bool
}

func DecodeOpenConnectionReplyTwo(buf []byte) (*OpenConnectionReplyTwo, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply two id", err)
	}
	if _, err := s.ReadBytes(16); err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply two magic", err)
	}
	guid, err := s.ReadUint64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply two guid", err)
	}
	addr, err := ReadAddress(s)
	if err != nil {
		return nil, err
	}
	mtu, err := s.ReadUint16(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply two mtu", err)
	}
	enc, err := s.ReadBool()
	if err != nil {
		return nil, newError(CodecOutOfBounds, "open connection reply two encryption", err)
	}
	return &OpenConnectionReplyTwo{GUID: guid, ClientAddress: addr, MTUSize: mtu, EncryptionEnabled: enc}, nil
}

// ConnectionRequest is the first packet sent over a reliable-ordered
// Frame once the offline handshake completes (spec.md §4.7).
type ConnectionRequest struct {
	GUID      uint64
	Timestamp int64
	Security  bool
}

func (r *ConnectionRequest) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDConnectionRequest)
	s.WriteUint64(r.GUID, binary.BigEndian)
	s.WriteInt64(r.Timestamp, binary.BigEndian)
	s.WriteBool(r.Security)
	return s.Bytes()
}

func DecodeConnectionRequest(buf []byte) (*ConnectionRequest, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "connection request id", err)
	}
	guid, err := s.ReadUint64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connection request guid", err)
	}
	ts, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connection request timestamp", err)
	}
	security, err := s.ReadBool()
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connection request security", err)
	}
	return &ConnectionRequest{GUID: guid, Timestamp: ts, Security: security}, nil
}

// ConnectionRequestAccepted is the server's answer to ConnectionRequest:
// the client's observed address, a client ID, a fixed block of system
// addresses, and the echoed/new timestamps used for RTT bootstrapping.
type ConnectionRequestAccepted struct {
	ClientAddress   Address
	ClientID        uint16
	SystemAddresses [systemAddressCount]Address
	ClientSendTime  int64
	ServerSendTime  int64
}

func DecodeConnectionRequestAccepted(buf []byte) (*ConnectionRequestAccepted, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "connection request accepted id", err)
	}
	clientAddr, err := ReadAddress(s)
	if err != nil {
		return nil, err
	}
	clientID, err := s.ReadUint16(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connection request accepted client id", err)
	}
	var out ConnectionRequestAccepted
	out.ClientAddress = clientAddr
	out.ClientID = clientID
	for i := 0; i < systemAddressCount; i++ {
		addr, err := ReadAddress(s)
		if err != nil {
			return nil, err
		}
		out.SystemAddresses[i] = addr
	}
	clientSend, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connection request accepted client send time", err)
	}
	serverSend, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connection request accepted server send time", err)
	}
	out.ClientSendTime = clientSend
	out.ServerSendTime = serverSend
	return &out, nil
}

// NewIncomingConnection is the client's reply closing the handshake,
// echoing the server's address, a block of the client's own addresses,
// and the timestamps needed to finish the RTT bootstrap.
type NewIncomingConnection struct {
	ServerAddress     Address
	InternalAddresses [systemAddressCount]Address
	IncomingTimestamp int64
	ServerTimestamp   int64
}

func (n *NewIncomingConnection) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDNewIncomingConnection)
	WriteAddress(s, n.ServerAddress)
	for i := 0; i < systemAddressCount; i++ {
		WriteAddress(s, n.InternalAddresses[i])
	}
	s.WriteInt64(n.IncomingTimestamp, binary.BigEndian)
	s.WriteInt64(n.ServerTimestamp, binary.BigEndian)
	return s.Bytes()
}

func DecodeNewIncomingConnection(buf []byte) (*NewIncomingConnection, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "new incoming connection id", err)
	}
	serverAddr, err := ReadAddress(s)
	if err != nil {
		return nil, err
	}
	var out NewIncomingConnection
	out.ServerAddress = serverAddr
	for i := 0; i < systemAddressCount; i++ {
		addr, err := ReadAddress(s)
		if err != nil {
			return nil, err
		}
		out.InternalAddresses[i] = addr
	}
	incoming, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "new incoming connection incoming timestamp", err)
	}
	serverTS, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "new incoming connection server timestamp", err)
	}
	out.IncomingTimestamp = incoming
	out.ServerTimestamp = serverTS
	return &out, nil
}

// ConnectedPing/ConnectedPong are the in-session keepalive/RTT pair,
// carried as Frame payloads rather than bare offline datagrams.
type ConnectedPing struct {
	Timestamp int64
}

func (p *ConnectedPing) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDConnectedPing)
	s.WriteInt64(p.Timestamp, binary.BigEndian)
	return s.Bytes()
}

func DecodeConnectedPing(buf []byte) (*ConnectedPing, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "connected ping id", err)
	}
	ts, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connected ping timestamp", err)
	}
	return &ConnectedPing{Timestamp: ts}, nil
}

type ConnectedPong struct {
	PingTimestamp int64
	PongTimestamp int64
}

func (p *ConnectedPong) Encode() []byte {
	s := rbinary.NewEmpty()
	s.WriteByte(IDConnectedPong)
	s.WriteInt64(p.PingTimestamp, binary.BigEndian)
	s.WriteInt64(p.PongTimestamp, binary.BigEndian)
	return s.Bytes()
}

func DecodeConnectedPong(buf []byte) (*ConnectedPong, error) {
	s := rbinary.New(buf)
	if _, err := s.ReadByte(); err != nil {
		return nil, newError(CodecOutOfBounds, "connected pong id", err)
	}
	ping, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connected pong ping timestamp", err)
	}
	pong, err := s.ReadInt64(binary.BigEndian)
	if err != nil {
		return nil, newError(CodecOutOfBounds, "connected pong pong timestamp", err)
	}
	return &ConnectedPong{PingTimestamp: ping, PongTimestamp: pong}, nil
}

package raknet

import (
	"encoding/binary"
	"fmt"
	"net"

	rbinary "raknetclient/binary"
)

// afInet6 is the wire constant RakNet uses for the IPv6 address-family
// tag, independent of the platform's real AF_INET6 value (spec.md §4.2).
const afInet6 = 23

// Address is the wire-encoded form of an IP endpoint used throughout
// the handshake packets (system address lists, NewIncomingConnection).
type Address struct {
	IP   net.IP
	Port uint16
}

// NewAddress builds an Address from a net.UDPAddr, picking the version
// byte from whichever IP form is present.
func NewAddress(addr *net.UDPAddr) Address {
	return Address{IP: addr.IP, Port: uint16(addr.Port)}
}

func (a Address) version() byte {
	if a.IP.To4() != nil {
		return 4
	}
	return 6
}

// WriteAddress encodes addr per spec.md §4.2: IPv4 as four bitwise-NOT
// octets + big-endian port; IPv6 as the AF_INET6 tag, port, zero flow
// info, sixteen XOR-0xFFFF bytes, and zero scope.
func WriteAddress(s *rbinary.Stream, a Address) {
	v := a.version()
	s.WriteByte(v)
	if v == 4 {
		ip4 := a.IP.To4()
		for i := 0; i < 4; i++ {
			s.WriteByte(^ip4[i])
		}
		s.WriteUint16(a.Port, binary.BigEndian)
		return
	}

	ip16 := a.IP.To16()
	s.WriteUint16(afInet6, binary.BigEndian)
	s.WriteUint16(a.Port, binary.BigEndian)
	s.WriteUint32(0, binary.BigEndian) // flow info
	for i := 0; i < 16; i += 2 {
		group := binary.BigEndian.Uint16(ip16[i : i+2])
		s.WriteUint16(group^0xFFFF, binary.BigEndian)
	}
	s.WriteUint32(0, binary.BigEndian) // scope
}

// ReadAddress decodes an Address written by WriteAddress.
func ReadAddress(s *rbinary.Stream) (Address, error) {
	version, err := s.ReadByte()
	if err != nil {
		return Address{}, newError(CodecOutOfBounds, "address version", err)
	}

	switch version {
	case 4:
		octets, err := s.ReadBytes(4)
		if err != nil {
			return Address{}, newError(CodecOutOfBounds, "address ipv4 body", err)
		}
		ip := net.IPv4(^octets[0], ^octets[1], ^octets[2], ^octets[3])
		port, err := s.ReadUint16(binary.BigEndian)
		if err != nil {
			return Address{}, newError(CodecOutOfBounds, "address ipv4 port", err)
		}
		return Address{IP: ip, Port: port}, nil
	case 6:
		if _, err := s.ReadUint16(binary.BigEndian); err != nil { // AF_INET6 tag
			return Address{}, newError(CodecOutOfBounds, "address ipv6 family", err)
		}
		port, err := s.ReadUint16(binary.BigEndian)
		if err != nil {
			return Address{}, newError(CodecOutOfBounds, "address ipv6 port", err)
		}
		if _, err := s.ReadUint32(binary.BigEndian); err != nil { // flow info
			return Address{}, newError(CodecOutOfBounds, "address ipv6 flow info", err)
		}
		body, err := s.ReadBytes(16)
		if err != nil {
			return Address{}, newError(CodecOutOfBounds, "address ipv6 body", err)
		}
		ip := make(net.IP, 16)
		for i := 0; i < 16; i += 2 {
			group := binary.BigEndian.Uint16(body[i:i+2]) ^ 0xFFFF
			binary.BigEndian.PutUint16(ip[i:i+2], group)
		}
		if _, err := s.ReadUint32(binary.BigEndian); err != nil { // scope
			return Address{}, newError(CodecOutOfBounds, "address ipv6 scope", err)
		}
		return Address{IP: ip, Port: port}, nil
	default:
		return Address{}, newError(InvalidPacket, fmt.Sprintf("unsupported address version %d", version), nil)
	}
}

// UDPAddr converts the address back to a *net.UDPAddr.
func (a Address) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP, Port: int(a.Port)}
}

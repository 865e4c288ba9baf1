package raknet

import (
	"net"
	"testing"

	rbinary "raknetclient/binary"
)

func TestAddressRoundTripIPv4(t *testing.T) {
	addr := Address{IP: net.IPv4(192, 168, 1, 42), Port: 7777}
	s := rbinary.NewEmpty()
	WriteAddress(s, addr)

	decoded, err := ReadAddress(rbinary.New(s.Bytes()))
	if err != nil {
		t.Fatalf("ReadAddress: %v", err)
	}
	if !decoded.IP.Equal(addr.IP) || decoded.Port != addr.Port {
		t.Fatalf("decoded = %+v, want %+v", decoded, addr)
	}
}

func TestAddressRoundTripIPv6(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	addr := Address{IP: ip, Port: 19132}
	s := rbinary.NewEmpty()
	WriteAddress(s, addr)

	decoded, err := ReadAddress(rbinary.New(s.Bytes()))
	if err != nil {
		t.Fatalf("ReadAddress: %v", err)
	}
	if !decoded.IP.Equal(addr.IP) || decoded.Port != addr.Port {
		t.Fatalf("decoded = %+v, want %+v", decoded, addr)
	}
}

func TestAddressIPv4WireLength(t *testing.T) {
	addr := Address{IP: net.IPv4(1, 2, 3, 4), Port: 1}
	s := rbinary.NewEmpty()
	WriteAddress(s, addr)
	// version byte + 4 octets + 2-byte port
	if len(s.Bytes()) != 7 {
		t.Fatalf("encoded IPv4 address length = %d, want 7", len(s.Bytes()))
	}
}

func TestNewAddressFromUDPAddr(t *testing.T) {
	udp := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5000}
	addr := NewAddress(udp)
	back := addr.UDPAddr()
	if !back.IP.Equal(udp.IP) || back.Port != udp.Port {
		t.Fatalf("UDPAddr() round trip = %+v, want %+v", back, udp)
	}
}

func TestReadAddressRejectsUnknownVersion(t *testing.T) {
	if _, err := ReadAddress(rbinary.New([]byte{9, 0, 0})); err == nil {
		t.Fatalf("expected an error for an unsupported address version")
	}
}

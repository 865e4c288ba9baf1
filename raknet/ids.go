package raknet

// Leading-byte packet identifiers, per spec.md §6.
const (
	IDConnectedPing              byte = 0x00
	IDUnconnectedPing            byte = 0x01
	IDConnectedPong              byte = 0x03
	IDOpenConnectionRequestOne   byte = 0x05
	IDOpenConnectionReplyOne     byte = 0x06
	IDOpenConnectionRequestTwo   byte = 0x07
	IDOpenConnectionReplyTwo     byte = 0x08
	IDConnectionRequest          byte = 0x09
	IDConnectionRequestAccepted  byte = 0x10
	IDNewIncomingConnection      byte = 0x13
	IDDisconnect                 byte = 0x15
	IDUnconnectedPong            byte = 0x1C
	IDNack                       byte = 0xA0
	IDAck                        byte = 0xC0
	IDEncapsulated               byte = 0xFE

	// FrameSetIDFirst/FrameSetIDLast bound the 0x80..0x8F range: any
	// byte whose upper nibble is 0x8 is treated as a FrameSet, per
	// spec.md §4.4.
	FrameSetIDFirst byte = 0x80
	FrameSetIDLast  byte = 0x8F
)

// IsFrameSetID reports whether id's top nibble is 0x8, the wire rule
// spec.md §4.4 specifies for recognizing a FrameSet envelope.
func IsFrameSetID(id byte) bool {
	return id&0xF0 == 0x80
}

// OfflineMessageMagic is the 16-byte constant that appears after the ID
// byte in every unconnected/offline message (spec.md §4.2).
var OfflineMessageMagic = [16]byte{
	0x00, 0xFF, 0xFF, 0x00, 0xFE, 0xFE, 0xFE, 0xFE,
	0xFD, 0xFD, 0xFD, 0xFD, 0x12, 0x34, 0x56, 0x78,
}

// Priority controls whether the Framer flushes a frame's FrameSet
// immediately or lets it batch with others under the MTU budget.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityImmediate
)

// MTU bounds, per spec.md §6.
const (
	MinMTU     uint16 = 400
	MaxMTU     uint16 = 1500
	ProbeMTU   uint16 = 1492
	MTUStep2   uint16 = 1200
	MTUStep3   uint16 = 576
	FrameHeaderOverhead uint16 = 36
)

package raknet

import (
	"testing"
)

func TestFrameSetRoundTrip(t *testing.T) {
	fs := &FrameSet{
		Sequence: 42,
		Frames: []*Frame{
			{Reliability: Unreliable, Payload: []byte("a")},
			{Reliability: ReliableOrdered, ReliableFrameIndex: 0, OrderedFrameIndex: 0, OrderChannel: 0, Payload: []byte("b")},
		},
	}

	decoded, err := DecodeFrameSet(fs.Encode())
	if err != nil {
		t.Fatalf("DecodeFrameSet: %v", err)
	}
	if decoded.Sequence != 42 {
		t.Fatalf("Sequence = %d, want 42", decoded.Sequence)
	}
	if len(decoded.Frames) != 2 {
		t.Fatalf("len(Frames) = %d, want 2", len(decoded.Frames))
	}
	if string(decoded.Frames[0].Payload) != "a" || string(decoded.Frames[1].Payload) != "b" {
		t.Fatalf("frame payloads out of order: %q, %q", decoded.Frames[0].Payload, decoded.Frames[1].Payload)
	}
}

func TestDecodeFrameSetRejectsNonFrameSetID(t *testing.T) {
	if _, err := DecodeFrameSet([]byte{0x01, 0x00, 0x00, 0x00}); err == nil {
		t.Fatalf("expected an error decoding a non-FrameSet leading byte")
	}
}

func TestIsFrameSetIDCoversWholeNibbleRange(t *testing.T) {
	for id := 0x80; id <= 0x8F; id++ {
		if !IsFrameSetID(byte(id)) {
			t.Fatalf("IsFrameSetID(0x%02x) = false, want true", id)
		}
	}
	if IsFrameSetID(0x90) || IsFrameSetID(0x7F) {
		t.Fatalf("IsFrameSetID should reject bytes outside 0x80-0x8F")
	}
}

func TestDecodeFrameSetWithZeroLengthFrameDoesNotStopEarly(t *testing.T) {
	fs := &FrameSet{
		Sequence: 1,
		Frames: []*Frame{
			{Reliability: Unreliable},
			{Reliability: Unreliable, Payload: []byte("after empty")},
		},
	}
	decoded, err := DecodeFrameSet(fs.Encode())
	if err != nil {
		t.Fatalf("DecodeFrameSet: %v", err)
	}
	if len(decoded.Frames) != 2 {
		t.Fatalf("len(Frames) = %d, want 2 (zero-length frame should not truncate the set)", len(decoded.Frames))
	}
	if string(decoded.Frames[1].Payload) != "after empty" {
		t.Fatalf("second frame payload = %q, want %q", decoded.Frames[1].Payload, "after empty")
	}
}

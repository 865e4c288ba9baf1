package raknet

// Reliability is the tagged variant spec.md §3 defines over the eight
// RakNet delivery modes. The numeric values are wire-significant: they
// occupy the top 3 bits of a Frame header byte (§4.3).
type Reliability uint8

const (
	Unreliable                    Reliability = 0
	UnreliableSequenced           Reliability = 1
	Reliable                      Reliability = 2
	ReliableOrdered               Reliability = 3
	ReliableSequenced             Reliability = 4
	UnreliableWithAckReceipt      Reliability = 5
	ReliableWithAckReceipt        Reliability = 6
	ReliableOrderedWithAckReceipt Reliability = 7
)

// IsReliable reports whether the sender expects delivery to be
// guaranteed (no silent loss) for this reliability mode.
func (r Reliability) IsReliable() bool {
	switch r {
	case Reliable, ReliableOrdered, ReliableSequenced, ReliableWithAckReceipt, ReliableOrderedWithAckReceipt:
		return true
	}
	return false
}

// IsOrdered reports whether frames of this reliability participate in
// per-channel strict ordering (holdback buffering of out-of-order
// arrivals).
func (r Reliability) IsOrdered() bool {
	switch r {
	case ReliableOrdered, ReliableOrderedWithAckReceipt:
		return true
	}
	return false
}

// IsSequenced reports whether frames of this reliability participate in
// per-channel newest-wins delivery.
func (r Reliability) IsSequenced() bool {
	switch r {
	case UnreliableSequenced, ReliableSequenced:
		return true
	}
	return false
}

// RequiresOrderChannel reports whether frames of this reliability are
// delivered per order channel (ordered or sequenced). Frame.Write puts
// the order index and channel on the wire only for ordered modes.
func (r Reliability) RequiresOrderChannel() bool {
	return r.IsOrdered() || r.IsSequenced()
}

func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "Unreliable"
	case UnreliableSequenced:
		return "UnreliableSequenced"
	case Reliable:
		return "Reliable"
	case ReliableOrdered:
		return "ReliableOrdered"
	case ReliableSequenced:
		return "ReliableSequenced"
	case UnreliableWithAckReceipt:
		return "UnreliableWithAckReceipt"
	case ReliableWithAckReceipt:
		return "ReliableWithAckReceipt"
	case ReliableOrderedWithAckReceipt:
		return "ReliableOrderedWithAckReceipt"
	default:
		return "Unknown"
	}
}

// Package protocol implements the rdt frame layout and its binary codec.
//
// Every datagram starts with a fixed 16-byte header followed by at most
// MaxPayload bytes of data:
//
//	offset 0  : seq        int32
//	offset 4  : ack        int32
//	offset 8  : fin        uint16
//	offset 10 : corrupted  uint16
//	offset 12 : length     uint32
//	offset 16 : payload    length bytes
package protocol

import "fmt"

const (
	// HeaderSize is the fixed size of the frame header in bytes.
	HeaderSize = 16
	// MaxPayload is the payload capacity of a single frame.
	MaxPayload = 1024
	// MaxDatagram is the largest datagram a peer ever sends.
	MaxDatagram = HeaderSize + MaxPayload
)

// Flag values for Fin and Corrupted.
const (
	FlagUnset uint16 = 0
	FlagSet   uint16 = 1
)

// Frame is the unit exchanged over the transport.
type Frame struct {
	Seq       int32  // Byte offset of the first payload byte
	Ack       int32  // Cumulative byte offset acknowledged (seq + length on acks)
	Fin       uint16 // 1 = final unit, or FINACK on the ack path
	Corrupted uint16 // 1 = payload must be treated as unusable
	Length    uint32 // Declared payload length
	Payload   []byte
}

// IsFin reports whether the fin flag is set.
func (f Frame) IsFin() bool { return f.Fin == FlagSet }

// IsCorrupted reports whether the corruption flag is set.
func (f Frame) IsCorrupted() bool { return f.Corrupted == FlagSet }

// End returns the offset just past this unit, the value an ack for it carries.
func (f Frame) End() int32 { return f.Seq + int32(f.Length) }

// Validate checks the declared length against the payload capacity.
func (f Frame) Validate() error {
	if f.Length > MaxPayload {
		return fmt.Errorf("%w: length %d exceeds capacity %d", errMalformed, f.Length, MaxPayload)
	}
	return nil
}

func (f Frame) String() string {
	return fmt.Sprintf("seq=%d ack=%d fin=%d crc=%d len=%d", f.Seq, f.Ack, f.Fin, f.Corrupted, f.Length)
}

// NewData builds a data frame carrying payload at offset seq.
func NewData(seq int32, payload []byte, fin bool) Frame {
	f := Frame{
		Seq:     seq,
		Length:  uint32(len(payload)),
		Payload: payload,
	}
	if fin {
		f.Fin = FlagSet
	}
	return f
}

// NewAck builds the acknowledgement for a received frame. The ack echoes the
// received payload and corruption flag, as peers of this protocol expect.
func NewAck(received Frame, fin bool) Frame {
	ack := Frame{
		Seq:       received.Seq,
		Ack:       received.End(),
		Corrupted: received.Corrupted,
		Length:    received.Length,
		Payload:   received.Payload,
	}
	if fin {
		ack.Fin = FlagSet
	}
	return ack
}

// NotFound is the frame a sender answers with when the requested resource
// does not exist: seq 0 with fin set.
func NotFound() Frame {
	return Frame{Fin: FlagSet}
}

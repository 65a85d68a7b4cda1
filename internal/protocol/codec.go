package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/hannahoo/UCLA-CS-118/internal/core"
)

// Field offsets within the header.
const (
	offSeq       = 0
	offAck       = 4
	offFin       = 8
	offCorrupted = 10
	offLength    = 12

	// CorruptedOffset is exported so the transport can force the flag in an
	// already encoded datagram.
	CorruptedOffset = offCorrupted
)

var errMalformed = core.ErrMalformedHeader

// byteOrder matches the host order used by existing x86 peers.
var byteOrder = binary.LittleEndian

// EncodeHeader writes the five header fields in wire order.
func EncodeHeader(f Frame) [HeaderSize]byte {
	var h [HeaderSize]byte
	byteOrder.PutUint32(h[offSeq:], uint32(f.Seq))
	byteOrder.PutUint32(h[offAck:], uint32(f.Ack))
	byteOrder.PutUint16(h[offFin:], f.Fin)
	byteOrder.PutUint16(h[offCorrupted:], f.Corrupted)
	byteOrder.PutUint32(h[offLength:], f.Length)
	return h
}

// Encode returns the header followed by the payload.
func Encode(f Frame) []byte {
	h := EncodeHeader(f)
	buf := make([]byte, HeaderSize+len(f.Payload))
	copy(buf, h[:])
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// DecodeHeader reads the header fields from b. Payload is left nil.
func DecodeHeader(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, fmt.Errorf("%w: got %d bytes, need %d", errMalformed, len(b), HeaderSize)
	}
	return Frame{
		Seq:       int32(byteOrder.Uint32(b[offSeq:])),
		Ack:       int32(byteOrder.Uint32(b[offAck:])),
		Fin:       byteOrder.Uint16(b[offFin:]),
		Corrupted: byteOrder.Uint16(b[offCorrupted:]),
		Length:    byteOrder.Uint32(b[offLength:]),
	}, nil
}

// Decode parses a whole datagram. The payload aliases b and is bounded by the
// declared length, the bytes actually present and MaxPayload, whichever is
// smallest. Length itself is returned as declared.
func Decode(b []byte) (Frame, error) {
	f, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	body := b[HeaderSize:]
	n := len(body)
	if uint64(f.Length) < uint64(n) {
		n = int(f.Length)
	}
	if n > MaxPayload {
		n = MaxPayload
	}
	f.Payload = body[:n:n]
	return f, nil
}

// SetCorrupted forces the corruption flag in an encoded datagram.
func SetCorrupted(datagram []byte) {
	if len(datagram) < HeaderSize {
		return
	}
	byteOrder.PutUint16(datagram[CorruptedOffset:], FlagSet)
}

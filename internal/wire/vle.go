// Package wire implements the pieces of the datagram wire format that do not
// need a live connection to operate on: the variable-length integer codec,
// PacketID arithmetic, and the datagram header, message header and ack
// message codecs. The root package's packer.go/parser.go supply the
// connection state (reliable-message-number base, transfer ids etc.) and
// build datagrams on top of these primitives.
package wire

import "errors"

// ErrTruncated is returned by this package's decoders when the buffer ends
// before a complete encoded value or header could be read.
var ErrTruncated = errors.New("knet: truncated VLE-encoded integer")

// VLE8_16 encodes unsigned values up to 15 bits using 1 or 2 bytes. Byte 0's
// top bit is a continuation flag; if set, a second byte follows carrying the
// remaining 8 bits of value. Used for in-order deltas and reliable-message-
// number deltas within a datagram.
type VLE8_16 struct{}

// EncodeVLE8_16 appends the VLE8_16 encoding of v to dst and returns the
// extended slice. v must fit in 15 bits.
func EncodeVLE8_16(dst []byte, v uint32) []byte {
	if v < 0x80 {
		return append(dst, byte(v))
	}
	return append(dst, byte(v&0x7F)|0x80, byte(v>>7))
}

// DecodeVLE8_16 reads a VLE8_16-encoded value from the front of src,
// returning the value and the number of bytes consumed.
func DecodeVLE8_16(src []byte) (uint32, int, error) {
	if len(src) < 1 {
		return 0, 0, ErrTruncated
	}
	b0 := src[0]
	if b0&0x80 == 0 {
		return uint32(b0), 1, nil
	}
	if len(src) < 2 {
		return 0, 0, ErrTruncated
	}
	return uint32(b0&0x7F) | uint32(src[1])<<7, 2, nil
}

// EncodedLenVLE8_16 returns how many bytes EncodeVLE8_16 would use for v.
func EncodedLenVLE8_16(v uint32) int {
	if v < 0x80 {
		return 1
	}
	return 2
}

// EncodeVLE8_16_32 appends a three-tier VLE encoding of v to dst: 1 byte for
// values under 0x80, 2 bytes for values under 0x4000, 5 bytes otherwise
// (the full 32 bits). Byte 0 and (when present) byte 1 each reserve their
// top bit as a continuation flag. Used for message IDs and fragment counts;
// the well-known internal message ids (message.go's MsgIDPingRequest etc.)
// occupy the top of the 32-bit range, so this tier must round-trip all 32
// bits, not just the low 30.
func EncodeVLE8_16_32(dst []byte, v uint32) []byte {
	switch {
	case v < 0x80:
		return append(dst, byte(v))
	case v < 0x4000:
		return append(dst, byte(v&0x7F)|0x80, byte(v>>7))
	default:
		return append(dst, byte(v&0x7F)|0x80, byte((v>>7)&0x7F)|0x80, byte(v>>14), byte(v>>22), byte(v>>30))
	}
}

// DecodeVLE8_16_32 reads a VLE8_16_32-encoded value from the front of src.
func DecodeVLE8_16_32(src []byte) (uint32, int, error) {
	if len(src) < 1 {
		return 0, 0, ErrTruncated
	}
	b0 := src[0]
	if b0&0x80 == 0 {
		return uint32(b0), 1, nil
	}
	if len(src) < 2 {
		return 0, 0, ErrTruncated
	}
	b1 := src[1]
	if b1&0x80 == 0 {
		return uint32(b0&0x7F) | uint32(b1)<<7, 2, nil
	}
	if len(src) < 5 {
		return 0, 0, ErrTruncated
	}
	v := uint32(b0&0x7F) | uint32(b1&0x7F)<<7 | uint32(src[2])<<14 | uint32(src[3])<<22 | uint32(src[4])<<30
	return v, 5, nil
}

// EncodedLenVLE8_16_32 returns how many bytes EncodeVLE8_16_32 would use for v.
func EncodedLenVLE8_16_32(v uint32) int {
	switch {
	case v < 0x80:
		return 1
	case v < 0x4000:
		return 2
	default:
		return 5
	}
}

// EncodeVLE16_32 appends a two-tier VLE encoding of v to dst: 2 bytes for
// values under 2^15, 4 bytes otherwise (up to 31 bits). Used for the base
// reliable-message-number carried once per reliable datagram.
func EncodeVLE16_32(dst []byte, v uint32) []byte {
	if v < 0x8000 {
		return append(dst, byte(v), byte(v>>8))
	}
	lo := uint16(v) | 0x8000
	hi := uint16(v >> 15)
	return append(dst, byte(lo), byte(lo>>8), byte(hi), byte(hi>>8))
}

// DecodeVLE16_32 reads a VLE16_32-encoded value from the front of src.
func DecodeVLE16_32(src []byte) (uint32, int, error) {
	if len(src) < 2 {
		return 0, 0, ErrTruncated
	}
	lo := uint16(src[0]) | uint16(src[1])<<8
	if lo&0x8000 == 0 {
		return uint32(lo), 2, nil
	}
	if len(src) < 4 {
		return 0, 0, ErrTruncated
	}
	hi := uint16(src[2]) | uint16(src[3])<<8
	return uint32(lo&0x7FFF) | uint32(hi)<<15, 4, nil
}

// EncodedLenVLE16_32 returns how many bytes EncodeVLE16_32 would use for v.
func EncodedLenVLE16_32(v uint32) int {
	if v < 0x8000 {
		return 2
	}
	return 4
}

package wire

import "encoding/binary"

// AckMessage is the fixed 7-byte ack message: a base packet id plus a
// 32-bit bitmask covering the following 32 packet ids.
type AckMessage struct {
	Base    PacketID
	Bitmask uint32
}

// EncodeAckMessage appends a's wire encoding to dst. Unlike the datagram
// header's 6-bit low part (packed alongside flag bits), the ack message's
// low byte is a full 8 bits; together with the 16-bit high part this spans
// 24 bits of representation for a 22-bit id, which round-trips exactly.
func EncodeAckMessage(dst []byte, a AckMessage) []byte {
	id := uint32(a.Base)
	high := uint16(id >> 8)
	dst = append(dst, byte(id), byte(high), byte(high>>8))
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], a.Bitmask)
	return append(dst, b[:]...)
}

// DecodeAckMessage parses a 7-byte ack message from the front of src.
func DecodeAckMessage(src []byte) (AckMessage, int, error) {
	if len(src) < AckMessageBytes {
		return AckMessage{}, 0, ErrTruncated
	}
	low := uint32(src[0])
	high := uint32(src[1]) | uint32(src[2])<<8
	id := PacketID((high<<8 | low) & PacketIDMask)
	return AckMessage{
		Base:    id,
		Bitmask: binary.LittleEndian.Uint32(src[3:7]),
	}, AckMessageBytes, nil
}

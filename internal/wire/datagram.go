package wire

// DatagramHeader is the 3-byte-plus-optional-fields packet header.
type DatagramHeader struct {
	InOrderPresent       bool
	Reliable             bool
	PacketID             PacketID
	BaseReliableMsgNum   uint32
}

// EncodeDatagramHeader appends h's wire encoding to dst and returns the
// result.
func EncodeDatagramHeader(dst []byte, h DatagramHeader) []byte {
	byte0 := Low6(h.PacketID)
	if h.InOrderPresent {
		byte0 |= 0x80
	}
	if h.Reliable {
		byte0 |= 0x40
	}
	high := High16(h.PacketID)
	dst = append(dst, byte0, byte(high), byte(high>>8))
	if h.Reliable {
		dst = EncodeVLE16_32(dst, h.BaseReliableMsgNum)
	}
	return dst
}

// DecodeDatagramHeader parses a datagram header from the front of src. It
// returns the header, the number of bytes consumed, and an error if src is
// too short.
func DecodeDatagramHeader(src []byte) (DatagramHeader, int, error) {
	if len(src) < DatagramHeaderMinBytes {
		return DatagramHeader{}, 0, ErrTruncated
	}
	byte0 := src[0]
	h := DatagramHeader{
		InOrderPresent: byte0&0x80 != 0,
		Reliable:       byte0&0x40 != 0,
	}
	low := byte0 & DatagramLow6Mask
	high := uint16(src[1]) | uint16(src[2])<<8
	h.PacketID = FromParts(low, high)
	n := DatagramHeaderMinBytes
	if h.Reliable {
		base, consumed, err := DecodeVLE16_32(src[n:])
		if err != nil {
			return DatagramHeader{}, 0, err
		}
		h.BaseReliableMsgNum = base
		n += consumed
	}
	return h, n, nil
}

// MessageHeader is the 2-byte per-message header, plus the variable fields
// that follow it.
type MessageHeader struct {
	FirstFragment bool
	Fragmented    bool
	InOrder       bool
	Reliable      bool
	ContentLen    uint16 // 11 bits

	ReliableDelta uint32 // present if Reliable
	FragmentTotal uint32 // present if FirstFragment
	TransferID    uint8  // present if Fragmented
	FragmentIndex uint32 // present if Fragmented && !FirstFragment
	MessageID     uint32 // present if !Fragmented || FirstFragment
}

// EncodeMessageHeader appends h's wire encoding (header plus variable
// fields, not including the payload) to dst.
func EncodeMessageHeader(dst []byte, h MessageHeader) []byte {
	var bits uint16
	if h.FirstFragment {
		bits |= 1 << 15
	}
	if h.Fragmented {
		bits |= 1 << 14
	}
	if h.InOrder {
		bits |= 1 << 13
	}
	if h.Reliable {
		bits |= 1 << 12
	}
	bits |= h.ContentLen & MessageContentLenMask
	dst = append(dst, byte(bits), byte(bits>>8))

	if h.Reliable {
		dst = EncodeVLE8_16(dst, h.ReliableDelta)
	}
	if h.FirstFragment {
		dst = EncodeVLE8_16_32(dst, h.FragmentTotal)
	}
	if h.Fragmented {
		dst = append(dst, h.TransferID)
	}
	if h.Fragmented && !h.FirstFragment {
		dst = EncodeVLE8_16_32(dst, h.FragmentIndex)
	}
	if !h.Fragmented || h.FirstFragment {
		dst = EncodeVLE8_16_32(dst, h.MessageID)
	}
	return dst
}

// DecodeMessageHeader parses a message header and its variable fields from
// the front of src, returning the header and the number of bytes consumed
// (not including the payload that follows).
func DecodeMessageHeader(src []byte) (MessageHeader, int, error) {
	if len(src) < MessageHeaderBytes {
		return MessageHeader{}, 0, ErrTruncated
	}
	bits := uint16(src[0]) | uint16(src[1])<<8
	h := MessageHeader{
		FirstFragment: bits&(1<<15) != 0,
		Fragmented:    bits&(1<<14) != 0,
		InOrder:       bits&(1<<13) != 0,
		Reliable:      bits&(1<<12) != 0,
		ContentLen:    bits & MessageContentLenMask,
	}
	n := MessageHeaderBytes

	if h.Reliable {
		v, consumed, err := DecodeVLE8_16(src[n:])
		if err != nil {
			return MessageHeader{}, 0, err
		}
		h.ReliableDelta = v
		n += consumed
	}
	if h.FirstFragment {
		v, consumed, err := DecodeVLE8_16_32(src[n:])
		if err != nil {
			return MessageHeader{}, 0, err
		}
		h.FragmentTotal = v
		n += consumed
	}
	if h.Fragmented {
		if len(src) < n+1 {
			return MessageHeader{}, 0, ErrTruncated
		}
		h.TransferID = src[n]
		n++
	}
	if h.Fragmented && !h.FirstFragment {
		v, consumed, err := DecodeVLE8_16_32(src[n:])
		if err != nil {
			return MessageHeader{}, 0, err
		}
		h.FragmentIndex = v
		n += consumed
	}
	if !h.Fragmented || h.FirstFragment {
		v, consumed, err := DecodeVLE8_16_32(src[n:])
		if err != nil {
			return MessageHeader{}, 0, err
		}
		h.MessageID = v
		n += consumed
	}
	return h, n, nil
}

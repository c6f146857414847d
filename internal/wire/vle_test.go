package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVLE8_16RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0x7F, 0x80, 0x81, 0x7FFF}
	for _, v := range values {
		enc := EncodeVLE8_16(nil, v)
		require.Len(t, enc, EncodedLenVLE8_16(v))
		got, n, err := DecodeVLE8_16(enc)
		require.NoError(t, err)
		assert.Equal(t, len(enc), n)
		assert.Equal(t, v, got)
	}
}

func TestVLE8_16_32RoundTrip(t *testing.T) {
	values := []uint32{
		0, 1, 0x7F, 0x80, 0x3FFF, 0x4000, 0x4001, 1 << 29, 1 << 30, 1<<32 - 1,
		// the well-known internal message ids occupy the top of the 32-bit
		// range and must round-trip exactly, or internal dispatch breaks.
		0xFFFFFFF0, 0xFFFFFFF1, 0xFFFFFFF2, 0xFFFFFFF3, 0xFFFFFFF4, 0xFFFFFFF5,
	}
	for _, v := range values {
		enc := EncodeVLE8_16_32(nil, v)
		require.Len(t, enc, EncodedLenVLE8_16_32(v))
		got, n, err := DecodeVLE8_16_32(enc)
		require.NoError(t, err)
		assert.Equal(t, len(enc), n)
		assert.Equal(t, v, got)
	}
}

func TestVLE16_32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 0x7FFF, 0x8000, 0x8001, 1<<31 - 1}
	for _, v := range values {
		enc := EncodeVLE16_32(nil, v)
		require.Len(t, enc, EncodedLenVLE16_32(v))
		got, n, err := DecodeVLE16_32(enc)
		require.NoError(t, err)
		assert.Equal(t, len(enc), n)
		assert.Equal(t, v, got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := DecodeVLE8_16([]byte{0x80})
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = DecodeVLE8_16_32(nil)
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = DecodeVLE16_32([]byte{0x00})
	assert.ErrorIs(t, err, ErrTruncated)
}

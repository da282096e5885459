package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramePackerRoundTrip(t *testing.T) {
	in := Frame{
		Width:     2,
		Height:    1,
		Checksum:  0xDEADBEEF01,
		Truncated: true,
		RGBA:      []byte{1, 2, 3, 255, 4, 5, 6, 255},
	}

	for _, compression := range []string{"", "none", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			p, err := NewFramePacker(compression)
			require.NoError(t, err)
			defer func() { _ = p.Close() }()

			msg := p.Pack(in)
			assert.Equal(t, byte(opDecode), msg[0])
			assert.Equal(t, compression == "zstd", msg[17]&frameFlagZstd != 0)

			out, err := UnpackFrame(msg)
			require.NoError(t, err)
			assert.Equal(t, in, *out)
		})
	}
}

func TestNewFramePackerUnknown(t *testing.T) {
	_, err := NewFramePacker("gzip")
	assert.ErrorContains(t, err, "gzip")
}

func TestUnpackFrameInvalid(t *testing.T) {
	p, err := NewFramePacker("none")
	require.NoError(t, err)
	good := p.Pack(Frame{Width: 1, Height: 1, RGBA: []byte{0, 0, 0, 255}})

	corruptZstd := append([]byte(nil), good[:frameHeaderSize]...)
	corruptZstd[17] |= frameFlagZstd
	corruptZstd = append(corruptZstd, 0x01, 0x02, 0x03)

	tests := []struct {
		name string
		msg  []byte
	}{
		{name: "empty", msg: nil},
		{name: "short header", msg: good[:frameHeaderSize-1]},
		{name: "wrong op", msg: append([]byte{opEncode}, good[1:]...)},
		{name: "payload size mismatch", msg: good[:len(good)-1]},
		{name: "corrupt zstd", msg: corruptZstd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnpackFrame(tt.msg)
			assert.ErrorIs(t, err, ErrInvalidFrame)
		})
	}
}

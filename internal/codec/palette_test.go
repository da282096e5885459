package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

func TestPaletteSize(t *testing.T) {
	assert.Equal(t, 8, PaletteSize(Bits1))
	assert.Equal(t, 64, PaletteSize(Bits4))
	assert.Equal(t, 1024, PaletteSize(Bits8))
	assert.Zero(t, PaletteSize(Bits16))
	assert.Zero(t, PaletteSize(Bits24))
	assert.Zero(t, PaletteSize(Bits32))
}

func TestEncodePalette(t *testing.T) {
	var buf bytes.Buffer
	colors := []pixbuf.RGB{{R: 1, G: 2, B: 3}, {R: 0xFF}}

	require.NoError(t, EncodePalette(&buf, colors, 4))

	assert.Equal(t, []byte{
		3, 2, 1, 0,
		0, 0, 0xFF, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}, buf.Bytes())
}

func TestPaletteRoundTrip(t *testing.T) {
	colors := []pixbuf.RGB{{R: 10, G: 20, B: 30}, {R: 40, G: 50, B: 60}, {R: 70, G: 80, B: 90}}

	var buf bytes.Buffer
	require.NoError(t, EncodePalette(&buf, colors, 16))
	assert.Equal(t, PaletteSize(Bits4), buf.Len())

	got, err := DecodePalette(&buf, 16)
	require.NoError(t, err)
	assert.Equal(t, colors, got[:3])
	assert.Equal(t, pixbuf.RGB{}, got[15])
}

func TestDecodePaletteTruncated(t *testing.T) {
	_, err := DecodePalette(bytes.NewReader(make([]byte, 7)), 2)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

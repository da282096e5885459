package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

// palettedImage builds a width x height image using colors distinct palette
// entries, cycling through them in a pattern with some horizontal runs.
func palettedImage(width, height, colors int) *pixbuf.Buffer {
	img := pixbuf.NewPaletted(width, height)
	for i := 0; i < colors; i++ {
		img.Allocate(pixbuf.RGB{R: uint8(i), G: uint8(i * 7), B: uint8(255 - i)})
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetIndex(x, y, (x/2+y*3)%colors)
		}
	}
	return img
}

func truecolorImage(width, height int) *pixbuf.Buffer {
	img := pixbuf.NewTruecolor(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGB(x, y, pixbuf.RGB{R: uint8(x * 30), G: uint8(y * 40), B: uint8(x + y)})
		}
	}
	return img
}

func TestSelectDepth(t *testing.T) {
	tests := []struct {
		colors int
		depth  BitCount
		slots  int
	}{
		{colors: 0, depth: Bits24, slots: 0},
		{colors: 1, depth: Bits1, slots: 2},
		{colors: 2, depth: Bits1, slots: 2},
		{colors: 3, depth: Bits4, slots: 16},
		{colors: 16, depth: Bits4, slots: 16},
		{colors: 17, depth: Bits8, slots: 256},
		{colors: 256, depth: Bits8, slots: 256},
		{colors: 257, depth: Bits24, slots: 0},
	}

	for _, tt := range tests {
		depth, slots := SelectDepth(tt.colors)
		assert.Equal(t, tt.depth, depth, "%d colors", tt.colors)
		assert.Equal(t, tt.slots, slots, "%d colors", tt.colors)
	}
}

func TestParseCompressionMode(t *testing.T) {
	for in, want := range map[string]CompressionMode{
		"":           CompressNone,
		"none":       CompressNone,
		"Legacy":     CompressLegacy,
		"rle":        CompressRunLength,
		"run-length": CompressRunLength,
	} {
		got, err := ParseCompressionMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCompressionMode("lzw")
	assert.Error(t, err)
	assert.Equal(t, "rle", CompressRunLength.String())
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		img         *pixbuf.Buffer
		opts        Options
		bitCount    BitCount
		compression Compression
	}{
		{name: "1-bit", img: palettedImage(13, 5, 2), bitCount: Bits1, compression: CompressionRGB},
		{name: "4-bit", img: palettedImage(7, 4, 11), bitCount: Bits4, compression: CompressionRGB},
		{name: "8-bit", img: palettedImage(9, 6, 200), bitCount: Bits8, compression: CompressionRGB},
		{name: "24-bit", img: truecolorImage(5, 3), bitCount: Bits24, compression: CompressionRGB},
		{name: "32-bit", img: truecolorImage(5, 3), opts: Options{Truecolor32: true}, bitCount: Bits32, compression: CompressionRGB},
		{
			name:        "8-bit legacy rle",
			img:         palettedImage(11, 4, 40),
			opts:        Options{Compression: CompressLegacy},
			bitCount:    Bits8,
			compression: CompressionRLE8,
		},
		{
			name:        "8-bit run-length",
			img:         palettedImage(11, 4, 40),
			opts:        Options{Compression: CompressRunLength},
			bitCount:    Bits8,
			compression: CompressionRLE8,
		},
		{
			name:        "4-bit run-length",
			img:         palettedImage(11, 4, 9),
			opts:        Options{Compression: CompressRunLength},
			bitCount:    Bits4,
			compression: CompressionRLE4,
		},
		{
			name:        "4-bit legacy stays uncompressed",
			img:         palettedImage(11, 4, 9),
			opts:        Options{Compression: CompressLegacy},
			bitCount:    Bits4,
			compression: CompressionRGB,
		},
		{
			name:        "1-bit run-length stays uncompressed",
			img:         palettedImage(11, 4, 2),
			opts:        Options{Compression: CompressRunLength},
			bitCount:    Bits1,
			compression: CompressionRGB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewEncoder(tt.opts).Encode(&buf, tt.img))

			h, err := DecodeHeader(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, tt.bitCount, h.BitCount)
			assert.Equal(t, tt.compression, h.Compression)
			assert.Equal(t, uint32(buf.Len()), h.FileSize)
			assert.Equal(t, uint32(HeaderSize+PaletteSize(tt.bitCount)), h.DataOffset, "palette size invariant")
			assert.Equal(t, uint32(buf.Len())-h.DataOffset, h.ImageSize)

			if tt.compression == CompressionRGB {
				rowSize := RowSize(tt.img.Width(), tt.bitCount)
				assert.Zero(t, rowSize%4, "row alignment invariant")
				assert.Equal(t, uint32(rowSize*tt.img.Height()), h.ImageSize)
			}

			got, err := Decode(buf.Bytes())
			require.NoError(t, err)
			assert.True(t, tt.img.Equal(got), "decoded pixels differ")
		})
	}
}

func TestEncodeCompressedFlag(t *testing.T) {
	img := palettedImage(6, 2, 20)

	data, err := Encode(img, true)
	require.NoError(t, err)

	h, err := DecodeHeader(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, CompressionRLE8, h.Compression)

	rows := make([][]uint8, 0, 2)
	for y := 1; y >= 0; y-- {
		row := make([]uint8, 6)
		for x := range row {
			row[x] = uint8(img.IndexAt(x, y))
		}
		rows = append(rows, row)
	}
	assert.Equal(t, EncodeRLE8Legacy(rows), data[h.DataOffset:])

	plain, err := Encode(img, false)
	require.NoError(t, err)
	h, err = DecodeHeader(bytes.NewReader(plain))
	require.NoError(t, err)
	assert.Equal(t, CompressionRGB, h.Compression)
}

func TestEncodeBottomUp(t *testing.T) {
	img := pixbuf.NewPaletted(1, 2)
	img.Allocate(pixbuf.RGB{})
	img.Allocate(pixbuf.RGB{R: 255, G: 255, B: 255})
	img.SetIndex(0, 0, 1)

	data, err := Encode(img, false)
	require.NoError(t, err)

	pixels := data[HeaderSize+PaletteSize(Bits1):]
	assert.Equal(t, []byte{0x00, 0, 0, 0, 0x80, 0, 0, 0}, pixels, "bottom row first")
}

func TestEncodeDropsTransparent(t *testing.T) {
	img := pixbuf.NewPaletted(3, 1)
	red := img.Allocate(pixbuf.RGB{R: 255})
	green := img.Allocate(pixbuf.RGB{G: 255})
	blue := img.Allocate(pixbuf.RGB{B: 255})
	img.SetTransparent(green)
	img.SetIndex(0, 0, red)
	img.SetIndex(1, 0, green)
	img.SetIndex(2, 0, blue)

	data, err := Encode(img, false)
	require.NoError(t, err)

	h, err := DecodeHeader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Bits1, h.BitCount, "two colors after dropping the transparent entry")

	pal, err := DecodePalette(bytes.NewReader(data[HeaderSize:]), 2)
	require.NoError(t, err)
	assert.Equal(t, []pixbuf.RGB{{R: 255}, {B: 255}}, pal)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, pixbuf.RGB{R: 255}, got.RGBAt(0, 0))
	assert.Equal(t, pixbuf.RGB{R: 255}, got.RGBAt(1, 0), "transparent pixel maps to index 0")
	assert.Equal(t, pixbuf.RGB{B: 255}, got.RGBAt(2, 0))
}

func TestEncodeManyColorsFallsBackToTruecolor(t *testing.T) {
	img := palettedImage(20, 20, 300)

	var buf bytes.Buffer
	require.NoError(t, NewEncoder(Options{Compression: CompressLegacy}).Encode(&buf, img))

	h, err := DecodeHeader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, Bits24, h.BitCount)
	assert.Equal(t, CompressionRGB, h.Compression)

	got, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.True(t, img.Equal(got))
}

func TestEncodeEmptyImage(t *testing.T) {
	_, err := Encode(pixbuf.NewTruecolor(0, 4), false)
	assert.ErrorIs(t, err, ErrFormat)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestEncodeWriteError(t *testing.T) {
	err := NewEncoder(Options{}).Encode(failingWriter{}, truecolorImage(2, 2))
	assert.ErrorContains(t, err, "disk full")
}

func TestRunLengthBeatsLegacy(t *testing.T) {
	img := pixbuf.NewPaletted(64, 16)
	for i := 0; i < 20; i++ {
		img.Allocate(pixbuf.RGB{R: uint8(i * 12)})
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 64; x++ {
			img.SetIndex(x, y, y)
		}
	}

	var legacy, rle bytes.Buffer
	require.NoError(t, NewEncoder(Options{Compression: CompressLegacy}).Encode(&legacy, img))
	require.NoError(t, NewEncoder(Options{Compression: CompressRunLength}).Encode(&rle, img))

	assert.Less(t, rle.Len(), legacy.Len())
}

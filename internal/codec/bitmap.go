package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

// Source is the read side of a pixel buffer, as consumed by the encoder.
type Source interface {
	Width() int
	Height() int
	// ColorsTotal is the palette length; 0 means the source is truecolor.
	ColorsTotal() int
	// Transparent is the transparent palette index, or pixbuf.NotFound.
	Transparent() int
	ColorAt(index int) pixbuf.RGB
	IndexAt(x, y int) int
	RGBAt(x, y int) pixbuf.RGB
}

// CompressionMode selects how indexed pixel data is compressed on encode.
type CompressionMode int

const (
	// CompressNone writes uncompressed rows.
	CompressNone CompressionMode = iota
	// CompressLegacy writes BI_RLE8 as absolute-mode tokens only, for 8-bit
	// images. Other depths are written uncompressed.
	CompressLegacy
	// CompressRunLength writes BI_RLE8 or BI_RLE4 with run detection, for
	// 8-bit and 4-bit images. Other depths are written uncompressed.
	CompressRunLength
)

func (m CompressionMode) String() string {
	switch m {
	case CompressNone:
		return "none"
	case CompressLegacy:
		return "legacy"
	case CompressRunLength:
		return "rle"
	}
	return fmt.Sprintf("CompressionMode(%d)", int(m))
}

// ParseCompressionMode parses "none", "legacy" or "rle".
func ParseCompressionMode(s string) (CompressionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressNone, nil
	case "legacy":
		return CompressLegacy, nil
	case "rle", "runlength", "run-length":
		return CompressRunLength, nil
	}
	return CompressNone, fmt.Errorf("unknown compression mode %q", s)
}

// Options configures an Encoder.
type Options struct {
	Compression CompressionMode
	// Truecolor32 writes truecolor images as 32-bit BI_RGB instead of 24-bit.
	Truecolor32 bool
}

// SelectDepth picks the bit depth and palette slot count for an image with
// colorCount distinct palette colors. Zero colors, or more than 256, mean a
// truecolor image.
func SelectDepth(colorCount int) (BitCount, int) {
	switch {
	case colorCount <= 0:
		return Bits24, 0
	case colorCount <= 2:
		return Bits1, 2
	case colorCount <= 16:
		return Bits4, 16
	case colorCount <= 256:
		return Bits8, 256
	}
	return Bits24, 0
}

// Encoder writes BMP streams. It holds only options and may be shared.
type Encoder struct {
	opts Options
}

// NewEncoder creates an encoder.
func NewEncoder(opts Options) *Encoder {
	return &Encoder{opts: opts}
}

// Encode serializes src. Only I/O errors on w are returned for a well-formed
// source.
func Encode(src Source, compressed bool) ([]byte, error) {
	opts := Options{}
	if compressed {
		opts.Compression = CompressLegacy
	}

	var buf bytes.Buffer
	if err := NewEncoder(opts).Encode(&buf, src); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Encode writes src to w as a complete BMP file.
func (e *Encoder) Encode(w io.Writer, src Source) error {
	width, height := src.Width(), src.Height()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: cannot encode a %dx%d image", ErrFormat, width, height)
	}

	colors, indexMap := buildPalette(src)
	bitCount, slots := SelectDepth(len(colors))
	if !bitCount.Indexed() {
		colors = nil
		if e.opts.Truecolor32 {
			bitCount = Bits32
		}
	}

	compression := CompressionRGB
	var data []byte

	if bitCount.Indexed() {
		rows := indexRows(src, indexMap)
		switch {
		case e.opts.Compression == CompressLegacy && bitCount == Bits8:
			compression, data = CompressionRLE8, EncodeRLE8Legacy(rows)
		case e.opts.Compression == CompressRunLength && bitCount == Bits8:
			compression, data = CompressionRLE8, EncodeRLE8(rows)
		case e.opts.Compression == CompressRunLength && bitCount == Bits4:
			compression, data = CompressionRLE4, EncodeRLE4(rows)
		default:
			data = make([]byte, 0, RowSize(width, bitCount)*height)
			for _, row := range rows {
				data = append(data, PackRow(row, bitCount)...)
			}
		}
	} else {
		data = make([]byte, 0, RowSize(width, bitCount)*height)
		pixels := make([]pixbuf.RGB, width)
		for y := height - 1; y >= 0; y-- {
			for x := range pixels {
				pixels[x] = src.RGBAt(x, y)
			}
			data = append(data, PackTruecolorRow(pixels, bitCount)...)
		}
	}

	bw := bufio.NewWriter(w)

	if _, err := bw.Write(EncodeHeader(width, height, bitCount, compression, PaletteSize(bitCount), len(data))); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if bitCount.Indexed() {
		if err := EncodePalette(bw, colors, slots); err != nil {
			return fmt.Errorf("write palette: %w", err)
		}
	}

	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("write pixel data: %w", err)
	}

	return bw.Flush()
}

// buildPalette returns the palette to write and a map from source index to
// written index. The transparent entry, if any, is left out: later entries
// shift down by one and transparent pixels map to index 0.
func buildPalette(src Source) ([]pixbuf.RGB, []int) {
	total := src.ColorsTotal()
	transparent := src.Transparent()

	colors := make([]pixbuf.RGB, 0, total)
	indexMap := make([]int, total)
	for i := 0; i < total; i++ {
		if i == transparent {
			continue
		}
		indexMap[i] = len(colors)
		colors = append(colors, src.ColorAt(i))
	}

	return colors, indexMap
}

// indexRows collects the written palette index of every pixel, bottom row
// first.
func indexRows(src Source, indexMap []int) [][]uint8 {
	width, height := src.Width(), src.Height()
	rows := make([][]uint8, 0, height)

	for y := height - 1; y >= 0; y-- {
		row := make([]uint8, width)
		for x := range row {
			i := src.IndexAt(x, y)
			if i >= 0 && i < len(indexMap) {
				row[x] = uint8(indexMap[i]) // #nosec G115
			}
		}
		rows = append(rows, row)
	}

	return rows
}

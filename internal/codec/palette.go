package codec

import (
	"fmt"
	"io"

	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

const paletteEntrySize = 4

// PaletteSize returns the palette byte length written for a bit count:
// 2^bitCount entries of 4 bytes for indexed depths, 0 otherwise.
func PaletteSize(bitCount BitCount) int {
	if !bitCount.Indexed() {
		return 0
	}
	return (1 << bitCount) * paletteEntrySize
}

// EncodePalette writes slotCount entries as (blue, green, red, 0). Slots past
// len(colors) are written as zeros; colors past slotCount are dropped.
func EncodePalette(w io.Writer, colors []pixbuf.RGB, slotCount int) error {
	buf := make([]byte, slotCount*paletteEntrySize)
	for i := 0; i < slotCount && i < len(colors); i++ {
		c := colors[i]
		buf[i*4] = c.B
		buf[i*4+1] = c.G
		buf[i*4+2] = c.R
	}

	_, err := w.Write(buf)
	return err
}

// DecodePalette reads colorCount (blue, green, red, reserved) entries.
func DecodePalette(r io.Reader, colorCount int) ([]pixbuf.RGB, error) {
	buf := make([]byte, colorCount*paletteEntrySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, eofError(err, fmt.Sprintf("palette of %d colors", colorCount))
	}

	colors := make([]pixbuf.RGB, colorCount)
	for i := range colors {
		colors[i] = pixbuf.RGB{B: buf[i*4], G: buf[i*4+1], R: buf[i*4+2]}
	}

	return colors, nil
}

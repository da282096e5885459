package codec

import (
	"fmt"
	"io"

	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

func checkTruecolor(bitCount BitCount) error {
	if bitCount != Bits24 && bitCount != Bits32 {
		return fmt.Errorf("%w: truecolor row with bit count %d", ErrFormat, bitCount)
	}
	return nil
}

// PackTruecolorRow encodes pixels as (blue, green, red) for 24-bit rows or
// (blue, green, red, 0) for 32-bit rows, padded to a multiple of 4.
func PackTruecolorRow(pixels []pixbuf.RGB, bitCount BitCount) []byte {
	out := make([]byte, RowSize(len(pixels), bitCount))
	step := int(bitCount) / 8

	for i, c := range pixels {
		out[i*step] = c.B
		out[i*step+1] = c.G
		out[i*step+2] = c.R
	}

	return out
}

// UnpackTruecolorRow reads one stored 24-bit or 32-bit row. On a short
// stream the complete pixels read so far are returned with an error wrapping
// ErrUnexpectedEOF.
func UnpackTruecolorRow(r io.Reader, width int, bitCount BitCount) ([]pixbuf.RGB, error) {
	if err := checkTruecolor(bitCount); err != nil {
		return nil, err
	}

	step := int(bitCount) / 8
	row := make([]byte, RowSize(width, bitCount))

	n, err := io.ReadFull(r, row)

	complete := n / step
	if complete > width {
		complete = width
	}

	pixels := make([]pixbuf.RGB, complete)
	for i := range pixels {
		pixels[i] = pixbuf.RGB{B: row[i*step], G: row[i*step+1], R: row[i*step+2]}
	}

	if err != nil {
		return pixels, eofError(err, "truecolor row")
	}

	return pixels, nil
}

package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

// Default masks of an uncompressed 16-bit image (5-5-5, top bit unused).
const (
	defaultRedMask16   = 0x7C00
	defaultGreenMask16 = 0x03E0
	defaultBlueMask16  = 0x001F
)

// ChannelMask selects one color channel inside a packed pixel word.
type ChannelMask struct {
	Mask  uint32
	Shift uint
	Max   uint32
}

// NewChannelMask derives the shift and maximum value of mask.
func NewChannelMask(mask uint32) (ChannelMask, error) {
	if mask == 0 {
		return ChannelMask{}, ErrZeroMask
	}

	shift := uint(bits.TrailingZeros32(mask))
	return ChannelMask{Mask: mask, Shift: shift, Max: mask >> shift}, nil
}

// Extract returns the raw channel value of word.
func (m ChannelMask) Extract(word uint32) uint32 {
	return (word & m.Mask) >> m.Shift
}

// Scale returns the channel value of word normalized to 0..255, rounding down.
func (m ChannelMask) Scale(word uint32) uint8 {
	return uint8(uint64(m.Extract(word)) * 255 / uint64(m.Max)) // #nosec G115
}

// Bitfields holds the three channel masks of a BI_BITFIELDS image.
type Bitfields struct {
	Red, Green, Blue ChannelMask
}

// NewBitfields builds the channel set. A zero mask in any channel fails with
// ErrZeroMask.
func NewBitfields(red, green, blue uint32) (Bitfields, error) {
	var (
		bf  Bitfields
		err error
	)

	if bf.Red, err = NewChannelMask(red); err != nil {
		return Bitfields{}, fmt.Errorf("red: %w", err)
	}
	if bf.Green, err = NewChannelMask(green); err != nil {
		return Bitfields{}, fmt.Errorf("green: %w", err)
	}
	if bf.Blue, err = NewChannelMask(blue); err != nil {
		return Bitfields{}, fmt.Errorf("blue: %w", err)
	}

	return bf, nil
}

// Decode converts a packed pixel word to a color.
func (bf Bitfields) Decode(word uint32) pixbuf.RGB {
	return pixbuf.RGB{R: bf.Red.Scale(word), G: bf.Green.Scale(word), B: bf.Blue.Scale(word)}
}

// ReadMasks reads the three little-endian mask dwords that follow the info
// header of a BI_BITFIELDS image.
func ReadMasks(r io.Reader) (red, green, blue uint32, err error) {
	var m [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return 0, 0, 0, eofError(err, "bitfield masks")
	}
	return m[0], m[1], m[2], nil
}

func checkBitfields(bitCount BitCount) error {
	if bitCount != Bits16 && bitCount != Bits32 {
		return fmt.Errorf("%w: bitfields with bit count %d", ErrFormat, bitCount)
	}
	return nil
}

// UnpackBitfieldsRow reads one stored 16-bit or 32-bit row and decodes every
// word through bf. 16-bit rows skip their padding; 32-bit rows have none. On
// a short stream the complete pixels read so far are returned with an error
// wrapping ErrUnexpectedEOF.
func UnpackBitfieldsRow(r io.Reader, width int, bitCount BitCount, bf Bitfields) ([]pixbuf.RGB, error) {
	if err := checkBitfields(bitCount); err != nil {
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
		var word uint32
		if bitCount == Bits16 {
			word = uint32(binary.LittleEndian.Uint16(row[i*2:]))
		} else {
			word = binary.LittleEndian.Uint32(row[i*4:])
		}
		pixels[i] = bf.Decode(word)
	}

	if err != nil {
		return pixels, eofError(err, "bitfields row")
	}

	return pixels, nil
}

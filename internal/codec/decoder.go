package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rcarmo/go-bmp/internal/logging"
	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

// DecodeOptions configures a Decoder.
type DecodeOptions struct {
	// Strict turns a truncated pixel stream into an error wrapping
	// ErrUnexpectedEOF instead of a partial image.
	Strict bool
	// MaxWidth and MaxHeight reject larger images before any pixel buffer is
	// allocated. Zero means no limit.
	MaxWidth  int
	MaxHeight int
	// MaxPixels caps width*height. Zero means DefaultMaxPixels.
	MaxPixels int64
}

// DefaultMaxPixels is the pixel cap applied when DecodeOptions.MaxPixels is
// zero, so that a forged header cannot size an arbitrarily large buffer.
const DefaultMaxPixels = 1 << 26

// Result is a decoded image.
type Result struct {
	Image  *pixbuf.Buffer
	Header *Header
	// Truncated is set when the pixel data ended early and Image holds only
	// the pixels decoded before that point. Never set in strict mode.
	Truncated bool
}

// Decoder reads BMP streams. It holds only options and may be shared; all
// decoding state lives in a single Decode call.
type Decoder struct {
	opts DecodeOptions
}

// NewDecoder creates a decoder.
func NewDecoder(opts DecodeOptions) *Decoder {
	return &Decoder{opts: opts}
}

// Decode parses a complete BMP file held in memory. A truncated pixel stream
// yields the partial image and no error.
func Decode(data []byte) (*pixbuf.Buffer, error) {
	res, err := NewDecoder(DecodeOptions{}).Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return res.Image, nil
}

// stream is a byte scanner that counts the bytes consumed, so the gap
// between the header structures and the pixel data can be skipped.
type stream struct {
	br *bufio.Reader
	n  int64
}

func newStream(r io.Reader) *stream {
	return &stream{br: bufio.NewReader(r)}
}

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	s.n += int64(n)
	return n, err
}

func (s *stream) ReadByte() (byte, error) {
	b, err := s.br.ReadByte()
	if err == nil {
		s.n++
	}
	return b, err
}

func (s *stream) UnreadByte() error {
	err := s.br.UnreadByte()
	if err == nil {
		s.n--
	}
	return err
}

// DecodeConfig reads only the header.
func (d *Decoder) DecodeConfig(r io.Reader) (*Header, error) {
	h, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}
	if err := d.checkLimits(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (d *Decoder) checkLimits(h *Header) error {
	if d.opts.MaxWidth > 0 && int(h.Width) > d.opts.MaxWidth {
		return fmt.Errorf("%w: width %d exceeds limit %d", ErrUnsupported, h.Width, d.opts.MaxWidth)
	}
	if d.opts.MaxHeight > 0 && int(h.Height) > d.opts.MaxHeight {
		return fmt.Errorf("%w: height %d exceeds limit %d", ErrUnsupported, h.Height, d.opts.MaxHeight)
	}

	limit := d.opts.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	// Width and height are positive int32 values, so the product fits in int64.
	if pixels := int64(h.Width) * int64(h.Height); pixels > limit {
		return fmt.Errorf("%w: %dx%d is %d pixels, limit %d", ErrUnsupported, h.Width, h.Height, pixels, limit)
	}
	return nil
}

// Decode reads a BMP stream. Header, palette and mask errors abort with no
// image. A pixel stream that ends early returns the partial image with
// Result.Truncated set, or an ErrUnexpectedEOF error in strict mode.
func (d *Decoder) Decode(r io.Reader) (*Result, error) {
	s := newStream(r)

	h, err := DecodeHeader(s)
	if err != nil {
		return nil, err
	}
	if err := d.checkLimits(h); err != nil {
		return nil, err
	}

	var (
		palette []pixbuf.RGB
		fields  Bitfields
	)

	switch {
	case h.Compression == CompressionBitfields:
		if fields, err = readBitfields(s, h); err != nil {
			return nil, err
		}
	case h.BitCount == Bits16:
		fields, _ = NewBitfields(defaultRedMask16, defaultGreenMask16, defaultBlueMask16)
	case h.BitCount.Indexed():
		if palette, err = DecodePalette(s, h.PaletteColorCount()); err != nil {
			return nil, err
		}
	}

	if gap := int64(h.DataOffset) - s.n; gap > 0 {
		if _, err := io.CopyN(io.Discard, s, gap); err != nil {
			return nil, eofError(err, "gap before pixel data")
		}
	}

	width, height := int(h.Width), int(h.Height)

	var img *pixbuf.Buffer
	if h.BitCount.Indexed() {
		img = pixbuf.NewPaletted(width, height)
		for _, c := range palette {
			img.Allocate(c)
		}
	} else {
		img = pixbuf.NewTruecolor(width, height)
	}

	err = decodePixels(s, h, img, fields)
	switch {
	case err == nil:
		return &Result{Image: img, Header: h}, nil
	case errors.Is(err, ErrUnexpectedEOF) && !d.opts.Strict:
		logging.Debug("bmp: %v; returning partial %dx%d %s image", err, width, height, h.Compression)
		return &Result{Image: img, Header: h, Truncated: true}, nil
	}

	return nil, err
}

// readBitfields takes the channel masks from a V4/V5 header extension when
// present, otherwise from the three dwords after the info header.
func readBitfields(s io.Reader, h *Header) (Bitfields, error) {
	var red, green, blue uint32

	if len(h.extension) >= 12 {
		red = binary.LittleEndian.Uint32(h.extension[0:4])
		green = binary.LittleEndian.Uint32(h.extension[4:8])
		blue = binary.LittleEndian.Uint32(h.extension[8:12])
	} else {
		var err error
		if red, green, blue, err = ReadMasks(s); err != nil {
			return Bitfields{}, err
		}
	}

	return NewBitfields(red, green, blue)
}

// decodePixels dispatches on (bit count, compression). Rows are stored
// bottom-up.
func decodePixels(s *stream, h *Header, img *pixbuf.Buffer, fields Bitfields) error {
	width, height := int(h.Width), int(h.Height)
	colors := img.ColorsTotal()

	setIndex := func(x, y int, v uint8) error {
		if int(v) >= colors {
			return fmt.Errorf("%w: palette index %d out of range at (%d,%d)", ErrFormat, v, x, y)
		}
		img.SetIndex(x, y, int(v))
		return nil
	}

	setRow := func(y int, pixels []pixbuf.RGB) {
		for x, c := range pixels {
			img.SetRGB(x, y, c)
		}
	}

	switch {
	case h.Compression == CompressionRLE8 || h.Compression == CompressionRLE4:
		return DecodeRLE(s, width, height, h.Compression, setIndex)

	case h.Compression == CompressionRGB && h.BitCount.Indexed():
		var cur BitCursor
		for y := height - 1; y >= 0; y-- {
			indices, next, err := UnpackRow(s, width, h.BitCount, cur)
			for x, v := range indices {
				if err := setIndex(x, y, v); err != nil {
					return err
				}
			}
			if err != nil {
				return err
			}
			cur = next
		}
		return nil

	case h.Compression == CompressionBitfields || (h.Compression == CompressionRGB && h.BitCount == Bits16):
		for y := height - 1; y >= 0; y-- {
			pixels, err := UnpackBitfieldsRow(s, width, h.BitCount, fields)
			setRow(y, pixels)
			if err != nil {
				return err
			}
		}
		return nil

	case h.Compression == CompressionRGB && (h.BitCount == Bits24 || h.BitCount == Bits32):
		for y := height - 1; y >= 0; y-- {
			pixels, err := UnpackTruecolorRow(s, width, h.BitCount)
			setRow(y, pixels)
			if err != nil {
				return err
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %d-bit %s", ErrFormat, h.BitCount, h.Compression)
}

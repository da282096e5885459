// Package codec implements the Windows BMP (DIB) image codec: header and
// palette layout, bit-packed index rows, BI_RLE4/BI_RLE8 token streams and
// BI_BITFIELDS channel masks.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	fileHeaderSize = 14
	infoHeaderSize = 40
	// maxInfoHeaderSize is BITMAPV5HEADER, the largest defined info header.
	maxInfoHeaderSize = 124
	// HeaderSize is the combined size of the file and info headers written
	// by the encoder.
	HeaderSize = fileHeaderSize + infoHeaderSize
)

var magic = [2]byte{'B', 'M'}

// Compression is the biCompression field of the info header.
type Compression uint32

const (
	CompressionRGB       Compression = 0 // BI_RGB
	CompressionRLE8      Compression = 1 // BI_RLE8
	CompressionRLE4      Compression = 2 // BI_RLE4
	CompressionBitfields Compression = 3 // BI_BITFIELDS
)

func (c Compression) String() string {
	switch c {
	case CompressionRGB:
		return "BI_RGB"
	case CompressionRLE8:
		return "BI_RLE8"
	case CompressionRLE4:
		return "BI_RLE4"
	case CompressionBitfields:
		return "BI_BITFIELDS"
	}
	return fmt.Sprintf("Compression(%d)", uint32(c))
}

// ParseCompression validates a raw compression code. Unknown codes are both
// a format error and an unsupported feature.
func ParseCompression(v uint32) (Compression, error) {
	switch c := Compression(v); c {
	case CompressionRGB, CompressionRLE8, CompressionRLE4, CompressionBitfields:
		return c, nil
	}
	return 0, fmt.Errorf("%w: %w: compression method %d", ErrFormat, ErrUnsupported, v)
}

// BitCount is the number of bits per pixel.
type BitCount uint16

const (
	Bits1  BitCount = 1
	Bits4  BitCount = 4
	Bits8  BitCount = 8
	Bits16 BitCount = 16
	Bits24 BitCount = 24
	Bits32 BitCount = 32
)

// ParseBitCount validates a raw biBitCount value.
func ParseBitCount(v uint16) (BitCount, error) {
	switch b := BitCount(v); b {
	case Bits1, Bits4, Bits8, Bits16, Bits24, Bits32:
		return b, nil
	}
	return 0, fmt.Errorf("%w: bit count %d", ErrFormat, v)
}

// Indexed reports whether pixels of this depth are palette indexes.
func (b BitCount) Indexed() bool { return b <= Bits8 }

// RowSize returns the stored length of a row of width pixels: the packed
// pixel bytes rounded up to a multiple of 4.
func RowSize(width int, bitCount BitCount) int {
	return ((width*int(bitCount) + 31) / 32) * 4
}

// packedRowSize returns the pixel bytes of a row before padding.
func packedRowSize(width int, bitCount BitCount) int {
	return (width*int(bitCount) + 7) / 8
}

// fileHeader is the BITMAPFILEHEADER structure.
type fileHeader struct {
	Type      [2]byte
	Size      uint32
	Reserved1 uint16
	Reserved2 uint16
	OffBits   uint32
}

// infoHeader is the BITMAPINFOHEADER structure.
type infoHeader struct {
	Size            uint32
	Width           int32
	Height          int32
	Planes          uint16
	BitCount        uint16
	Compression     uint32
	SizeImage       uint32
	XPelsPerMeter   int32
	YPelsPerMeter   int32
	ColorsUsed      uint32
	ColorsImportant uint32
}

// Header is a parsed and validated BMP header.
type Header struct {
	FileSize        uint32
	DataOffset      uint32
	HeaderSize      uint32
	Width           int32
	Height          int32
	Planes          uint16
	BitCount        BitCount
	Compression     Compression
	ImageSize       uint32
	XPelsPerMeter   int32
	YPelsPerMeter   int32
	ColorsUsed      uint32
	ColorsImportant uint32

	// extension holds info header bytes beyond the first 40 (V4/V5 headers).
	extension []byte
}

// PaletteColorCount returns how many palette entries follow the header.
// Truecolor and BI_BITFIELDS images have none.
func (h *Header) PaletteColorCount() int {
	if !h.BitCount.Indexed() || h.Compression == CompressionBitfields {
		return 0
	}
	full := 1 << h.BitCount
	if h.ColorsUsed > 0 && int(h.ColorsUsed) < full {
		return int(h.ColorsUsed)
	}
	return full
}

// EncodeHeader returns the 54 header bytes for an image whose palette takes
// paletteByteSize bytes and whose pixel data takes imageSize bytes.
func EncodeHeader(width, height int, bitCount BitCount, compression Compression, paletteByteSize, imageSize int) []byte {
	offset := uint32(HeaderSize + paletteByteSize) // #nosec G115

	fh := fileHeader{
		Type:    magic,
		Size:    offset + uint32(imageSize), // #nosec G115
		OffBits: offset,
	}
	ih := infoHeader{
		Size:        infoHeaderSize,
		Width:       int32(width),  // #nosec G115
		Height:      int32(height), // #nosec G115
		Planes:      1,
		BitCount:    uint16(bitCount),
		Compression: uint32(compression),
		SizeImage:   uint32(imageSize), // #nosec G115
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	_ = binary.Write(buf, binary.LittleEndian, &fh)
	_ = binary.Write(buf, binary.LittleEndian, &ih)

	return buf.Bytes()
}

// DecodeHeader reads and validates the file and info headers. Nothing past
// the info header is consumed, except the V4/V5 extension bytes.
func DecodeHeader(r io.Reader) (*Header, error) {
	var fh fileHeader
	if err := binary.Read(r, binary.LittleEndian, &fh); err != nil {
		return nil, eofError(err, "file header")
	}

	if fh.Type != magic {
		return nil, fmt.Errorf("%w: not a BMP file (magic %q)", ErrFormat, fh.Type[:])
	}

	var ih infoHeader
	if err := binary.Read(r, binary.LittleEndian, &ih); err != nil {
		return nil, eofError(err, "info header")
	}

	if ih.Size < infoHeaderSize || ih.Size > maxInfoHeaderSize {
		return nil, fmt.Errorf("%w: info header size %d", ErrUnsupported, ih.Size)
	}

	h := &Header{
		FileSize:        fh.Size,
		DataOffset:      fh.OffBits,
		HeaderSize:      ih.Size,
		Width:           ih.Width,
		Height:          ih.Height,
		Planes:          ih.Planes,
		ImageSize:       ih.SizeImage,
		XPelsPerMeter:   ih.XPelsPerMeter,
		YPelsPerMeter:   ih.YPelsPerMeter,
		ColorsUsed:      ih.ColorsUsed,
		ColorsImportant: ih.ColorsImportant,
	}

	if ih.Size > infoHeaderSize {
		h.extension = make([]byte, ih.Size-infoHeaderSize)
		if _, err := io.ReadFull(r, h.extension); err != nil {
			return nil, eofError(err, "info header extension")
		}
	}

	compression, err := ParseCompression(ih.Compression)
	if err != nil {
		return nil, err
	}
	h.Compression = compression

	bitCount, err := ParseBitCount(ih.BitCount)
	if err != nil {
		return nil, err
	}
	h.BitCount = bitCount

	if err := h.validate(); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *Header) validate() error {
	if h.Width <= 0 {
		return fmt.Errorf("%w: width %d", ErrFormat, h.Width)
	}
	if h.Height <= 0 {
		return fmt.Errorf("%w: height %d", ErrFormat, h.Height)
	}
	if h.Planes != 1 {
		return fmt.Errorf("%w: planes %d", ErrFormat, h.Planes)
	}

	switch h.Compression {
	case CompressionRLE8:
		if h.BitCount != Bits8 {
			return fmt.Errorf("%w: BI_RLE8 with bit count %d", ErrFormat, h.BitCount)
		}
	case CompressionRLE4:
		if h.BitCount != Bits4 {
			return fmt.Errorf("%w: BI_RLE4 with bit count %d", ErrFormat, h.BitCount)
		}
	case CompressionBitfields:
		if h.BitCount != Bits16 && h.BitCount != Bits32 {
			return fmt.Errorf("%w: BI_BITFIELDS with bit count %d", ErrFormat, h.BitCount)
		}
	}

	return nil
}

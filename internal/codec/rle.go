package codec

import (
	"fmt"
	"io"
)

// RLE escape codes, the suffix byte of a token whose prefix is zero.
const (
	rleEndOfRow    = 0x00
	rleEndOfBitmap = 0x01
	rleDelta       = 0x02
)

// IndexFunc receives one decoded palette index. Returning an error stops
// decoding.
type IndexFunc func(x, y int, index uint8) error

// rleState is the position of the next decoded pixel.
type rleState struct {
	x, y   int
	width  int
	put    IndexFunc
	nibble bool
}

func (s *rleState) emit(v uint8) error {
	if s.x >= s.width || s.y < 0 {
		s.x++
		return nil
	}

	if err := s.put(s.x, s.y, v); err != nil {
		return err
	}

	s.x++
	return nil
}

// DecodeRLE decodes a BI_RLE8 or BI_RLE4 token stream into put. Rows are
// filled from height-1 downwards. Decoding ends at the end-of-bitmap token,
// after the end-of-row token of row 0, or when the stream runs out; the last
// case returns an error wrapping ErrUnexpectedEOF after every pixel decoded
// so far has been passed to put.
func DecodeRLE(r io.ByteScanner, width, height int, compression Compression, put IndexFunc) error {
	if compression != CompressionRLE8 && compression != CompressionRLE4 {
		return fmt.Errorf("%w: %s is not run-length", ErrFormat, compression)
	}

	s := &rleState{y: height - 1, width: width, put: put, nibble: compression == CompressionRLE4}

	for {
		prefix, err := r.ReadByte()
		if err != nil {
			return eofError(err, "rle token")
		}
		suffix, err := r.ReadByte()
		if err != nil {
			return eofError(err, "rle token")
		}

		if prefix > 0 {
			if err := s.run(prefix, suffix); err != nil {
				return err
			}
			continue
		}

		switch suffix {
		case rleEndOfRow:
			s.x = 0
			s.y--
			if s.y < 0 {
				return nil
			}
		case rleEndOfBitmap:
			return nil
		case rleDelta:
			return fmt.Errorf("%w: rle delta escape", ErrUnsupported)
		default:
			if err := s.absolute(r, int(suffix)); err != nil {
				return err
			}
		}
	}
}

// run emits count copies of value. In 4-bit mode even positions take the low
// nibble and odd positions the high nibble.
func (s *rleState) run(count, value uint8) error {
	for i := 0; i < int(count); i++ {
		v := value
		if s.nibble {
			if i%2 == 0 {
				v = value & 0x0F
			} else {
				v = value >> 4
			}
		}
		if err := s.emit(v); err != nil {
			return err
		}
	}
	return nil
}

// absolute emits count literal indexes and consumes the pad byte that keeps
// the token stream word aligned.
func (s *rleState) absolute(r io.ByteScanner, count int) error {
	consumed := count

	if s.nibble {
		var cur BitCursor
		for i := 0; i < count; i++ {
			var (
				v   uint8
				err error
			)
			v, cur, err = readBits(r, cur, 4)
			if err != nil {
				return eofError(err, "rle absolute run")
			}
			if err := s.emit(v); err != nil {
				return err
			}
		}
		if cur != 0 {
			if _, err := r.ReadByte(); err != nil {
				return eofError(err, "rle absolute run")
			}
		}
		consumed = (count + 1) / 2
	} else {
		for i := 0; i < count; i++ {
			v, err := r.ReadByte()
			if err != nil {
				return eofError(err, "rle absolute run")
			}
			if err := s.emit(v); err != nil {
				return err
			}
		}
	}

	if consumed%2 == 1 {
		if _, err := r.ReadByte(); err != nil {
			return eofError(err, "rle absolute padding")
		}
	}

	return nil
}

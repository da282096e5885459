package codec

import (
	"fmt"
	"io"
)

// BitCursor is the number of bits (0..7) already consumed from the byte most
// recently read. It is passed into and returned from every sub-byte read so
// that no state outlives a single decode call.
type BitCursor uint8

func checkSubByte(bitCount BitCount) error {
	switch bitCount {
	case 1, 2, 4, 8:
		return nil
	}
	return fmt.Errorf("%w: %d bits per index", ErrUnsupported, bitCount)
}

// readBits reads n bits MSB-first from the current byte at cur. The byte is
// unread unless the read ends exactly on its boundary, so the next call sees
// it again. n must divide 8; reads never straddle bytes.
func readBits(r io.ByteScanner, cur BitCursor, n uint8) (uint8, BitCursor, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, cur, err
	}

	shift := 8 - uint8(cur) - n
	v := (b >> shift) & (0xFF >> (8 - n))

	cur += BitCursor(n)
	if cur == 8 {
		return v, 0, nil
	}

	if err := r.UnreadByte(); err != nil {
		return 0, cur, err
	}

	return v, cur, nil
}

// PackRow packs indices MSB-first at bitCount bits each and pads the row with
// zero bytes to a multiple of 4.
func PackRow(indices []uint8, bitCount BitCount) []byte {
	out := make([]byte, RowSize(len(indices), bitCount))
	packInto(out, indices, bitCount)
	return out
}

func packInto(dst []byte, indices []uint8, bitCount BitCount) {
	n := uint(bitCount)
	mask := uint8(0xFF >> (8 - n))
	bit := uint(0)

	for _, v := range indices {
		shift := 8 - bit%8 - n
		dst[bit/8] |= (v & mask) << shift
		bit += n
	}
}

// UnpackRow reads one stored row of width indices starting at cur, then
// discards the rest of a partially read byte and the row padding. On a short
// stream the indices read so far are returned with an error wrapping
// ErrUnexpectedEOF.
func UnpackRow(r io.ByteScanner, width int, bitCount BitCount, cur BitCursor) ([]uint8, BitCursor, error) {
	if err := checkSubByte(bitCount); err != nil {
		return nil, cur, err
	}

	indices := make([]uint8, 0, width)
	for x := 0; x < width; x++ {
		var (
			v   uint8
			err error
		)
		v, cur, err = readBits(r, cur, uint8(bitCount))
		if err != nil {
			return indices, cur, eofError(err, "pixel row")
		}
		indices = append(indices, v)
	}

	if cur != 0 {
		if _, err := r.ReadByte(); err != nil {
			return indices, cur, eofError(err, "pixel row")
		}
		cur = 0
	}

	if err := skip(r, RowSize(width, bitCount)-packedRowSize(width, bitCount)); err != nil {
		return indices, cur, eofError(err, "row padding")
	}

	return indices, cur, nil
}

func skip(r io.ByteReader, n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadByte(); err != nil {
			return err
		}
	}
	return nil
}

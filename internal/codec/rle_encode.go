package codec

import "bytes"

const maxRLERun = 255

// legacyChunks splits a row of width bytes into absolute token lengths of 4,
// 5 or 6 that end exactly on the row boundary. A remainder of 3 that cannot be
// folded into 5+6 becomes a final 3-byte token. Widths below 3 return nil:
// absolute mode cannot carry 1 or 2 bytes.
func legacyChunks(width int) []int {
	if width < 3 {
		return nil
	}

	q, r := width/4, width%4
	chunks := make([]int, 0, q+2)
	fours := func(n int) {
		for i := 0; i < n; i++ {
			chunks = append(chunks, 4)
		}
	}

	switch r {
	case 0:
		fours(q)
	case 1:
		fours(q - 1)
		chunks = append(chunks, 5)
	case 2:
		fours(q - 1)
		chunks = append(chunks, 6)
	case 3:
		if q >= 2 {
			fours(q - 2)
			chunks = append(chunks, 5, 6)
		} else {
			fours(q)
			chunks = append(chunks, 3)
		}
	}

	return chunks
}

// EncodeRLE8Legacy encodes 8-bit index rows, bottom row first, without run
// detection: every row is written as absolute tokens of 4 to 6 bytes. Rows
// are separated by end-of-row and the stream ends with end-of-bitmap.
func EncodeRLE8Legacy(rows [][]uint8) []byte {
	var buf bytes.Buffer

	for i, row := range rows {
		if i > 0 {
			buf.Write([]byte{0, rleEndOfRow})
		}

		chunks := legacyChunks(len(row))
		if chunks == nil {
			for _, v := range row {
				buf.Write([]byte{1, v})
			}
			continue
		}

		pos := 0
		for _, n := range chunks {
			writeAbsolute(&buf, byte(n), row[pos:pos+n])
			pos += n
		}
	}

	buf.Write([]byte{0, rleEndOfBitmap})
	return buf.Bytes()
}

// writeAbsolute writes an absolute token carrying data, plus a pad byte when
// data has odd length.
func writeAbsolute(buf *bytes.Buffer, count byte, data []byte) {
	buf.WriteByte(0)
	buf.WriteByte(count)
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte(0)
	}
}

// runLength returns how many times row[i] repeats from i, capped at maxRLERun.
func runLength(row []uint8, i int) int {
	n := 1
	for i+n < len(row) && n < maxRLERun && row[i+n] == row[i] {
		n++
	}
	return n
}

// literalLength returns the length of the stretch starting at i that holds
// no adjacent repeats, capped at maxRLERun.
func literalLength(row []uint8, i int) int {
	n := 0
	for i+n < len(row) && n < maxRLERun {
		if i+n+1 < len(row) && row[i+n] == row[i+n+1] {
			break
		}
		n++
	}
	return n
}

// encodeRuns writes rows with run detection. pack turns a literal stretch
// into the absolute-mode payload bytes, and runByte turns a repeated index
// into the encoded-mode value byte.
func encodeRuns(rows [][]uint8, pack func([]uint8) []byte, runByte func(uint8) byte) []byte {
	var buf bytes.Buffer

	for r, row := range rows {
		if r > 0 {
			buf.Write([]byte{0, rleEndOfRow})
		}

		for i := 0; i < len(row); {
			if n := runLength(row, i); n >= 2 {
				buf.Write([]byte{byte(n), runByte(row[i])})
				i += n
				continue
			}

			n := literalLength(row, i)
			if n < 3 {
				for _, v := range row[i : i+n] {
					buf.Write([]byte{1, runByte(v)})
				}
			} else {
				writeAbsolute(&buf, byte(n), pack(row[i:i+n]))
			}
			i += n
		}
	}

	buf.Write([]byte{0, rleEndOfBitmap})
	return buf.Bytes()
}

// EncodeRLE8 encodes 8-bit index rows, bottom row first, with run detection.
func EncodeRLE8(rows [][]uint8) []byte {
	return encodeRuns(rows,
		func(v []uint8) []byte { return v },
		func(v uint8) byte { return v },
	)
}

// EncodeRLE4 encodes 4-bit index rows, bottom row first, with run detection.
// Runs repeat a single index in both nibbles, so the decoder's nibble order
// does not matter for them; absolute stretches are packed high nibble first.
func EncodeRLE4(rows [][]uint8) []byte {
	return encodeRuns(rows,
		func(v []uint8) []byte {
			out := make([]byte, (len(v)+1)/2)
			packInto(out, v, Bits4)
			return out
		},
		func(v uint8) byte { return v&0x0F | v<<4 },
	)
}

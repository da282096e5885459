package codec

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrFormat reports input that is not a valid BMP stream: bad magic,
	// impossible dimensions, or a bit count that does not fit the compression.
	ErrFormat = errors.New("bmp: invalid format")
	// ErrUnsupported reports a valid but unimplemented feature, such as an
	// unknown compression code or the RLE delta escape.
	ErrUnsupported = errors.New("bmp: unsupported feature")
	// ErrZeroMask reports a BI_BITFIELDS channel mask of zero.
	ErrZeroMask = errors.New("bmp: zero channel mask")
	// ErrUnexpectedEOF reports a stream that ended before the structure
	// being read was complete.
	ErrUnexpectedEOF = errors.New("bmp: unexpected end of stream")
)

// eofError converts an end-of-stream read error into ErrUnexpectedEOF and
// passes every other error through unchanged.
func eofError(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s", ErrUnexpectedEOF, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

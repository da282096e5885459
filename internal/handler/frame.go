package handler

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/rcarmo/go-bmp/internal/codec"
)

const (
	frameFlagZstd      = 1 << 0
	frameFlagTruncated = 1 << 1

	// op byte + width u32 + height u32 + checksum u64 + flags u8
	frameHeaderSize = 1 + 4 + 4 + 8 + 1
)

var ErrInvalidFrame = errors.New("handler: invalid frame message")

// Frame is a decoded image as sent to the browser: top-down RGBA pixels.
type Frame struct {
	Width     int
	Height    int
	Checksum  uint64
	Truncated bool
	RGBA      []byte
}

// FrameFromResult builds a frame from a decode result.
func FrameFromResult(res *codec.Result) Frame {
	return Frame{
		Width:     res.Image.Width(),
		Height:    res.Image.Height(),
		Checksum:  res.Image.Checksum(),
		Truncated: res.Truncated,
		RGBA:      res.Image.RGBA(),
	}
}

// FramePacker serializes frames, compressing the pixel payload with zstd
// when enabled. EncodeAll is safe for concurrent use, so one packer can serve
// a whole connection.
type FramePacker struct {
	enc *zstd.Encoder
}

// NewFramePacker creates a packer for "zstd" or "none" payloads.
func NewFramePacker(compression string) (*FramePacker, error) {
	switch compression {
	case "", "none":
		return &FramePacker{}, nil
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return &FramePacker{enc: enc}, nil
	}
	return nil, fmt.Errorf("unknown frame compression %q", compression)
}

// Pack returns the frame message: opDecode, width, height, checksum, flags,
// then the RGBA payload.
func (p *FramePacker) Pack(f Frame) []byte {
	var flags byte
	if f.Truncated {
		flags |= frameFlagTruncated
	}

	msg := make([]byte, frameHeaderSize, frameHeaderSize+len(f.RGBA))
	msg[0] = opDecode
	binary.LittleEndian.PutUint32(msg[1:5], uint32(f.Width))  // #nosec G115
	binary.LittleEndian.PutUint32(msg[5:9], uint32(f.Height)) // #nosec G115
	binary.LittleEndian.PutUint64(msg[9:17], f.Checksum)

	if p.enc != nil {
		msg[17] = flags | frameFlagZstd
		return p.enc.EncodeAll(f.RGBA, msg)
	}

	msg[17] = flags
	return append(msg, f.RGBA...)
}

// Close releases the zstd encoder.
func (p *FramePacker) Close() error {
	if p.enc != nil {
		return p.enc.Close()
	}
	return nil
}

// UnpackFrame parses a frame message produced by Pack.
func UnpackFrame(msg []byte) (*Frame, error) {
	if len(msg) < frameHeaderSize || msg[0] != opDecode {
		return nil, ErrInvalidFrame
	}

	f := &Frame{
		Width:     int(binary.LittleEndian.Uint32(msg[1:5])),
		Height:    int(binary.LittleEndian.Uint32(msg[5:9])),
		Checksum:  binary.LittleEndian.Uint64(msg[9:17]),
		Truncated: msg[17]&frameFlagTruncated != 0,
	}

	payload := msg[frameHeaderSize:]
	if msg[17]&frameFlagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()

		if payload, err = dec.DecodeAll(payload, nil); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
		}
	}

	if len(payload) != f.Width*f.Height*4 {
		return nil, fmt.Errorf("%w: %d payload bytes for %dx%d", ErrInvalidFrame, len(payload), f.Width, f.Height)
	}
	f.RGBA = payload

	return f, nil
}

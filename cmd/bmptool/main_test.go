package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcarmo/go-bmp/internal/codec"
	"github.com/rcarmo/go-bmp/internal/pixbuf"
)

// writeStripes writes a width x 3 8-bit BMP with 20 colors and returns its
// path and the source buffer.
func writeStripes(t *testing.T, width int) (string, *pixbuf.Buffer) {
	t.Helper()

	img := pixbuf.NewPaletted(width, 3)
	for i := 0; i < 20; i++ {
		img.Allocate(pixbuf.RGB{R: uint8(i * 10), G: 100, B: uint8(255 - i*10)})
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < width; x++ {
			img.SetIndex(x, y, (x/4+y)%20)
		}
	}

	data, err := codec.Encode(img, false)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "stripes.bmp")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, img
}

func runTool(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, _, stderr := runTool()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "USAGE:")

	code, _, stderr = runTool("rotate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "rotate"`)

	code, stdout, _ := runTool("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "checksum FILE")

	code, _, _ = runTool("info")
	assert.Equal(t, 2, code)
}

func TestInfo(t *testing.T) {
	path, _ := writeStripes(t, 16)

	code, stdout, stderr := runTool("info", path)
	require.Equal(t, 0, code, stderr)

	var info headerInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, int32(16), info.Width)
	assert.Equal(t, int32(3), info.Height)
	assert.Equal(t, uint16(8), info.BitCount)
	assert.Equal(t, "BI_RGB", info.Compression)
	assert.Equal(t, uint32(40), info.HeaderSize)
	assert.Equal(t, 256, info.PaletteColors)
	assert.Equal(t, uint32(codec.HeaderSize+1024), info.DataOffset)
}

func TestInfoNotBMP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not a bitmap ", 10)), 0o600))

	code, _, stderr := runTool("info", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid format")
}

func TestConvert(t *testing.T) {
	tests := []struct {
		mode        string
		compression codec.Compression
	}{
		{mode: "none", compression: codec.CompressionRGB},
		{mode: "legacy", compression: codec.CompressionRLE8},
		{mode: "rle", compression: codec.CompressionRLE8},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			in, img := writeStripes(t, 17)
			out := filepath.Join(t.TempDir(), "out.bmp")

			code, stdout, stderr := runTool("convert", "-compress", tt.mode, in, out)
			require.Equal(t, 0, code, stderr)
			assert.Contains(t, stdout, "17x3")

			data, err := os.ReadFile(out)
			require.NoError(t, err)

			h, err := codec.DecodeHeader(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, tt.compression, h.Compression)

			got, err := codec.Decode(data)
			require.NoError(t, err)
			assert.True(t, img.Equal(got))
		})
	}
}

func TestConvertBadMode(t *testing.T) {
	in, _ := writeStripes(t, 8)
	code, _, stderr := runTool("convert", "-compress", "lzw", in, filepath.Join(t.TempDir(), "out.bmp"))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "lzw")
}

func TestConvertStrictTruncated(t *testing.T) {
	in, _ := writeStripes(t, 8)
	data, err := os.ReadFile(in)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in, data[:len(data)-5], 0o600))

	out := filepath.Join(t.TempDir(), "out.bmp")

	code, _, stderr := runTool("convert", "-strict", in, out)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unexpected end of stream")

	code, _, stderr = runTool("convert", in, out)
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr, "truncated")
}

func TestChecksum(t *testing.T) {
	in, img := writeStripes(t, 9)

	code, stdout, stderr := runTool("checksum", in)
	require.Equal(t, 0, code, stderr)

	fields := strings.Fields(stdout)
	require.Len(t, fields, 2)
	assert.Len(t, fields[0], 16)
	assert.Equal(t, in, fields[1])

	sum, err := strconv.ParseUint(fields[0], 16, 64)
	require.NoError(t, err)
	assert.Equal(t, img.Checksum(), sum)
}

func TestImportExport(t *testing.T) {
	dir := t.TempDir()

	src := image.NewNRGBA(image.Rect(0, 0, 5, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			src.Set(x, y, color.NRGBA{R: uint8(x * 50), G: uint8(y * 60), B: 7, A: 255})
		}
	}

	pngPath := filepath.Join(dir, "in.png")
	f, err := os.Create(pngPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	bmpPath := filepath.Join(dir, "out.bmp")
	code, _, stderr := runTool("import", pngPath, bmpPath)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(bmpPath)
	require.NoError(t, err)
	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.True(t, pixbuf.FromImage(src).Equal(got))

	backPath := filepath.Join(dir, "back.png")
	code, _, stderr = runTool("export", bmpPath, backPath)
	require.Equal(t, 0, code, stderr)

	bf, err := os.Open(backPath)
	require.NoError(t, err)
	defer bf.Close()
	back, err := png.Decode(bf)
	require.NoError(t, err)
	assert.True(t, pixbuf.FromImage(src).Equal(pixbuf.FromImage(back)))
}

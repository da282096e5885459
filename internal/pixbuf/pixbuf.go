// Package pixbuf provides the in-memory pixel buffer the BMP codec reads from
// and writes to. A buffer is either paletted (pixels are indexes into a color
// table) or truecolor (pixels are RGB triples).
package pixbuf

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// NotFound is returned by Exact when no palette entry matches.
const NotFound = -1

// MaxColors is the largest palette a buffer holds. Indexes are stored in two
// bytes per pixel.
const MaxColors = 1 << 16

// RGB is a single opaque color.
type RGB struct {
	R, G, B uint8
}

// Buffer is a width x height grid of pixels.
type Buffer struct {
	width       int
	height      int
	truecolor   bool
	palette     []RGB
	transparent int
	index       []uint16
	rgb         []RGB
}

// NewPaletted creates a paletted buffer with an empty palette. Every pixel
// starts at index 0.
func NewPaletted(width, height int) *Buffer {
	return &Buffer{
		width:       width,
		height:      height,
		transparent: NotFound,
		index:       make([]uint16, width*height),
	}
}

// NewTruecolor creates a truecolor buffer. Every pixel starts black.
func NewTruecolor(width, height int) *Buffer {
	return &Buffer{
		width:       width,
		height:      height,
		truecolor:   true,
		transparent: NotFound,
		rgb:         make([]RGB, width*height),
	}
}

func (b *Buffer) Width() int  { return b.width }
func (b *Buffer) Height() int { return b.height }

// IsTruecolor reports whether pixels are stored as RGB triples.
func (b *Buffer) IsTruecolor() bool { return b.truecolor }

// ColorsTotal returns the number of palette entries. Truecolor buffers have
// no palette and report 0.
func (b *Buffer) ColorsTotal() int { return len(b.palette) }

// Transparent returns the transparent palette index, or NotFound.
func (b *Buffer) Transparent() int { return b.transparent }

// SetTransparent marks a palette index as transparent. Pass NotFound to clear it.
func (b *Buffer) SetTransparent(index int) {
	if index < 0 || index >= len(b.palette) {
		b.transparent = NotFound
		return
	}
	b.transparent = index
}

// ColorAt returns palette entry i. Out of range indexes yield black.
func (b *Buffer) ColorAt(i int) RGB {
	if i < 0 || i >= len(b.palette) {
		return RGB{}
	}
	return b.palette[i]
}

// Palette returns a copy of the color table.
func (b *Buffer) Palette() []RGB {
	out := make([]RGB, len(b.palette))
	copy(out, b.palette)
	return out
}

// Allocate appends c to the palette and returns its index. Duplicates are
// allowed: a decoded palette keeps the file's slot layout. A full palette
// returns NotFound.
func (b *Buffer) Allocate(c RGB) int {
	if len(b.palette) >= MaxColors {
		return NotFound
	}
	b.palette = append(b.palette, c)
	return len(b.palette) - 1
}

// Exact returns the first palette index holding c, or NotFound.
func (b *Buffer) Exact(c RGB) int {
	for i, p := range b.palette {
		if p == c {
			return i
		}
	}
	return NotFound
}

func (b *Buffer) inside(x, y int) bool {
	return x >= 0 && x < b.width && y >= 0 && y < b.height
}

// IndexAt returns the palette index at (x, y). Truecolor buffers and points
// outside the buffer return 0.
func (b *Buffer) IndexAt(x, y int) int {
	if b.truecolor || !b.inside(x, y) {
		return 0
	}
	return int(b.index[y*b.width+x])
}

// SetIndex stores a palette index at (x, y). It is a no-op on truecolor
// buffers, outside the bounds and for indexes past MaxColors.
func (b *Buffer) SetIndex(x, y, i int) {
	if b.truecolor || !b.inside(x, y) || i < 0 || i >= MaxColors {
		return
	}
	b.index[y*b.width+x] = uint16(i) // #nosec G115
}

// RGBAt returns the color at (x, y), resolving palette indexes.
func (b *Buffer) RGBAt(x, y int) RGB {
	if !b.inside(x, y) {
		return RGB{}
	}
	if b.truecolor {
		return b.rgb[y*b.width+x]
	}
	return b.ColorAt(int(b.index[y*b.width+x]))
}

// SetRGB stores a color at (x, y). Paletted buffers reuse an exact palette
// match or allocate a new entry; once the palette is full the buffer is
// converted to truecolor.
func (b *Buffer) SetRGB(x, y int, c RGB) {
	if !b.inside(x, y) {
		return
	}
	if !b.truecolor {
		i := b.Exact(c)
		if i == NotFound {
			i = b.Allocate(c)
		}
		if i != NotFound {
			b.index[y*b.width+x] = uint16(i) // #nosec G115
			return
		}
		b.promote()
	}
	b.rgb[y*b.width+x] = c
}

// promote resolves every index to its color and drops the palette.
func (b *Buffer) promote() {
	rgb := make([]RGB, len(b.index))
	for i, v := range b.index {
		rgb[i] = b.ColorAt(int(v))
	}
	b.rgb = rgb
	b.index = nil
	b.palette = nil
	b.transparent = NotFound
	b.truecolor = true
}

// Equal reports whether both buffers have the same size and the same color
// at every pixel. Palette order and storage kind are ignored.
func (b *Buffer) Equal(o *Buffer) bool {
	if o == nil || b.width != o.width || b.height != o.height {
		return false
	}
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			if b.RGBAt(x, y) != o.RGBAt(x, y) {
				return false
			}
		}
	}
	return true
}

// Checksum hashes the dimensions and resolved pixel colors with xxhash64.
// Two buffers with Equal pixels share a checksum.
func (b *Buffer) Checksum() uint64 {
	d := xxhash.New()

	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[0:4], uint32(b.width))  // #nosec G115
	binary.LittleEndian.PutUint32(dims[4:8], uint32(b.height)) // #nosec G115
	_, _ = d.Write(dims[:])

	row := make([]byte, b.width*3)
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			c := b.RGBAt(x, y)
			row[x*3] = c.R
			row[x*3+1] = c.G
			row[x*3+2] = c.B
		}
		_, _ = d.Write(row)
	}

	return d.Sum64()
}

// RGBA returns the pixels top-down as packed RGBA bytes with opaque alpha.
// The transparent palette entry, if any, gets alpha 0.
func (b *Buffer) RGBA() []byte {
	out := make([]byte, b.width*b.height*4)
	i := 0
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			c := b.RGBAt(x, y)
			out[i] = c.R
			out[i+1] = c.G
			out[i+2] = c.B
			out[i+3] = 255
			if !b.truecolor && b.transparent != NotFound && int(b.index[y*b.width+x]) == b.transparent {
				out[i+3] = 0
			}
			i += 4
		}
	}
	return out
}

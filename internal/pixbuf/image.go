package pixbuf

import (
	"image"
	"image/color"
)

// Image converts the buffer to a standard library image. Paletted buffers of
// up to 256 colors become *image.Paletted, everything else *image.RGBA.
func (b *Buffer) Image() image.Image {
	rect := image.Rect(0, 0, b.width, b.height)

	if b.truecolor || len(b.palette) > 256 {
		img := image.NewRGBA(rect)
		copy(img.Pix, b.RGBA())
		return img
	}

	pal := make(color.Palette, len(b.palette))
	for i, c := range b.palette {
		a := uint8(255)
		if i == b.transparent {
			a = 0
		}
		pal[i] = color.NRGBA{R: c.R, G: c.G, B: c.B, A: a}
	}
	if len(pal) == 0 {
		pal = color.Palette{color.NRGBA{A: 255}}
	}

	img := image.NewPaletted(rect, pal)
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			img.Pix[y*img.Stride+x] = uint8(b.index[y*b.width+x]) // #nosec G115
		}
	}
	return img
}

// FromImage copies a standard library image into a buffer. *image.Paletted
// sources keep their palette; the first fully transparent entry becomes the
// transparent index. Everything else becomes truecolor with alpha dropped.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if p, ok := img.(*image.Paletted); ok {
		buf := NewPaletted(w, h)
		for _, c := range p.Palette {
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			i := buf.Allocate(RGB{R: n.R, G: n.G, B: n.B})
			if n.A == 0 && buf.transparent == NotFound {
				buf.transparent = i
			}
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				buf.SetIndex(x, y, int(p.ColorIndexAt(bounds.Min.X+x, bounds.Min.Y+y)))
			}
		}
		return buf
	}

	buf := NewTruecolor(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			buf.SetRGB(x, y, RGB{R: n.R, G: n.G, B: n.B})
		}
	}
	return buf
}

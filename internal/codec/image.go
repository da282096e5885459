package codec

import (
	"image"
	"image/color"
	"io"
)

func init() {
	image.RegisterFormat("bmp", "BM????\x00\x00\x00\x00", decodeImage, decodeImageConfig)
}

func decodeImage(r io.Reader) (image.Image, error) {
	res, err := NewDecoder(DecodeOptions{}).Decode(r)
	if err != nil {
		return nil, err
	}
	return res.Image.Image(), nil
}

func decodeImageConfig(r io.Reader) (image.Config, error) {
	h, err := NewDecoder(DecodeOptions{}).DecodeConfig(r)
	if err != nil {
		return image.Config{}, err
	}

	cfg := image.Config{
		ColorModel: color.RGBAModel,
		Width:      int(h.Width),
		Height:     int(h.Height),
	}

	if n := h.PaletteColorCount(); n > 0 {
		colors, err := DecodePalette(r, n)
		if err != nil {
			return image.Config{}, err
		}
		pal := make(color.Palette, len(colors))
		for i, c := range colors {
			pal[i] = color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}
		}
		cfg.ColorModel = pal
	}

	return cfg, nil
}

package imaging

import (
	"image/color"

	"github.com/fogleman/gg"
)

// WatermarkOptions configures Watermark's text overlay.
type WatermarkOptions struct {
	FontSize float64
	Color    color.Color
	Opacity  float64
}

// baseFaceSize is the line height, in pixels, of gg's built-in face
// (basicfont.Face7x13). Watermark scales the canvas about the text anchor
// by fontSize/baseFaceSize instead of loading a scalable font file, since
// the transformer stays disk-free.
const baseFaceSize = 13.0

// Watermark composites text at bottom-center (x=50%, y=95%) onto data at
// natural size and re-encodes as jpeg.
func Watermark(data []byte, text string, opts WatermarkOptions) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	fontSize := opts.FontSize
	if fontSize <= 0 {
		fontSize = float64(min(width, height)) / 20
	}
	textColor := opts.Color
	if textColor == nil {
		textColor = color.White
	}
	opacity := opts.Opacity
	if opacity <= 0 {
		opacity = 0.7
	}

	dc := gg.NewContext(width, height)
	dc.DrawImage(img, 0, 0)
	dc.SetColor(withOpacity(textColor, opacity))

	x, y := float64(width)*0.5, float64(height)*0.95
	scale := fontSize / baseFaceSize
	dc.Push()
	dc.ScaleAbout(scale, scale, x, y)
	dc.DrawStringAnchored(text, x, y, 0.5, 0.5)
	dc.Pop()

	return encode(dc.Image(), "jpeg", DefaultQuality)
}

func withOpacity(c color.Color, opacity float64) color.Color {
	r, g, b, a := c.RGBA()
	alpha := uint8(float64(a>>8) * opacity)
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: alpha}
}

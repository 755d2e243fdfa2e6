package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// BlurPlaceholderOptions configures BlurPlaceholder.
type BlurPlaceholderOptions struct {
	Width           int
	Height          int
	BlurRadius      float64
	Quality         int
	MobileOptimized bool
}

// BlurPlaceholder produces a small, blurred jpeg stand-in for data, suitable
// for a low-bandwidth preview while the full optimization completes. The
// jpeg is encoded with image/jpeg, so it is baseline, not progressive.
func BlurPlaceholder(data []byte, opts BlurPlaceholderOptions) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	width := opts.Width
	if width <= 0 {
		width = 40
	}
	blurRadius := opts.BlurRadius
	if blurRadius <= 0 {
		blurRadius = 15
	}
	quality := opts.Quality
	if quality <= 0 {
		quality = 15
	}

	height := opts.Height
	if opts.MobileOptimized && height <= 0 {
		if width > 40 {
			width = 40
		}
		bounds := img.Bounds()
		height = int(float64(width) * float64(bounds.Dy()) / float64(bounds.Dx()))
	}

	var resized image.Image
	if height > 0 {
		resized = imaging.Fit(img, width, height, imaging.Lanczos)
		resized = imaging.PasteCenter(
			imaging.New(width, height, color.NRGBA{R: 128, G: 128, B: 128, A: 255}),
			resized,
		)
	} else {
		resized = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	blurred := imaging.Blur(resized, blurRadius)

	effectiveQuality := quality
	if opts.MobileOptimized {
		effectiveQuality = quality - 5
		if effectiveQuality < 10 {
			effectiveQuality = 10
		}
	}

	var buf bytes.Buffer
	err = jpeg.Encode(&buf, blurred, &jpeg.Options{Quality: clampQuality(effectiveQuality)})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

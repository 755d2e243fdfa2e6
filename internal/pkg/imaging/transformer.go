// Package imaging implements the pure, side-effect-free image transform
// operations: optimize, convert, thumbnail, watermark, blurPlaceholder and
// metadata extraction. Every function operates on in-memory buffers only;
// none of them touch disk or the network.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

func init() {
	// Register decode-only formats alongside the stdlib's jpeg/png/gif so
	// that image.Decode transparently handles every input format listed
	// in the supported-formats table.
	image.RegisterFormat("webp", "RIFF????WEBP", webp.Decode, webp.DecodeConfig)
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
	image.RegisterFormat("tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff", "MM\x00*", tiff.Decode, tiff.DecodeConfig)
}

// DefaultQuality is used by optimize when the caller does not specify one,
// and always by thumbnail and watermark.
const DefaultQuality = 80

// ConvertDefaultQuality is the higher default used by Convert.
const ConvertDefaultQuality = 90

// autoCandidateOrder is the tie-break order for "auto" format selection:
// the smallest-encoding candidate wins, ties broken by this order.
var autoCandidateOrder = []string{"jpeg", "webp", "avif", "png"}

// Options mirrors registry.OptimizationOptions for the transformer's own
// call boundary, keeping this package importable without the registry's
// context-store concerns.
type Options struct {
	Width      int
	Height     int
	Quality    int
	Format     string
	BlurRadius int
}

// ErrAllCandidatesFailed is returned by Optimize when format is "auto" and
// every candidate encoder failed.
var ErrAllCandidatesFailed = fmt.Errorf("imaging: all auto-format candidates failed to encode")

// ErrUnsupportedCodec is returned by formats this build cannot encode
// (webp, avif — no encoder is available in the dependency set; decoding is
// supported but writing is not).
var ErrUnsupportedCodec = fmt.Errorf("imaging: unsupported output codec")

// Decode decodes raw bytes into an image.Image, reporting the detected
// source format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode failed: %w", err)
	}
	return img, format, nil
}

// Optimize resizes (if width/height given, fitting inside the box without
// enlarging) and re-encodes img per Options.Format. "auto" tries every
// candidate in autoCandidateOrder and keeps the smallest successful
// encoding.
func Optimize(data []byte, opts Options) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if opts.Width > 0 || opts.Height > 0 {
		img = fitInsideNoEnlarge(img, opts.Width, opts.Height)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	if opts.Format == "" || opts.Format == "auto" {
		return encodeSmallestOf(img, autoCandidateOrder, quality)
	}
	return encode(img, opts.Format, quality)
}

// Convert re-encodes data into format at a higher default quality (90),
// without resizing.
func Convert(data []byte, format string) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return encode(img, format, ConvertDefaultQuality)
}

// Thumbnail produces a jpeg thumbnail. When height is set it uses a
// center-weighted cover fit; otherwise an inside fit. Never enlarges.
func Thumbnail(data []byte, width, height int) ([]byte, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	var resized image.Image
	if height > 0 {
		resized = coverFitNoEnlarge(img, width, height)
	} else {
		resized = fitInsideNoEnlarge(img, width, 0)
	}

	return encode(resized, "jpeg", DefaultQuality)
}

// Metadata describes the decoded shape of an image without re-encoding it.
type Metadata struct {
	Width    int
	Height   int
	Format   string
	Size     int
	Channels int
	Density  int
}

// ExtractMetadata inspects data and reports its dimensions, detected
// format, byte size, approximate channel count and a nominal density.
func ExtractMetadata(data []byte) (Metadata, error) {
	img, format, err := Decode(data)
	if err != nil {
		return Metadata{}, err
	}
	bounds := img.Bounds()
	return Metadata{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Format:   format,
		Size:     len(data),
		Channels: channelsOf(img),
		Density:  72,
	}, nil
}

func channelsOf(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return 4
	default:
		return 3
	}
}

// fitInsideNoEnlarge fits img inside width x height preserving aspect
// ratio, never upscaling. A zero dimension is treated as unconstrained.
func fitInsideNoEnlarge(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	targetW, targetH := clampFitBox(bounds.Dx(), bounds.Dy(), width, height)
	if targetW >= bounds.Dx() && targetH >= bounds.Dy() {
		return img
	}
	return imaging.Fit(img, targetW, targetH, imaging.Lanczos)
}

// coverFitNoEnlarge crops/fills img to width x height, center weighted,
// without enlarging: each requested side is first clamped to the source's
// own dimension.
func coverFitNoEnlarge(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if width > bounds.Dx() {
		width = bounds.Dx()
	}
	if height > bounds.Dy() {
		height = bounds.Dy()
	}
	if width == bounds.Dx() && height == bounds.Dy() {
		return img
	}
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
}

// clampFitBox resolves a possibly-partial (width, height) box: a zero
// dimension is derived from the other via the source's own aspect ratio.
func clampFitBox(srcW, srcH, width, height int) (int, int) {
	if width > 0 && height > 0 {
		return width, height
	}
	if width > 0 {
		return width, int(float64(width) * float64(srcH) / float64(srcW))
	}
	if height > 0 {
		return int(float64(height) * float64(srcW) / float64(srcH)), height
	}
	return srcW, srcH
}

func encodeSmallestOf(img image.Image, candidates []string, quality int) ([]byte, error) {
	var best []byte
	for _, format := range candidates {
		out, err := encode(img, format, quality)
		if err != nil {
			continue
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
	}
	if best == nil {
		return nil, ErrAllCandidatesFailed
	}
	return best, nil
}

func encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
			return nil, err
		}
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	case "tiff":
		if err := tiff.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	case "webp", "avif":
		// No encoder for this codec ships in the dependency set (the
		// webp package here is decode-only); treat as a failed candidate
		// per the auto-format failure-handling rule rather than
		// fabricating an encoder or mislabeling other bytes.
		return nil, ErrUnsupportedCodec
	default:
		return nil, fmt.Errorf("imaging: unsupported output format %q", format)
	}
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

func mimeFromFormat(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "avif":
		return "image/avif"
	case "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// MimeFromFormat maps an output format name to its MIME type.
func MimeFromFormat(format string) string {
	return mimeFromFormat(format)
}

package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/frames"
)

// DefaultQuality is the JPEG quality used for every encoded keyframe
const DefaultQuality = 75

// Input holds exactly one image source
type Input struct {
	Data  []byte
	Path  string
	Image image.Image
}

func (in Input) count() int {
	n := 0
	if len(in.Data) > 0 {
		n++
	}
	if in.Path != "" {
		n++
	}
	if in.Image != nil {
		n++
	}
	return n
}

// Normalizer re-encodes frames at a bounded width for provider transport
type Normalizer struct {
	logger  zerolog.Logger
	quality int
}

// NewNormalizer creates a normalizer with the default JPEG quality
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		logger:  logger.With().Str("component", "normalizer").Logger(),
		quality: DefaultQuality,
	}
}

// Normalize decodes in, flattens it to RGB, shrinks it to targetWidth if it
// is larger, and returns the base64 JPEG.
func (n *Normalizer) Normalize(in Input, targetWidth int) (string, error) {
	data, err := n.NormalizeJPEG(in, targetWidth)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// NormalizeJPEG is Normalize without the base64 step
func (n *Normalizer) NormalizeJPEG(in Input, targetWidth int) ([]byte, error) {
	if in.count() != 1 {
		return nil, frames.BadInput("exactly one of image data, path or decoded image is required")
	}
	if targetWidth <= 0 {
		return nil, frames.BadInput("target width must be positive, got %d", targetWidth)
	}

	img, err := n.load(in)
	if err != nil {
		return nil, err
	}

	flat := Flatten(img)
	out := Fit(flat, targetWidth)

	n.logger.Debug().
		Int("src_width", flat.Bounds().Dx()).
		Int("src_height", flat.Bounds().Dy()).
		Int("width", out.Bounds().Dx()).
		Int("height", out.Bounds().Dy()).
		Msg("frame normalized")

	return EncodeJPEG(out, n.quality)
}

func (n *Normalizer) load(in Input) (image.Image, error) {
	switch {
	case in.Image != nil:
		return in.Image, nil
	case in.Path != "":
		return DecodeFile(in.Path)
	default:
		return DecodeBytes(in.Data)
	}
}

// Fit shrinks img to targetWidth keeping its aspect ratio. Images already
// within bounds are returned unchanged.
func Fit(img image.Image, targetWidth int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return img
	}

	aspect := float64(w) / float64(h)
	targetHeight := int(float64(targetWidth) / aspect)

	if w > targetWidth || h > targetHeight {
		return resize.Resize(uint(targetWidth), uint(targetHeight), img, resize.Bilinear)
	}
	return img
}

// EncodeJPEG encodes img at the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

package scoring

import (
	"image"

	"github.com/rs/zerolog"
)

// SSIM stabilizer constants for 8-bit images
const (
	K1           = 0.005
	K2           = 0.015
	DynamicRange = 255.0
)

// SSIMScorer computes a single-window structural similarity index
type SSIMScorer struct {
	logger zerolog.Logger
	c1     float64
	c2     float64
}

// NewSSIMScorer creates a scorer with the standard stabilizers
func NewSSIMScorer(logger zerolog.Logger) *SSIMScorer {
	return &SSIMScorer{
		logger: logger.With().Str("scorer", "ssim").Logger(),
		c1:     (K1 * DynamicRange) * (K1 * DynamicRange),
		c2:     (K2 * DynamicRange) * (K2 * DynamicRange),
	}
}

// Score returns the SSIM of the overlapping top-left region of both frames.
// Frames of different sizes are clipped to their intersection. An empty
// intersection scores 0.
func (s *SSIMScorer) Score(previous, current *image.Gray) float64 {
	pb, cb := previous.Bounds(), current.Bounds()
	w := min(pb.Dx(), cb.Dx())
	h := min(pb.Dy(), cb.Dy())
	n := w * h
	if n == 0 {
		return 0
	}

	var sum1, sum2 float64
	for y := 0; y < h; y++ {
		prow := previous.Pix[previous.PixOffset(pb.Min.X, pb.Min.Y+y):]
		crow := current.Pix[current.PixOffset(cb.Min.X, cb.Min.Y+y):]
		for x := 0; x < w; x++ {
			sum1 += float64(prow[x])
			sum2 += float64(crow[x])
		}
	}
	mu1 := sum1 / float64(n)
	mu2 := sum2 / float64(n)

	var var1, var2, cov float64
	for y := 0; y < h; y++ {
		prow := previous.Pix[previous.PixOffset(pb.Min.X, pb.Min.Y+y):]
		crow := current.Pix[current.PixOffset(cb.Min.X, cb.Min.Y+y):]
		for x := 0; x < w; x++ {
			d1 := float64(prow[x]) - mu1
			d2 := float64(crow[x]) - mu2
			var1 += d1 * d1
			var2 += d2 * d2
			cov += d1 * d2
		}
	}

	// Variances are population estimates, covariance is the sample estimate.
	var1 /= float64(n)
	var2 /= float64(n)
	if n > 1 {
		cov /= float64(n - 1)
	} else {
		cov /= float64(n)
	}

	ssim := ((2*mu1*mu2 + s.c1) * (2*cov + s.c2)) /
		((mu1*mu1 + mu2*mu2 + s.c1) * (var1 + var2 + s.c2))

	s.logger.Debug().
		Int("width", w).
		Int("height", h).
		Float64("mu1", mu1).
		Float64("mu2", mu2).
		Float64("ssim", ssim).
		Msg("frames compared")

	return ssim
}

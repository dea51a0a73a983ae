package scoring

import (
	"image"

	"golang.org/x/image/draw"
)

// Scorer compares two consecutive grayscale frames. Lower scores mean the
// current frame carries more new information.
type Scorer interface {
	Score(previous, current *image.Gray) float64
}

// ScorerFunc adapts a plain function to the Scorer interface
type ScorerFunc func(previous, current *image.Gray) float64

// Score calls f
func (f ScorerFunc) Score(previous, current *image.Gray) float64 {
	return f(previous, current)
}

// ToGray projects img onto a single luma channel (ITU-R 601 weights).
// The result always starts at the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

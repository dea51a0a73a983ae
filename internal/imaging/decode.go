package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	// Registered decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kikiluvv/framesift/internal/scoring"
)

// Decode reads a single image. Animated GIFs yield their first frame.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// DecodeBytes decodes an in-memory image
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: empty payload")
	}
	img, _, err := Decode(bytes.NewReader(data))
	return img, err
}

// DecodeFile opens, decodes and closes an image file
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// GrayFromBytes decodes data straight to its luma projection for scoring
func GrayFromBytes(data []byte) (*image.Gray, error) {
	img, err := DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	return scoring.ToGray(img), nil
}

// GrayFromFile decodes a frame file to its luma projection
func GrayFromFile(path string) (*image.Gray, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return scoring.ToGray(img), nil
}

// Flatten converts any color model (paletted, alpha, gray, YCbCr) to opaque
// RGB. Alpha is dropped rather than composited, matching a plain mode
// conversion.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := out.PixOffset(x-b.Min.X, y-b.Min.Y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

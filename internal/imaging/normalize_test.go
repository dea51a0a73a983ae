package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/framesift/internal/frames"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func decodeResult(t *testing.T, encoded string) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	img, format, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	return img
}

func TestNormalizeKeepsAspectRatio(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	out, err := n.Normalize(Input{Image: solid(1920, 1080, color.RGBA{10, 20, 30, 255})}, 480)
	require.NoError(t, err)

	img := decodeResult(t, out)
	assert.Equal(t, 480, img.Bounds().Dx())
	assert.InDelta(t, 270, img.Bounds().Dy(), 1)
}

func TestNormalizeNeverUpscales(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	out, err := n.Normalize(Input{Image: solid(320, 240, color.White)}, 1280)
	require.NoError(t, err)

	img := decodeResult(t, out)
	assert.Equal(t, image.Rect(0, 0, 320, 240), img.Bounds())
}

func TestNormalizeFromBytesAndPath(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(800, 600, color.Black)))

	fromBytes, err := n.Normalize(Input{Data: buf.Bytes()}, 400)
	require.NoError(t, err)
	assert.Equal(t, 400, decodeResult(t, fromBytes).Bounds().Dx())

	path := filepath.Join(t.TempDir(), "frame.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	fromPath, err := n.Normalize(Input{Path: path}, 400)
	require.NoError(t, err)
	assert.Equal(t, fromBytes, fromPath)
}

func TestNormalizeRequiresExactlyOneInput(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	_, err := n.Normalize(Input{}, 100)
	kind, ok := frames.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, frames.KindBadInput, kind)

	_, err = n.Normalize(Input{Data: []byte{1}, Path: "x.png"}, 100)
	assert.True(t, frames.IsValidation(err))
}

func TestNormalizeMissingFile(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	_, err := n.Normalize(Input{Path: filepath.Join(t.TempDir(), "missing.jpg")}, 100)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNormalizeCorruptData(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	_, err := n.Normalize(Input{Data: []byte("definitely not an image")}, 100)
	assert.Error(t, err)
}

func TestFlattenDropsAlphaAndPalette(t *testing.T) {
	rgba := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	rgba.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0})

	flat := Flatten(rgba)
	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, flat.RGBAAt(0, 0))

	pal := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.RGBA{0, 0, 255, 255}})
	pal.SetColorIndex(1, 1, 1)
	flat = Flatten(pal)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, flat.RGBAAt(1, 1))
}

func TestNormalizeAnimatedGIF(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	palette := color.Palette{color.Black, color.White}
	anim := &gif.GIF{}
	for i := 0; i < 3; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 64, 32), palette)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))

	out, err := n.Normalize(Input{Data: buf.Bytes()}, 32)
	require.NoError(t, err)
	img := decodeResult(t, out)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestGrayFromBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(4, 3, color.White)))

	gray, err := GrayFromBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), gray.Bounds())
	assert.Equal(t, uint8(255), gray.GrayAt(2, 2).Y)

	_, err = GrayFromBytes(nil)
	assert.Error(t, err)
}

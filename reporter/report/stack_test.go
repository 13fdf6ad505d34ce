package report

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestStack(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}

	stacked := Stack([]image.Image{solidImage(4, 2, red), solidImage(2, 3, blue)})

	assert.Equal(t, image.Rect(0, 0, 4, 6), stacked.Bounds())
	assert.Equal(t, red, stacked.RGBAAt(3, 1))
	assert.Equal(t, SeparatorColor, stacked.RGBAAt(0, 2), "separator row")
	assert.Equal(t, blue, stacked.RGBAAt(1, 3))
	assert.Equal(t, SeparatorColor, stacked.RGBAAt(3, 4), "narrow image leaves background")
}

func TestStackVertically(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	writePNG(t, a, solidImage(10, 5, color.White))
	writePNG(t, b, solidImage(8, 4, color.Black))

	out := filepath.Join(dir, "diff.png")
	require.NoError(t, StackVertically([]string{a, b}, out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestStackVerticallyErrors(t *testing.T) {
	dir := t.TempDir()

	err := StackVertically(nil, filepath.Join(dir, "out.png"))
	assert.ErrorIs(t, err, ErrNothingToStack)

	err = StackVertically([]string{filepath.Join(dir, "missing.png")}, filepath.Join(dir, "out.png"))
	assert.Error(t, err)
}

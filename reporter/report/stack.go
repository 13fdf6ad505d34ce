package report

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
)

// SeparatorColor fills the background of stacked images
var SeparatorColor = color.RGBA{R: 208, G: 215, B: 222, A: 255}

const separatorHeight = 1

// ErrNothingToStack is returned by StackVertically without inputs
var ErrNothingToStack = errors.New("no images to stack")

// StackVertically writes the images at paths to out, one below the other,
// left aligned and separated by a 1px line.
func StackVertically(paths []string, out string) error {
	if len(paths) == 0 {
		return ErrNothingToStack
	}

	imgs := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		img, err := readPNG(path)
		if err != nil {
			return err
		}
		imgs = append(imgs, img)
	}

	stacked := Stack(imgs)

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := png.Encode(f, stacked); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", out, err)
	}
	return f.Close()
}

// Stack composes images vertically
func Stack(imgs []image.Image) *image.RGBA {
	width, height := 0, 0
	for i, img := range imgs {
		b := img.Bounds()
		if b.Dx() > width {
			width = b.Dx()
		}
		height += b.Dy()
		if i > 0 {
			height += separatorHeight
		}
	}

	stacked := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(stacked, stacked.Bounds(), &image.Uniform{C: SeparatorColor}, image.Point{}, draw.Src)

	y := 0
	for _, img := range imgs {
		b := img.Bounds()
		dst := image.Rect(0, y, b.Dx(), y+b.Dy())
		draw.Draw(stacked, dst, img, b.Min, draw.Src)
		y += b.Dy() + separatorHeight
	}
	return stacked
}

func readPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

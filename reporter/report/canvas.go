package report

import (
	"image/color"
)

// Palette used by every chart
var (
	ColorTargetRaw   = color.RGBA{R: 176, G: 196, B: 222, A: 255}
	ColorTargetTrend = color.RGBA{R: 112, G: 128, B: 144, A: 255}
	ColorGood        = color.RGBA{R: 34, G: 139, B: 34, A: 255}
	ColorBad         = color.RGBA{R: 178, G: 34, B: 34, A: 255}
	ColorTitles      = color.RGBA{R: 105, G: 105, B: 105, A: 255}
	ColorBackground  = color.White
)

// Faded returns c with the given opacity
func Faded(c color.Color, alpha float64) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(alpha * 255)}
}

// MarkerShape selects the glyph of a point marker
type MarkerShape int

const (
	MarkerCircle MarkerShape = iota
	MarkerTriangle
)

// Tick is an axis tick with its label
type Tick struct {
	Value float64
	Label string
}

// Canvas is the drawing capability the renderer drives. The renderer only
// issues instructions; the implementation owns pixels and file formats.
type Canvas interface {
	NewFigure(title string, rows, cols int) Figure
}

// Figure is a titled grid of panels saved as one image
type Figure interface {
	Panel(row, col int) Panel
	Save(path string) error
}

// Panel is a single chart inside a figure
type Panel interface {
	SetTitle(text string)
	Points(xs, ys []float64, c color.Color)
	Line(xs, ys []float64, c color.Color, width float64)
	Stem(x, from, to float64, c color.Color, width float64)
	Marker(x, y float64, shape MarkerShape, c color.Color)
	VLine(x float64, c color.Color)
	Text(x, y float64, s string, c color.Color)
	XTicks(ticks []Tick)
	YTicks(ticks []Tick)
	XRange(min, max float64)
}

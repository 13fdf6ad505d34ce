package report

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlotCanvasSavesPNG(t *testing.T) {
	canvas := NewPlotCanvas()
	fig := canvas.NewFigure("Latency", 1, 2)

	nan := math.NaN()
	panel := fig.Panel(0, 0)
	panel.SetTitle("p50")
	panel.Points([]float64{0, 1, 2, 3}, []float64{10, nan, 12, 11}, ColorTargetRaw)
	panel.Line([]float64{0, 1, 2, 3}, []float64{10, 10, 11, 11}, ColorTargetTrend, 0.5)
	panel.Stem(4, 11, 14, Faded(ColorBad, 0.3), 2)
	panel.Stem(5, 11, 9, ColorGood, 2)
	panel.Marker(5, 9, MarkerTriangle, ColorGood)
	panel.VLine(2, ColorBad)
	panel.Text(2, 14, "11.0", ColorBad)
	panel.YTicks([]Tick{{Value: 9, Label: "9.0\n(-18%)"}, {Value: 11, Label: "11.0"}, {Value: nan, Label: "x"}})
	panel.XTicks([]Tick{{Value: 0, Label: "1"}, {Value: 3, Label: "4"}})
	panel.XRange(-0.5, 5.5)

	// A panel with nothing but missing values still renders
	fig.Panel(0, 1).Points([]float64{0}, []float64{nan}, ColorTargetRaw)

	path := filepath.Join(t.TempDir(), "out", "Latency.png")
	require.NoError(t, fig.Save(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.Width)
	assert.Equal(t, 350, cfg.Height)
}

func TestFinitePoints(t *testing.T) {
	pts := finitePoints([]float64{0, 1, 2, 3}, []float64{1, math.NaN(), math.Inf(1), 4})
	require.Len(t, pts, 2)
	assert.Equal(t, 0.0, pts[0].X)
	assert.Equal(t, 3.0, pts[1].X)
}

func TestConstantTicksSkipsMissing(t *testing.T) {
	ticks := constantTicks([]Tick{{Value: 1, Label: "a"}, {Value: math.NaN(), Label: "b"}})
	require.Len(t, ticks, 1)
	assert.Equal(t, "a", ticks[0].Label)
}

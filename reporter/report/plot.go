package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	defaultPanelSize = 3 * vg.Inch
	defaultDPI       = 100
	titleHeight      = 0.5 * vg.Inch
)

// PlotCanvas renders figures to PNG with gonum/plot
type PlotCanvas struct {
	PanelSize vg.Length
	DPI       int
}

// NewPlotCanvas returns a canvas with 3in square panels at 100 dpi
func NewPlotCanvas() *PlotCanvas {
	return &PlotCanvas{PanelSize: defaultPanelSize, DPI: defaultDPI}
}

func (c *PlotCanvas) NewFigure(title string, rows, cols int) Figure {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	panels := make([][]*plotPanel, rows)
	for i := range panels {
		panels[i] = make([]*plotPanel, cols)
	}
	return &plotFigure{
		title:  title,
		rows:   rows,
		cols:   cols,
		size:   c.PanelSize,
		dpi:    c.DPI,
		panels: panels,
	}
}

type plotFigure struct {
	title      string
	rows, cols int
	size       vg.Length
	dpi        int
	panels     [][]*plotPanel
}

func (f *plotFigure) Panel(row, col int) Panel {
	if f.panels[row][col] == nil {
		f.panels[row][col] = newPlotPanel()
	}
	return f.panels[row][col]
}

func (f *plotFigure) Save(path string) error {
	plots := make([][]*plot.Plot, f.rows)
	for i := range plots {
		plots[i] = make([]*plot.Plot, f.cols)
		for j, panel := range f.panels[i] {
			if panel == nil {
				continue
			}
			if panel.err != nil {
				return fmt.Errorf("panel %q: %w", panel.p.Title.Text, panel.err)
			}
			panel.finish()
			plots[i][j] = panel.p
		}
	}

	width := f.size * vg.Length(f.cols)
	height := f.size*vg.Length(f.rows) + titleHeight
	img := vgimg.NewWith(
		vgimg.UseWH(width, height),
		vgimg.UseDPI(f.dpi),
		vgimg.UseBackgroundColor(ColorBackground),
	)
	dc := draw.New(img)

	titleStyle := plot.New().Title.TextStyle
	titleStyle.Color = ColorTitles
	titleStyle.Font = font.From(plot.DefaultFont, vg.Points(16))
	titleStyle.XAlign = draw.XLeft
	titleStyle.YAlign = draw.YTop
	dc.FillText(titleStyle, vg.Point{X: dc.Min.X + 0.1*vg.Inch, Y: dc.Max.Y - 0.1*vg.Inch}, f.title)

	tiles := draw.Tiles{
		Rows:      f.rows,
		Cols:      f.cols,
		PadTop:    titleHeight,
		PadBottom: 0.1 * vg.Inch,
		PadLeft:   0.1 * vg.Inch,
		PadRight:  0.1 * vg.Inch,
		PadX:      0.2 * vg.Inch,
		PadY:      0.2 * vg.Inch,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		for j, p := range plots[i] {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return out.Close()
}

type plotPanel struct {
	p          *plot.Plot
	xmin, xmax float64
	hasRange   bool
	err        error
}

func newPlotPanel() *plotPanel {
	p := plot.New()
	p.Title.TextStyle.Color = ColorTitles
	p.Title.TextStyle.Font = font.From(plot.DefaultFont, vg.Points(10))
	p.X.Tick.Label.Font = font.From(plot.DefaultFont, vg.Points(7))
	p.Y.Tick.Label.Font = font.From(plot.DefaultFont, vg.Points(7))
	p.X.Tick.Marker = plot.ConstantTicks(nil)
	p.Y.Tick.Marker = plot.ConstantTicks(nil)
	return &plotPanel{p: p}
}

// record keeps the first error; drawing after an error is a no-op
func (pp *plotPanel) record(err error) {
	if pp.err == nil {
		pp.err = err
	}
}

func (pp *plotPanel) finish() {
	if pp.hasRange {
		pp.p.X.Min, pp.p.X.Max = pp.xmin, pp.xmax
	}
}

func (pp *plotPanel) SetTitle(text string) {
	pp.p.Title.Text = text
}

func (pp *plotPanel) Points(xs, ys []float64, c color.Color) {
	pts := finitePoints(xs, ys)
	if len(pts) == 0 {
		return
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		pp.record(err)
		return
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(2)
	s.GlyphStyle.Shape = draw.CircleGlyph{}
	pp.p.Add(s)
}

func (pp *plotPanel) Line(xs, ys []float64, c color.Color, width float64) {
	pts := finitePoints(xs, ys)
	if len(pts) == 0 {
		return
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		pp.record(err)
		return
	}
	l.LineStyle.Color = c
	l.LineStyle.Width = vg.Points(width)
	pp.p.Add(l)
}

func (pp *plotPanel) Stem(x, from, to float64, c color.Color, width float64) {
	pp.Line([]float64{x, x}, []float64{from, to}, c, width)
}

func (pp *plotPanel) Marker(x, y float64, shape MarkerShape, c color.Color) {
	pts := finitePoints([]float64{x}, []float64{y})
	if len(pts) == 0 {
		return
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		pp.record(err)
		return
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(4)
	if shape == MarkerTriangle {
		s.GlyphStyle.Shape = draw.TriangleGlyph{}
	} else {
		s.GlyphStyle.Shape = draw.CircleGlyph{}
	}
	pp.p.Add(s)
}

func (pp *plotPanel) VLine(x float64, c color.Color) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return
	}
	pp.p.Add(verticalLine{x: x, style: draw.LineStyle{
		Color:  c,
		Width:  vg.Points(0.5),
		Dashes: []vg.Length{vg.Points(2), vg.Points(2)},
	}})
}

func (pp *plotPanel) Text(x, y float64, s string, c color.Color) {
	pts := finitePoints([]float64{x}, []float64{y})
	if len(pts) == 0 {
		return
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: []string{s}})
	if err != nil {
		pp.record(err)
		return
	}
	labels.TextStyle[0].Color = c
	labels.TextStyle[0].Font = font.From(plot.DefaultFont, vg.Points(7))
	labels.Offset = vg.Point{X: vg.Points(2), Y: vg.Points(2)}
	pp.p.Add(labels)
}

func (pp *plotPanel) XTicks(ticks []Tick) {
	pp.p.X.Tick.Marker = constantTicks(ticks)
}

func (pp *plotPanel) YTicks(ticks []Tick) {
	pp.p.Y.Tick.Marker = constantTicks(ticks)
}

func (pp *plotPanel) XRange(min, max float64) {
	pp.xmin, pp.xmax, pp.hasRange = min, max, true
}

func constantTicks(ticks []Tick) plot.ConstantTicks {
	out := make(plot.ConstantTicks, 0, len(ticks))
	for _, t := range ticks {
		if math.IsNaN(t.Value) || math.IsInf(t.Value, 0) {
			continue
		}
		out = append(out, plot.Tick{Value: t.Value, Label: t.Label})
	}
	return out
}

func finitePoints(xs, ys []float64) plotter.XYs {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	pts := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) || math.IsInf(xs[i], 0) || math.IsInf(ys[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
	}
	return pts
}

// verticalLine spans the full height of the data area
type verticalLine struct {
	x     float64
	style draw.LineStyle
}

func (v verticalLine) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, _ := plt.Transforms(&c)
	x := trX(v.x)
	c.StrokeLine2(v.style, x, c.Min.Y, x, c.Max.Y)
}

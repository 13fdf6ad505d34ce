package report

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/analysis"
	"github.com/cimetrics/reporter/types"
)

// Mode selects what a report shows
type Mode string

const (
	// ModeDiff compares the current branch against the target trend
	ModeDiff Mode = "diff"
	// ModeMonitor shows the target trend alone with level shifts
	ModeMonitor Mode = "monitor"
)

// Input is everything a report is rendered from. Target and Trend are
// already cut to the displayed span and share their rows.
type Input struct {
	Mode Mode
	// Target is the raw history of the target branch
	Target *analysis.SeriesTable
	// Trend is the smoothed target history
	Trend *analysis.SeriesTable
	// Branch is the recent history of the current branch, diff mode only
	Branch     *analysis.SeriesTable
	Comparison *analysis.Comparison
	Groups     *analysis.GroupAssignment
	// Anomalies are row positions in Target, per metric, monitor mode only
	Anomalies map[string][]int
	Columns   int
}

// Renderer draws one chart per metric group
type Renderer struct {
	canvas Canvas
	log    logrus.FieldLogger
}

func NewRenderer(canvas Canvas, log logrus.FieldLogger) *Renderer {
	return &Renderer{
		canvas: canvas,
		log:    log.WithField("component", "renderer"),
	}
}

// RenderGroups writes <group>.png into dir for every group, in group order,
// and returns the written paths
func (r *Renderer) RenderGroups(dir string, in *Input) ([]string, error) {
	if in.Groups == nil {
		return nil, nil
	}
	ncol := in.Columns
	if ncol < 1 {
		ncol = 1
	}

	var files []string
	for _, group := range in.Groups.Order {
		members := in.Groups.Members(group)
		if len(members) == 0 {
			continue
		}
		nrow := (len(members) + ncol - 1) / ncol
		fig := r.canvas.NewFigure(group, nrow, ncol)
		for i, name := range members {
			panel := fig.Panel(i/ncol, i%ncol)
			panel.SetTitle(types.DisplayName(name))
			if in.Mode == ModeMonitor {
				r.drawMonitorPanel(panel, name, in)
			} else {
				r.drawDiffPanel(panel, name, in)
			}
		}

		path := filepath.Join(dir, GroupFileName(group))
		if err := fig.Save(path); err != nil {
			return files, fmt.Errorf("failed to save chart for group %s: %w", group, err)
		}
		r.log.WithField("group", group).WithField("metrics", len(members)).Debug("Rendered group chart")
		files = append(files, path)
	}
	return files, nil
}

// GroupFileName is the image file name of a group chart
func GroupFileName(group string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(group)
	return name + ".png"
}

func positions(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}

func (r *Renderer) drawTarget(panel Panel, name string, in *Input) bool {
	if !in.Target.Has(name) {
		return false
	}
	n := in.Target.Len()
	panel.Points(positions(n), in.Target.Column(name), ColorTargetRaw)
	panel.Line(positions(n), in.Trend.Column(name), ColorTargetTrend, 0.5)
	return true
}

func statusColor(good bool) color.Color {
	if good {
		return ColorGood
	}
	return ColorBad
}

func (r *Renderer) drawDiffPanel(panel Panel, name string, in *Input) {
	hasTarget := r.drawTarget(panel, name, in)
	nTarget := in.Target.Len()

	branchCol := in.Branch.Column(name)
	branchVal, ok := in.Branch.Last(name)
	if !ok {
		if nTarget > 0 {
			panel.XTicks(buildTicks(in.Target, []int{0, nTarget - 1}))
			panel.XRange(-0.5, float64(nTarget)-0.5)
		}
		return
	}

	baseline := branchVal
	if hasTarget {
		if v, ok := in.Trend.Last(name); ok {
			baseline = v
		}
	}
	higherIsBetter := types.HigherIsBetter(name)

	good := true
	percent := math.NaN()
	if in.Comparison != nil {
		if row, found := in.Comparison.Row(name); found {
			good = row.Good()
			percent = row.PercentChange
		}
	}

	markerX := nTarget + len(branchCol) - 1
	for i := 0; i < len(branchCol)-1; i++ {
		v := branchCol[i]
		if math.IsNaN(v) {
			continue
		}
		prevGood := analysis.Classify(v-baseline, higherIsBetter) == analysis.StatusImproved
		panel.Stem(float64(nTarget+i), baseline, v, Faded(statusColor(prevGood), 0.3), 2)
	}

	fill := statusColor(good)
	shape := MarkerTriangle
	if !hasTarget {
		shape = MarkerCircle
	}
	panel.Stem(float64(markerX), baseline, branchVal, fill, 2)
	panel.Marker(float64(markerX), branchVal, shape, fill)

	format := TickFormatter(branchVal)
	branchLabel := format(branchVal)
	yticks := []Tick{{Value: branchVal, Label: branchLabel}}
	if hasTarget {
		yticks[0].Label = fmt.Sprintf("%s\n(%s)", branchLabel, FormatPercent(percent))
		if baseline != branchVal {
			yticks = append(yticks, Tick{Value: baseline, Label: format(baseline)})
		}
	}
	panel.YTicks(yticks)

	if nTarget > 0 {
		panel.XTicks(buildTicks(in.Target, []int{0, nTarget - 1}))
	}
	panel.XRange(-0.5, float64(markerX)+0.5)
}

func (r *Renderer) drawMonitorPanel(panel Panel, name string, in *Input) {
	if !r.drawTarget(panel, name, in) {
		return
	}
	raw := in.Target.Column(name)
	trend := in.Trend.Column(name)
	n := len(raw)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range raw {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return
	}
	top := hi
	for _, v := range trend {
		if !math.IsNaN(v) {
			top = math.Max(top, v)
		}
	}

	xticks := []int{0}
	for _, idx := range in.Anomalies[name] {
		if idx < 0 || idx >= n {
			continue
		}
		xticks = append(xticks, idx)
		panel.VLine(float64(idx), ColorBad)
		panel.Text(float64(idx), top, FormatTick(trend[idx]), ColorBad)
	}
	xticks = append(xticks, n-1)

	format := TickFormatter(lo)
	yticks := []Tick{{Value: lo, Label: format(lo)}}
	if hi != lo {
		yticks = append(yticks, Tick{Value: hi, Label: format(hi)})
	}
	if last, ok := in.Trend.Last(name); ok && last != lo && last != hi {
		yticks = append(yticks, Tick{Value: last, Label: format(last)})
	}
	panel.YTicks(yticks)
	panel.XTicks(buildTicks(in.Target, xticks))
	panel.XRange(-0.5, float64(n)-0.5)
}

func buildTicks(table *analysis.SeriesTable, rows []int) []Tick {
	ticks := make([]Tick, 0, len(rows))
	seen := make(map[int]bool, len(rows))
	for _, i := range rows {
		if i < 0 || i >= table.Len() || seen[i] {
			continue
		}
		seen[i] = true
		ticks = append(ticks, Tick{Value: float64(i), Label: table.Labels[i]})
	}
	return ticks
}

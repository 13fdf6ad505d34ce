package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const dashboardLineWidth = 2

func hexColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: v}
	}
	return data
}

// padded places values at positions [offset, offset+len(values)) of a
// series of length n
func padded(values []float64, offset, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	for i, v := range values {
		if offset+i < n {
			out[offset+i] = v
		}
	}
	return out
}

// WriteDashboard renders an interactive HTML page with one line chart per
// metric, in group order
func WriteDashboard(w io.Writer, title string, in *Input) error {
	page := components.NewPage()
	page.SetPageTitle(title)
	page.SetLayout(components.PageFlexLayout)

	if in.Groups != nil {
		for _, group := range in.Groups.Order {
			for _, name := range in.Groups.Members(group) {
				page.AddCharts(metricChart(group, name, in))
			}
		}
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	return nil
}

// WriteDashboardFile writes WriteDashboard output to path
func WriteDashboardFile(path, title string, in *Input) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteDashboard(f, title, in); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func metricChart(group, name string, in *Input) *charts.Line {
	nTarget := in.Target.Len()
	var branchCol []float64
	if in.Mode != ModeMonitor {
		branchCol = in.Branch.Column(name)
	}
	n := nTarget + len(branchCol)

	labels := make([]string, 0, n)
	if in.Target != nil {
		labels = append(labels, in.Target.Labels...)
	}
	if len(branchCol) > 0 {
		labels = append(labels, in.Branch.Labels...)
	}

	subtitle := group
	if in.Comparison != nil {
		if row, ok := in.Comparison.Row(name); ok {
			subtitle = fmt.Sprintf("%s · %s %s", group, row.Status, FormatPercent(row.PercentChange))
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "480px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: name, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
	)
	line.SetXAxis(labels)

	if in.Target.Has(name) {
		line.AddSeries("target", lineData(padded(in.Target.Column(name), 0, n)),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(ColorTargetRaw)}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: 0, Opacity: opts.Float(0)}),
		)

		trendOpts := []charts.SeriesOpts{
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(ColorTargetTrend)}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: dashboardLineWidth}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		}
		if in.Mode == ModeMonitor {
			for _, idx := range in.Anomalies[name] {
				if idx >= 0 && idx < nTarget {
					trendOpts = append(trendOpts, charts.WithMarkLineNameXAxisItemOpts(
						opts.MarkLineNameXAxisItem{Name: "level shift", XAxis: in.Target.Labels[idx]}))
				}
			}
		}
		line.AddSeries("trend", lineData(padded(in.Trend.Column(name), 0, n)), trendOpts...)
	}

	if len(branchCol) > 0 {
		c := ColorGood
		if in.Comparison != nil {
			if row, ok := in.Comparison.Row(name); ok && !row.Good() {
				c = ColorBad
			}
		}
		line.AddSeries(in.Branch.Labels[len(in.Branch.Labels)-1], lineData(padded(branchCol, nTarget, n)),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(c)}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: dashboardLineWidth}),
		)
	}

	return line
}

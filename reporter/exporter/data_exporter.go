package exporter

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cimetrics/reporter/analysis"
	"github.com/cimetrics/reporter/report"
	"github.com/cimetrics/reporter/trendview"
	"github.com/cimetrics/reporter/types"
)

// Export file names
const (
	ComparisonJSON = "comparison.json"
	ComparisonCSV  = "comparison.csv"
)

// DataExporter writes the comparison in machine readable formats
type DataExporter struct{}

// NewDataExporter creates a new data exporter
func NewDataExporter() *DataExporter {
	return &DataExporter{}
}

func (de *DataExporter) Name() string { return "data" }

// Export writes comparison.json and comparison.csv
func (de *DataExporter) Export(ctx context.Context, dir string, run *trendview.Run) ([]string, error) {
	doc := NewDocument(run)

	if err := de.ExportJSON(doc, filepath.Join(dir, ComparisonJSON)); err != nil {
		return nil, fmt.Errorf("failed to export JSON: %w", err)
	}
	if err := de.ExportCSV(doc, filepath.Join(dir, ComparisonCSV)); err != nil {
		return nil, fmt.Errorf("failed to export CSV: %w", err)
	}
	return []string{ComparisonJSON, ComparisonCSV}, nil
}

// Document is the exported form of a run. Missing or undefined numbers are
// null.
type Document struct {
	Mode            report.Mode       `json:"mode"`
	Branch          string            `json:"branch"`
	TargetBranch    string            `json:"target_branch"`
	BuildID         int64             `json:"build_id"`
	BuildNumber     string            `json:"build_number"`
	DiffAgainstSelf bool              `json:"diff_against_self"`
	Warnings        []string          `json:"warnings,omitempty"`
	TargetBuilds    []int64           `json:"target_builds"`
	Metrics         []MetricRow       `json:"metrics"`
	LevelShifts     []LevelShiftEntry `json:"level_shifts,omitempty"`
	Exported        time.Time         `json:"exported"`
}

// MetricRow is one metric of the report
type MetricRow struct {
	Name           string   `json:"name"`
	Group          string   `json:"group,omitempty"`
	Value          *float64 `json:"value"`
	Baseline       *float64 `json:"baseline"`
	ChangePercent  *float64 `json:"change_percent"`
	Status         string   `json:"status,omitempty"`
	HigherIsBetter bool     `json:"higher_is_better"`
	Error          string   `json:"error,omitempty"`
}

// LevelShiftEntry is a level shift found in the target history
type LevelShiftEntry struct {
	Metric      string  `json:"metric"`
	BuildID     int64   `json:"build_id"`
	BuildNumber string  `json:"build_number"`
	Shift       float64 `json:"shift"`
}

func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NewDocument flattens a run. In diff mode rows follow the comparison order;
// in monitor mode every target metric is listed against its trend.
func NewDocument(run *trendview.Run) *Document {
	in := run.Input
	doc := &Document{
		Mode:         run.Mode,
		Branch:       run.Build.Branch,
		TargetBranch: run.Build.TargetBranch,
		BuildID:      run.Build.BuildID,
		BuildNumber:  run.Build.BuildNumber,
		Warnings:     run.Warnings,
		TargetBuilds: []int64{},
		Metrics:      []MetricRow{},
		Exported:     time.Now().UTC(),
	}
	if in == nil {
		return doc
	}
	if in.Target != nil {
		doc.TargetBuilds = append(doc.TargetBuilds, in.Target.BuildIDs...)
	}

	groupOf := func(name string) string {
		if in.Groups == nil {
			return ""
		}
		g, _ := in.Groups.GroupOf(name)
		return g
	}

	if in.Comparison != nil {
		doc.DiffAgainstSelf = in.Comparison.DiffAgainstSelf
		for _, r := range in.Comparison.Rows {
			row := MetricRow{
				Name:           r.Name,
				Group:          groupOf(r.Name),
				Value:          number(r.BranchValue),
				Baseline:       number(r.BaselineValue),
				Status:         string(r.Status),
				HigherIsBetter: r.HigherIsBetter,
			}
			if r.Err != nil {
				row.Error = r.Err.Kind.String()
			} else {
				row.ChangePercent = number(r.PercentChange)
			}
			doc.Metrics = append(doc.Metrics, row)
		}
		return doc
	}

	for _, name := range in.Target.Columns {
		value, _ := in.Target.Last(name)
		baseline, _ := in.Trend.Last(name)
		doc.Metrics = append(doc.Metrics, MetricRow{
			Name:           name,
			Group:          groupOf(name),
			Value:          number(value),
			Baseline:       number(baseline),
			ChangePercent:  number(analysis.PercentChange(value, baseline)),
			HigherIsBetter: types.HigherIsBetter(name),
		})
		for _, s := range run.Shifts[name] {
			doc.LevelShifts = append(doc.LevelShifts, LevelShiftEntry{
				Metric:      name,
				BuildID:     in.Target.BuildIDs[s.Index],
				BuildNumber: in.Target.Labels[s.Index],
				Shift:       s.Shift,
			})
		}
	}
	return doc
}

// ExportJSON writes the document as indented JSON
func (de *DataExporter) ExportJSON(doc *Document, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(doc); err != nil {
		return err
	}
	return file.Close()
}

func formatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// ExportCSV writes one line per metric
func (de *DataExporter) ExportCSV(doc *Document, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"metric", "group", "value", "baseline", "change_percent", "status", "higher_is_better", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, m := range doc.Metrics {
		row := []string{
			m.Name,
			m.Group,
			formatCell(m.Value),
			formatCell(m.Baseline),
			formatCell(m.ChangePercent),
			m.Status,
			strconv.FormatBool(m.HigherIsBetter),
			m.Error,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/cimetrics/reporter/types"
)

// Status classifies a metric in a comparison
type Status string

const (
	StatusImproved  Status = "improved"
	StatusRegressed Status = "regressed"
	StatusNew       Status = "new"
	StatusDeleted   Status = "deleted"
)

// MetricErrorKind is the numeric condition that prevented a percent change
type MetricErrorKind int

const (
	DivisionByZeroMetric MetricErrorKind = iota + 1
	NaNMetric
)

func (k MetricErrorKind) String() string {
	switch k {
	case DivisionByZeroMetric:
		return "DivisionByZeroMetric"
	case NaNMetric:
		return "NaNMetric"
	default:
		return "UnknownMetricError"
	}
}

// MetricError is attached to a single comparison row; it never aborts the
// rest of the report.
type MetricError struct {
	Metric string
	Kind   MetricErrorKind
}

func (e *MetricError) Error() string {
	switch e.Kind {
	case DivisionByZeroMetric:
		return fmt.Sprintf("%s: baseline is zero, percent change is undefined", e.Metric)
	case NaNMetric:
		return fmt.Sprintf("%s: value is not a number", e.Metric)
	default:
		return fmt.Sprintf("%s: %s", e.Metric, e.Kind)
	}
}

// ComparisonRow is the comparison of one metric against its baseline
type ComparisonRow struct {
	Name           string
	DisplayName    string
	BranchValue    float64
	BaselineValue  float64
	PercentChange  float64
	Status         Status
	HigherIsBetter bool
	Err            *MetricError
}

// Good reports whether the row should be shown as a good change
func (r ComparisonRow) Good() bool {
	return r.Status == StatusImproved || r.Status == StatusNew
}

// Comparison is the ordered result of comparing a build to a baseline
type Comparison struct {
	Rows []ComparisonRow
	// DiffAgainstSelf is set when the baseline had no data and the build was
	// compared with itself.
	DiffAgainstSelf bool
}

// Row returns the row for a metric name
func (c *Comparison) Row(name string) (ComparisonRow, bool) {
	for _, r := range c.Rows {
		if r.Name == name {
			return r, true
		}
	}
	return ComparisonRow{}, false
}

// Counts returns the number of rows per status
func (c *Comparison) Counts() map[Status]int {
	counts := make(map[Status]int, 4)
	for _, r := range c.Rows {
		counts[r.Status]++
	}
	return counts
}

// Errors returns the rows that carry a numeric condition
func (c *Comparison) Errors() []*MetricError {
	var errs []*MetricError
	for _, r := range c.Rows {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// Compare compares current values against baseline values. Metric names
// ending in "^" are higher-is-better. When baseline is empty the build is
// compared with itself and DiffAgainstSelf is set. Rows are ordered by name,
// reverse alphabetical.
func Compare(current, baseline map[string]float64) *Comparison {
	result := &Comparison{}
	if len(baseline) == 0 {
		result.DiffAgainstSelf = true
		baseline = current
	}

	names := make(map[string]bool, len(current)+len(baseline))
	for name := range current {
		names[name] = true
	}
	for name := range baseline {
		names[name] = true
	}

	for name := range names {
		cur, inCurrent := current[name]
		base, inBaseline := baseline[name]

		row := ComparisonRow{
			Name:           name,
			DisplayName:    types.DisplayName(name),
			HigherIsBetter: types.HigherIsBetter(name),
		}

		switch {
		case inCurrent && !inBaseline:
			row.Status = StatusNew
			row.BranchValue, row.BaselineValue = cur, cur
		case !inCurrent && inBaseline:
			row.Status = StatusDeleted
			row.BranchValue, row.BaselineValue = base, base
		default:
			row.BranchValue, row.BaselineValue = cur, base
		}

		switch {
		case math.IsNaN(row.BranchValue) || math.IsNaN(row.BaselineValue):
			row.PercentChange = math.NaN()
			row.Err = &MetricError{Metric: name, Kind: NaNMetric}
		case row.Status == StatusNew || row.Status == StatusDeleted || result.DiffAgainstSelf:
			row.PercentChange = 0
		case row.BaselineValue == 0:
			row.PercentChange = math.NaN()
			row.Err = &MetricError{Metric: name, Kind: DivisionByZeroMetric}
		default:
			row.PercentChange = PercentChange(row.BranchValue, row.BaselineValue)
		}

		if row.Status == "" {
			row.Status = Classify(row.BranchValue-row.BaselineValue, row.HigherIsBetter)
		}
		result.Rows = append(result.Rows, row)
	}

	sort.Slice(result.Rows, func(i, j int) bool {
		return result.Rows[i].Name > result.Rows[j].Name
	})
	return result
}

// PercentChange returns 100·(current−baseline)/baseline
func PercentChange(current, baseline float64) float64 {
	return 100 * (current - baseline) / baseline
}

// Classify returns the status of a change of delta. No change is an
// improvement.
func Classify(delta float64, higherIsBetter bool) Status {
	switch {
	case math.IsNaN(delta):
		return StatusRegressed
	case delta == 0, (delta > 0) == higherIsBetter:
		return StatusImproved
	default:
		return StatusRegressed
	}
}

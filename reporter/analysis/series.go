package analysis

import (
	"math"
	"sort"
	"strconv"

	"github.com/cimetrics/reporter/types"
)

// DuplicatePolicy decides how documents sharing a build id are collapsed
type DuplicatePolicy string

const (
	// DuplicateAverage averages every value reported for a metric within a build
	DuplicateAverage DuplicatePolicy = "average"
	// DuplicateLastWrite keeps the value of the latest document
	DuplicateLastWrite DuplicatePolicy = "last_write"
)

// SeriesOptions configures BuildSeries
type SeriesOptions struct {
	// Strict drops builds whose documents lack the completeness marker
	Strict     bool
	Duplicates DuplicatePolicy
}

// SeriesTable is a per-build table of metric values. Rows are ascending,
// unique build ids; a missing cell is NaN.
type SeriesTable struct {
	BuildIDs []int64
	Labels   []string
	Columns  []string
	Groups   map[string]string
	data     map[string][]float64
}

// NewSeriesTable builds a table from columns of equal length. It is mostly
// useful to callers that already hold aligned data.
func NewSeriesTable(buildIDs []int64, labels []string, data map[string][]float64) *SeriesTable {
	t := &SeriesTable{
		BuildIDs: append([]int64(nil), buildIDs...),
		Labels:   make([]string, len(buildIDs)),
		Groups:   make(map[string]string),
		data:     make(map[string][]float64, len(data)),
	}
	for i, id := range buildIDs {
		if i < len(labels) && labels[i] != "" {
			t.Labels[i] = labels[i]
		} else {
			t.Labels[i] = strconv.FormatInt(id, 10)
		}
	}
	for name, values := range data {
		col := make([]float64, len(buildIDs))
		for i := range col {
			if i < len(values) {
				col[i] = values[i]
			} else {
				col[i] = math.NaN()
			}
		}
		t.data[name] = col
		t.Columns = append(t.Columns, name)
	}
	sort.Strings(t.Columns)
	return t
}

// Len returns the number of rows
func (t *SeriesTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.BuildIDs)
}

// Empty reports whether the table has no rows or no columns
func (t *SeriesTable) Empty() bool {
	return t == nil || len(t.BuildIDs) == 0 || len(t.Columns) == 0
}

// Has reports whether the table has a column
func (t *SeriesTable) Has(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.data[name]
	return ok
}

// Column returns the values of a column, nil when absent. The slice must
// not be modified.
func (t *SeriesTable) Column(name string) []float64 {
	if t == nil {
		return nil
	}
	return t.data[name]
}

// Last returns the value of a column in the most recent row
func (t *SeriesTable) Last(name string) (float64, bool) {
	col := t.Column(name)
	if len(col) == 0 || math.IsNaN(col[len(col)-1]) {
		return math.NaN(), false
	}
	return col[len(col)-1], true
}

// LastRow returns the non-missing values of the most recent row
func (t *SeriesTable) LastRow() map[string]float64 {
	row := make(map[string]float64)
	if t == nil {
		return row
	}
	for _, name := range t.Columns {
		if v, ok := t.Last(name); ok {
			row[name] = v
		}
	}
	return row
}

// Tail returns a table with the last n rows
func (t *SeriesTable) Tail(n int) *SeriesTable {
	if t == nil {
		return nil
	}
	if n >= t.Len() {
		return t
	}
	if n < 0 {
		n = 0
	}
	start := t.Len() - n
	out := &SeriesTable{
		BuildIDs: t.BuildIDs[start:],
		Labels:   t.Labels[start:],
		Columns:  t.Columns,
		Groups:   t.Groups,
		data:     make(map[string][]float64, len(t.data)),
	}
	for name, col := range t.data {
		out.data[name] = col[start:]
	}
	return out
}

// LabelFor returns the build number of a build id, or the id itself
func (t *SeriesTable) LabelFor(buildID int64) string {
	for i, id := range t.BuildIDs {
		if id == buildID {
			return t.Labels[i]
		}
	}
	return strconv.FormatInt(buildID, 10)
}

type buildAccumulator struct {
	id       int64
	label    string
	complete bool
	sums     map[string]float64
	counts   map[string]int
	last     map[string]float64
}

// BuildSeries collapses documents into one row per build id. Records are
// expected in the store's order: ascending build id, later writes last.
// Empty input yields an empty table.
func BuildSeries(records []*types.MetricRecord, opts SeriesOptions) *SeriesTable {
	if opts.Duplicates == "" {
		opts.Duplicates = DuplicateAverage
	}

	builds := make(map[int64]*buildAccumulator)
	groups := make(map[string]string)
	var order []int64

	for _, rec := range records {
		acc, ok := builds[rec.BuildID]
		if !ok {
			acc = &buildAccumulator{
				id:     rec.BuildID,
				sums:   make(map[string]float64),
				counts: make(map[string]int),
				last:   make(map[string]float64),
			}
			builds[rec.BuildID] = acc
			order = append(order, rec.BuildID)
		}
		if rec.BuildNumber != "" {
			acc.label = rec.BuildNumber
		}
		for name, m := range rec.Metrics {
			if name == types.CompleteMarker {
				if !math.IsNaN(m.Value) {
					acc.complete = true
				}
				continue
			}
			if m.Group != "" {
				groups[name] = m.Group
			}
			if math.IsNaN(m.Value) {
				continue
			}
			acc.sums[name] += m.Value
			acc.counts[name]++
			acc.last[name] = m.Value
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var rows []*buildAccumulator
	for _, id := range order {
		acc := builds[id]
		if opts.Strict && !acc.complete {
			continue
		}
		rows = append(rows, acc)
	}

	table := &SeriesTable{
		Groups: make(map[string]string),
		data:   make(map[string][]float64),
	}
	if len(rows) == 0 {
		return table
	}

	// Only metrics reported by the most recent build survive
	tail := rows[len(rows)-1]
	for name := range tail.counts {
		table.Columns = append(table.Columns, name)
	}
	sort.Strings(table.Columns)

	for _, name := range table.Columns {
		col := make([]float64, len(rows))
		for i, acc := range rows {
			col[i] = cellValue(acc, name, opts.Duplicates)
		}
		table.data[name] = col
		if g, ok := groups[name]; ok {
			table.Groups[name] = g
		}
	}

	for _, acc := range rows {
		table.BuildIDs = append(table.BuildIDs, acc.id)
		label := acc.label
		if label == "" {
			label = strconv.FormatInt(acc.id, 10)
		}
		table.Labels = append(table.Labels, label)
	}

	return table
}

func cellValue(acc *buildAccumulator, name string, policy DuplicatePolicy) float64 {
	n := acc.counts[name]
	if n == 0 {
		return math.NaN()
	}
	if policy == DuplicateLastWrite {
		return acc.last[name]
	}
	return acc.sums[name] / float64(n)
}

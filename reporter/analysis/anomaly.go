package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ShiftThreshold is the number of pooled standard deviations a level shift
// must exceed to be reported.
const ShiftThreshold = 3.0

var (
	// ErrSeriesTooShort means there are fewer than two observations
	ErrSeriesTooShort = errors.New("series too short for anomaly window")
	// ErrDegenerateSeries means the series or window cannot support detection
	ErrDegenerateSeries = errors.New("degenerate series")
)

// LevelShift is a position where the series settles at a new level
type LevelShift struct {
	Index int
	Shift float64
	// Significance is |Shift| divided by the pooled standard deviation of
	// the two windows; +Inf when both windows are flat.
	Significance float64
}

// DetectLevelShifts returns the row positions where values shift level.
// Only order matters: values are treated as equally spaced and missing
// values (NaN) are skipped. Degenerate inputs return no positions together
// with an error wrapping ErrSeriesTooShort or ErrDegenerateSeries, which
// callers are expected to log and otherwise ignore.
func DetectLevelShifts(values []float64, window int) ([]int, error) {
	shifts, err := FindLevelShifts(values, window)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(shifts))
	for i, s := range shifts {
		out[i] = s.Index
	}
	return out, nil
}

// FindLevelShifts is DetectLevelShifts with the shift details.
//
// At each position t the median of the window after t (inclusive) is
// compared with the median of the window before it. A position is anomalous
// when the absolute difference exceeds ShiftThreshold pooled standard
// deviations of the two windows. The shift is placed at the first value of
// the right window that leaves the left median by that margin in the
// direction of the shift; anomalous positions with no such value are
// dropped. Consecutive anomalous positions describe a single step and are
// reported once, at the most significant position.
//
// A series with fewer than two windows of observations is scanned with a
// window of half its length.
func FindLevelShifts(values []float64, window int) ([]LevelShift, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: window %d", ErrDegenerateSeries, window)
	}

	positions := make([]int, 0, len(values))
	observed := make([]float64, 0, len(values))
	for i, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			positions = append(positions, i)
			observed = append(observed, v)
		}
	}

	if len(observed) < 2*window {
		window = len(observed) / 2
	}
	if window < 1 {
		return nil, fmt.Errorf("%w: %d observations", ErrSeriesTooShort, len(observed))
	}
	if stat.Variance(observed, nil) == 0 {
		return nil, fmt.Errorf("%w: zero variance", ErrDegenerateSeries)
	}

	var (
		shifts  []LevelShift
		current *LevelShift
	)
	flush := func() {
		if current == nil {
			return
		}
		if last := len(shifts) - 1; last >= 0 && shifts[last].Index == current.Index {
			if current.Significance > shifts[last].Significance {
				shifts[last] = *current
			}
		} else {
			shifts = append(shifts, *current)
		}
		current = nil
	}

	for t := window; t+window <= len(observed); t++ {
		left := observed[t-window : t]
		right := observed[t : t+window]

		base := median(left)
		shift := median(right) - base
		noise := math.Sqrt((stat.PopVariance(left, nil) + stat.PopVariance(right, nil)) / 2)
		if shift == 0 || math.Abs(shift) <= ShiftThreshold*noise {
			flush()
			continue
		}

		start := -1
		for j := t; j < t+window; j++ {
			d := observed[j] - base
			if math.Abs(d) > ShiftThreshold*noise && (d > 0) == (shift > 0) {
				start = positions[j]
				break
			}
		}
		if start < 0 {
			flush()
			continue
		}

		significance := math.Inf(1)
		if noise > 0 {
			significance = math.Abs(shift) / noise
		}
		if current == nil || significance > current.Significance {
			current = &LevelShift{Index: start, Shift: shift, Significance: significance}
		}
	}
	flush()

	return shifts, nil
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

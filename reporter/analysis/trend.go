package analysis

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSpan is returned for smoothing spans below one
var ErrInvalidSpan = errors.New("ewma span must be at least 1")

// Alpha returns the smoothing factor for a span
func Alpha(span int) float64 {
	return 2.0 / (float64(span) + 1.0)
}

// EWMA computes the exponentially weighted moving average of values.
//
// The default recursive form seeds with the first observation and then
// applies ewma[i] = α·x[i] + (1−α)·ewma[i−1]. The adjusted form divides by
// the sum of weights (1−α)^k so early samples are not biased towards the
// seed. In both forms a missing value (NaN) carries the previous estimate
// forward and values before the first observation stay missing.
func EWMA(values []float64, span int, adjusted bool) ([]float64, error) {
	if span < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSpan, span)
	}

	alpha := Alpha(span)
	out := make([]float64, len(values))

	if adjusted {
		var num, den float64
		for i, x := range values {
			num *= 1 - alpha
			den *= 1 - alpha
			if !math.IsNaN(x) {
				num += x
				den++
			}
			if den == 0 {
				out[i] = math.NaN()
				continue
			}
			out[i] = num / den
		}
		return out, nil
	}

	prev := math.NaN()
	for i, x := range values {
		switch {
		case math.IsNaN(x):
		case math.IsNaN(prev):
			prev = x
		default:
			prev = alpha*x + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out, nil
}

// Smooth returns the trend table: same rows and columns, every column
// replaced by its EWMA. The last row is the baseline.
func (t *SeriesTable) Smooth(span int, adjusted bool) (*SeriesTable, error) {
	if span < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSpan, span)
	}

	out := &SeriesTable{
		BuildIDs: t.BuildIDs,
		Labels:   t.Labels,
		Columns:  t.Columns,
		Groups:   t.Groups,
		data:     make(map[string][]float64, len(t.data)),
	}
	for name, col := range t.data {
		smoothed, err := EWMA(col, span, adjusted)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		out.data[name] = smoothed
	}
	return out, nil
}

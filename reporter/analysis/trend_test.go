package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEWMARecurrence(t *testing.T) {
	trend, err := EWMA([]float64{10, 20, 30}, 2, false)
	require.NoError(t, err)

	expected := []float64{10, 16.666666666666668, 25.555555555555557}
	require.Len(t, trend, 3)
	for i := range expected {
		assert.InDelta(t, expected[i], trend[i], 1e-6)
	}
}

func TestEWMAAdjusted(t *testing.T) {
	trend, err := EWMA([]float64{10, 20, 30}, 2, true)
	require.NoError(t, err)

	// Weights 1, 1/3, 1/9 over the observations so far
	assert.InDelta(t, 10, trend[0], 1e-9)
	assert.InDelta(t, 17.5, trend[1], 1e-9)
	assert.InDelta(t, (30+20.0/3+10.0/9)/(1+1.0/3+1.0/9), trend[2], 1e-9)
}

func TestEWMAConstantSeries(t *testing.T) {
	values := []float64{4.2, 4.2, 4.2, 4.2, 4.2, 4.2, 4.2}

	for span := 1; span <= 12; span++ {
		for _, adjusted := range []bool{false, true} {
			trend, err := EWMA(values, span, adjusted)
			require.NoError(t, err)
			for i, v := range trend {
				assert.InDelta(t, 4.2, v, 1e-12, "span %d adjusted %v row %d", span, adjusted, i)
			}
		}
	}
}

func TestEWMASingleRow(t *testing.T) {
	for _, adjusted := range []bool{false, true} {
		trend, err := EWMA([]float64{7}, 5, adjusted)
		require.NoError(t, err)
		assert.Equal(t, []float64{7}, trend)
	}
}

func TestEWMAMissingValues(t *testing.T) {
	nan := math.NaN()

	for _, adjusted := range []bool{false, true} {
		trend, err := EWMA([]float64{nan, 10, nan, 20}, 3, adjusted)
		require.NoError(t, err)

		assert.True(t, math.IsNaN(trend[0]), "nothing observed yet")
		assert.Equal(t, 10.0, trend[1])
		assert.Equal(t, trend[1], trend[2], "missing value carries the estimate")
		assert.True(t, trend[3] > 10 && trend[3] < 20)
	}

	// Recursive form does not restart after a gap
	trend, err := EWMA([]float64{10, nan, 20}, 3, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.5*20+0.5*10, trend[2], 1e-12)
}

func TestEWMAInvalidSpan(t *testing.T) {
	_, err := EWMA([]float64{1}, 0, false)
	assert.ErrorIs(t, err, ErrInvalidSpan)

	table := NewSeriesTable([]int64{1}, nil, map[string][]float64{"m": {1}})
	_, err = table.Smooth(-1, false)
	assert.ErrorIs(t, err, ErrInvalidSpan)
}

func TestSmoothKeepsShape(t *testing.T) {
	table := NewSeriesTable([]int64{1, 2, 3}, []string{"a", "b", "c"}, map[string][]float64{
		"latency": {10, 20, 30},
		"flat":    {1, 1, 1},
	})

	trend, err := table.Smooth(2, false)
	require.NoError(t, err)

	assert.Equal(t, table.BuildIDs, trend.BuildIDs)
	assert.Equal(t, table.Labels, trend.Labels)
	assert.Equal(t, table.Columns, trend.Columns)
	baseline, ok := trend.Last("latency")
	require.True(t, ok)
	assert.InDelta(t, 25.5555555, baseline, 1e-6)
	assert.Equal(t, []float64{10, 20, 30}, table.Column("latency"), "input is not modified")
}

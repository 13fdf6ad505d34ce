package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepSeries(n, at int, before, after float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		if i < at {
			values[i] = before
		} else {
			values[i] = after
		}
	}
	return values
}

func TestDetectLevelShiftsFlatSeries(t *testing.T) {
	flat := stepSeries(30, 0, 5, 5)

	for window := 1; window <= 20; window++ {
		shifts, err := DetectLevelShifts(flat, window)
		assert.Empty(t, shifts, "window %d", window)
		assert.Error(t, err, "window %d", window)
	}
}

func TestDetectLevelShiftsStep(t *testing.T) {
	values := stepSeries(20, 12, 1, 10)

	for _, window := range []int{2, 3, 4, 5} {
		shifts, err := DetectLevelShifts(values, window)
		require.NoError(t, err, "window %d", window)
		require.NotEmpty(t, shifts, "window %d", window)
		for _, idx := range shifts {
			assert.GreaterOrEqual(t, idx, 12, "window %d", window)
		}
		assert.Equal(t, []int{12}, shifts, "window %d", window)
	}
}

func TestDetectLevelShiftsNoisyStep(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := make([]float64, 40)
	for i := range values {
		level := 100.0
		if i >= 25 {
			level = 1000.0
		}
		values[i] = level + rng.NormFloat64()
	}

	shifts, err := FindLevelShifts(values, 8)
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, 25, shifts[0].Index)
	assert.Greater(t, shifts[0].Shift, 800.0)
}

func TestDetectLevelShiftsNoiseOnly(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 60)
	for i := range values {
		values[i] = 50 + rng.NormFloat64()
	}

	shifts, err := DetectLevelShifts(values, 10)
	require.NoError(t, err)
	assert.Empty(t, shifts)
}

func TestDetectLevelShiftsSkipsMissing(t *testing.T) {
	nan := math.NaN()
	values := []float64{1, nan, 1, 1, 1, 9, nan, 9, 9, 9}

	shifts, err := DetectLevelShifts(values, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, shifts)
}

func TestDetectLevelShiftsDegenerate(t *testing.T) {
	shifts, err := DetectLevelShifts([]float64{4}, 2)
	assert.Empty(t, shifts)
	assert.ErrorIs(t, err, ErrSeriesTooShort)

	shifts, err = DetectLevelShifts([]float64{1, 2, 3, 4}, 0)
	assert.Empty(t, shifts)
	assert.ErrorIs(t, err, ErrDegenerateSeries)

	shifts, err = DetectLevelShifts(stepSeries(10, 0, 3, 3), 2)
	assert.Empty(t, shifts)
	assert.ErrorIs(t, err, ErrDegenerateSeries)

	shifts, err = DetectLevelShifts(nil, 1)
	assert.Empty(t, shifts)
	assert.ErrorIs(t, err, ErrSeriesTooShort)
}

func TestDetectLevelShiftsStartOfNewLevel(t *testing.T) {
	values := []float64{1, 1, 1, 1, 1, 1, 1, 10, 10, 10, 10, 10}

	tests := []struct {
		name   string
		window int
	}{
		{"narrow window", 3},
		{"window of five", 5},
		{"right window reaches back over the step", 6},
		{"window longer than half the series", 7},
		{"window longer than the series", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shifts, err := FindLevelShifts(values, tt.window)
			require.NoError(t, err)
			require.Len(t, shifts, 1)
			assert.Equal(t, 7, shifts[0].Index)
			assert.InDelta(t, 9.0, shifts[0].Shift, 1e-9)
		})
	}
}

func TestDetectLevelShiftsShortSeries(t *testing.T) {
	shifts, err := DetectLevelShifts([]float64{1, 1, 5, 5}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, shifts)

	shifts, err = DetectLevelShifts([]float64{1, math.NaN(), 5}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, shifts)
}

func TestDetectLevelShiftsDownwardStep(t *testing.T) {
	values := stepSeries(16, 9, 10, 2)

	for _, window := range []int{4, 8} {
		shifts, err := FindLevelShifts(values, window)
		require.NoError(t, err, "window %d", window)
		require.Len(t, shifts, 1, "window %d", window)
		assert.Equal(t, 9, shifts[0].Index, "window %d", window)
		assert.InDelta(t, -8.0, shifts[0].Shift, 1e-9, "window %d", window)
	}
}

func TestDetectLevelShiftsSingleOutlier(t *testing.T) {
	values := stepSeries(20, 0, 1, 1)
	values[10] = 50

	shifts, err := DetectLevelShifts(values, 3)
	require.NoError(t, err)
	assert.Empty(t, shifts, "a single spike is not a level shift")
}

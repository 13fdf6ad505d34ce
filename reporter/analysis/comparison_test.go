package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ComparisonTestSuite covers percent change, classification and ordering
type ComparisonTestSuite struct {
	suite.Suite
}

func (suite *ComparisonTestSuite) TestLowerIsBetterRegression() {
	t := suite.T()

	result := Compare(map[string]float64{"latency": 12}, map[string]float64{"latency": 10})

	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.InDelta(t, 20.0, row.PercentChange, 1e-9)
	assert.Equal(t, StatusRegressed, row.Status)
	assert.False(t, row.HigherIsBetter)
	assert.False(t, result.DiffAgainstSelf)
	assert.Nil(t, row.Err)
}

func (suite *ComparisonTestSuite) TestHigherIsBetterImprovement() {
	t := suite.T()

	result := Compare(map[string]float64{"throughput^": 120}, map[string]float64{"throughput^": 100})

	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.InDelta(t, 20.0, row.PercentChange, 1e-9)
	assert.Equal(t, StatusImproved, row.Status)
	assert.True(t, row.HigherIsBetter)
	assert.Equal(t, "throughput", row.DisplayName)
	assert.Equal(t, "throughput^", row.Name)
}

func (suite *ComparisonTestSuite) TestDirectionMatrix() {
	t := suite.T()

	tests := []struct {
		name     string
		current  float64
		baseline float64
		status   Status
	}{
		{"latency", 8, 10, StatusImproved},
		{"latency", 12, 10, StatusRegressed},
		{"latency", 10, 10, StatusImproved},
		{"rate^", 8, 10, StatusRegressed},
		{"rate^", 12, 10, StatusImproved},
		{"rate^", 10, 10, StatusImproved},
	}

	for _, tt := range tests {
		result := Compare(map[string]float64{tt.name: tt.current}, map[string]float64{tt.name: tt.baseline})
		assert.Equal(t, tt.status, result.Rows[0].Status, "%s %v vs %v", tt.name, tt.current, tt.baseline)
	}
}

func (suite *ComparisonTestSuite) TestNewAndDeleted() {
	t := suite.T()

	result := Compare(
		map[string]float64{"shared": 5, "added": 3},
		map[string]float64{"shared": 5, "removed": 7},
	)

	require.Len(t, result.Rows, 3)
	seen := make(map[string]int)
	for _, r := range result.Rows {
		seen[r.Name]++
	}
	assert.Equal(t, map[string]int{"shared": 1, "added": 1, "removed": 1}, seen)

	added, ok := result.Row("added")
	require.True(t, ok)
	assert.Equal(t, StatusNew, added.Status)
	assert.Equal(t, 3.0, added.BaselineValue)
	assert.Equal(t, 0.0, added.PercentChange)

	removed, ok := result.Row("removed")
	require.True(t, ok)
	assert.Equal(t, StatusDeleted, removed.Status)
	assert.Equal(t, 7.0, removed.BranchValue)
	assert.Equal(t, 0.0, removed.PercentChange)

	counts := result.Counts()
	assert.Equal(t, 1, counts[StatusNew])
	assert.Equal(t, 1, counts[StatusDeleted])
	assert.Equal(t, 1, counts[StatusImproved])
}

func (suite *ComparisonTestSuite) TestSelfDiffFallback() {
	t := suite.T()

	current := map[string]float64{"latency": 12, "throughput^": 3, "zero": 0}
	for _, baseline := range []map[string]float64{nil, {}} {
		result := Compare(current, baseline)

		assert.True(t, result.DiffAgainstSelf)
		require.Len(t, result.Rows, 3)
		for _, r := range result.Rows {
			assert.Equal(t, 0.0, r.PercentChange, r.Name)
			assert.Nil(t, r.Err, r.Name)
		}
	}
}

func (suite *ComparisonTestSuite) TestZeroBaselineIsolated() {
	t := suite.T()

	result := Compare(
		map[string]float64{"errors": 4, "latency": 11},
		map[string]float64{"errors": 0, "latency": 10},
	)

	errRow, ok := result.Row("errors")
	require.True(t, ok)
	require.NotNil(t, errRow.Err)
	assert.Equal(t, DivisionByZeroMetric, errRow.Err.Kind)
	assert.True(t, math.IsNaN(errRow.PercentChange))
	assert.Equal(t, StatusRegressed, errRow.Status)
	assert.Contains(t, errRow.Err.Error(), "errors")

	latency, ok := result.Row("latency")
	require.True(t, ok)
	assert.Nil(t, latency.Err)
	assert.InDelta(t, 10.0, latency.PercentChange, 1e-9)

	assert.Len(t, result.Errors(), 1)
}

func (suite *ComparisonTestSuite) TestNaNValue() {
	t := suite.T()

	result := Compare(map[string]float64{"m": math.NaN()}, map[string]float64{"m": 3})
	require.Len(t, result.Rows, 1)
	require.NotNil(t, result.Rows[0].Err)
	assert.Equal(t, NaNMetric, result.Rows[0].Err.Kind)
	assert.Equal(t, "NaNMetric", result.Rows[0].Err.Kind.String())
}

func (suite *ComparisonTestSuite) TestReverseAlphabeticalAndIdempotent() {
	t := suite.T()

	current := map[string]float64{"b": 1, "a^": 2, "c": 3, "d": 4}
	baseline := map[string]float64{"b": 2, "a^": 1, "c": 3, "e": 4}

	first := Compare(current, baseline)
	names := make([]string, len(first.Rows))
	for i, r := range first.Rows {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"e", "d", "c", "b", "a^"}, names)

	for i := 0; i < 5; i++ {
		again := Compare(current, baseline)
		assert.Equal(t, first, again)
	}
}

func TestComparisonTestSuite(t *testing.T) {
	suite.Run(t, new(ComparisonTestSuite))
}

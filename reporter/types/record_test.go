package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayNameAndSense(t *testing.T) {
	testCases := []struct {
		name    string
		display string
		higher  bool
	}{
		{"latency", "latency", false},
		{"throughput^", "throughput", true},
		{"Peak working set size ", "Peak working set size", false},
		{" tx/s ^", "tx/s", true},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.display, DisplayName(tc.name), tc.name)
		assert.Equal(t, tc.higher, HigherIsBetter(tc.name), tc.name)
	}
}

func TestSelectorMatches(t *testing.T) {
	rec := &MetricRecord{Branch: "feature", PRID: "42"}

	assert.True(t, BranchSelector("feature").Matches(rec))
	assert.False(t, BranchSelector("main").Matches(rec))
	assert.True(t, PullRequestSelector("42").Matches(rec))
	assert.False(t, PullRequestSelector("7").Matches(rec))
	assert.True(t, Selector{}.IsZero())
	assert.Equal(t, "pr_id=42", PullRequestSelector("42").String())
}

func TestMetricRecordHelpers(t *testing.T) {
	rec := &MetricRecord{
		BuildID: 17,
		Metrics: map[string]Metric{
			"b":            {Value: 2, Group: "IO"},
			"a":            {Value: 1},
			CompleteMarker: {Value: 1},
		},
	}

	assert.Equal(t, "17", rec.Label())
	rec.BuildNumber = "20240101.3"
	assert.Equal(t, "20240101.3", rec.Label())
	assert.True(t, rec.IsComplete())
	assert.Equal(t, []string{CompleteMarker, "a", "b"}, rec.MetricNames())
	assert.Equal(t, map[string]string{"b": "IO"}, rec.Groups())
	assert.Equal(t, 2.0, rec.Values()["b"])
}

package storage

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimetrics/reporter/types"
)

func TestDecodeDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
		buildID int64
		prID    string
	}{
		{
			name:    "integer build id",
			doc:     `{"build_id": 12, "branch": "main", "metrics": {"a": {"value": 1}}}`,
			buildID: 12,
		},
		{
			name:    "string build id",
			doc:     `{"build_id": "12", "branch": "main", "metrics": {"a": {"value": 1.5}}}`,
			buildID: 12,
		},
		{
			name: "missing build id",
			doc:  `{"branch": "main", "metrics": {}}`,
		},
		{
			name:    "numeric pr id",
			doc:     `{"build_id": 3, "is_pr": true, "pr_id": 42, "metrics": {}}`,
			buildID: 3,
			prID:    "42",
		},
		{
			name:    "metrics missing",
			doc:     `{"build_id": 12, "branch": "main"}`,
			wantErr: true,
		},
		{
			name:    "metric without value",
			doc:     `{"build_id": 12, "metrics": {"a": {"group": "x"}}}`,
			wantErr: true,
		},
		{
			name:    "metric value is text",
			doc:     `{"build_id": 12, "metrics": {"a": {"value": "fast"}}}`,
			wantErr: true,
		},
		{
			name:    "negative build id",
			doc:     `{"build_id": -1, "metrics": {}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := DecodeDocument([]byte(tt.doc))
			if tt.wantErr {
				require.Error(t, err)
				var invalid *InvalidDocumentError
				assert.True(t, errors.As(err, &invalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.buildID, rec.BuildID)
			assert.Equal(t, tt.prID, rec.PRID)
		})
	}
}

func TestEncodeDecodeKeepsMissingValues(t *testing.T) {
	rec := &types.MetricRecord{
		Created:     time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		BuildID:     5,
		BuildNumber: "20240102.5",
		Branch:      "main",
		Commit:      "deadbeef",
		Metrics: map[string]types.Metric{
			"latency":            {Value: 3.25, Group: "Time"},
			"missing":            {Value: math.NaN()},
			types.CompleteMarker: {Value: 1},
		},
	}

	data, err := EncodeDocument(rec)
	require.NoError(t, err)

	back, err := DecodeDocument(data)
	require.NoError(t, err)
	assert.True(t, rec.Created.Equal(back.Created))
	assert.Equal(t, rec.BuildNumber, back.BuildNumber)
	assert.Equal(t, types.Metric{Value: 3.25, Group: "Time"}, back.Metrics["latency"])
	assert.True(t, math.IsNaN(back.Metrics["missing"].Value))
	assert.True(t, back.IsComplete())
}

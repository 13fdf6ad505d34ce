package storage

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cimetrics/reporter/types"
)

// FileStoreTestSuite exercises the two-pass history selection on the JSON
// lines backend
type FileStoreTestSuite struct {
	suite.Suite
	ctx     context.Context
	logger  logrus.FieldLogger
	tempDir string
	store   *FileStore
	base    time.Time
}

func (suite *FileStoreTestSuite) SetupTest() {
	suite.ctx = context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	suite.logger = logger

	tempDir, err := os.MkdirTemp("", "cimetrics_store_test_*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir
	suite.store = NewFileStore(filepath.Join(tempDir, "history", "records.jsonl"), logger)
	suite.base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (suite *FileStoreTestSuite) TearDownTest() {
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *FileStoreTestSuite) insert(minute int, buildID int64, branch string, metrics map[string]float64) {
	rec := &types.MetricRecord{
		Created: suite.base.Add(time.Duration(minute) * time.Minute),
		BuildID: buildID,
		Branch:  branch,
		Commit:  "abc",
		Metrics: make(map[string]types.Metric),
	}
	for name, v := range metrics {
		rec.Metrics[name] = types.Metric{Value: v}
	}
	require.NoError(suite.T(), suite.store.Insert(suite.ctx, rec))
}

func (suite *FileStoreTestSuite) seedOutOfOrder() {
	suite.insert(1, 1, "main", map[string]float64{"latency": 10})
	suite.insert(2, 3, "main", map[string]float64{"latency": 30})
	suite.insert(3, 2, "main", map[string]float64{"latency": 20})
	suite.insert(4, 3, "main", map[string]float64{"latency": 31})
	suite.insert(5, 0, "main", map[string]float64{"latency": 99})
	suite.insert(6, 9, "other", map[string]float64{"latency": 90})
}

func buildIDs(records []*types.MetricRecord) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.BuildID
	}
	return ids
}

func (suite *FileStoreTestSuite) TestMissingFileIsEmpty() {
	records, err := suite.store.FindMatching(suite.ctx, types.BranchSelector("main"), 5, nil)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), records)
}

func (suite *FileStoreTestSuite) TestLimitCountsDistinctBuilds() {
	t := suite.T()
	suite.seedOutOfOrder()

	records, err := suite.store.FindMatching(suite.ctx, types.BranchSelector("main"), 2, nil)
	require.NoError(t, err)

	// Discovery meets 3 then 2; the retry of build 3 is returned too
	assert.Equal(t, []int64{2, 3, 3}, buildIDs(records))
	assert.Equal(t, 30.0, records[1].Metrics["latency"].Value)
	assert.Equal(t, 31.0, records[2].Metrics["latency"].Value)
}

func (suite *FileStoreTestSuite) TestBeforeBuildID() {
	t := suite.T()
	suite.seedOutOfOrder()

	before := int64(2)
	records, err := suite.store.FindMatching(suite.ctx, types.BranchSelector("main"), 5, &before)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, buildIDs(records))
}

func (suite *FileStoreTestSuite) TestSelectorIsolation() {
	t := suite.T()
	suite.seedOutOfOrder()

	records, err := suite.store.FindMatching(suite.ctx, types.BranchSelector("other"), 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, buildIDs(records))

	pr := &types.MetricRecord{Created: suite.base, BuildID: 11, Branch: "feature", IsPR: true, PRID: "42",
		Metrics: map[string]types.Metric{"latency": {Value: 1}}}
	require.NoError(t, suite.store.Insert(suite.ctx, pr))

	records, err = suite.store.FindMatching(suite.ctx, types.PullRequestSelector("42"), 5, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "42", records[0].PRID)
	assert.True(t, records[0].IsPR)
}

func (suite *FileStoreTestSuite) TestInvalidQueries() {
	t := suite.T()

	_, err := suite.store.FindMatching(suite.ctx, types.Selector{}, 5, nil)
	assert.ErrorIs(t, err, ErrEmptySelector)

	_, err = suite.store.FindMatching(suite.ctx, types.BranchSelector("main"), 0, nil)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func (suite *FileStoreTestSuite) TestLegacyAndMalformedDocuments() {
	t := suite.T()

	lines := `{"created":"2024-03-01T12:00:00Z","build_id":"7","build_number":"20240301.1","branch":"main","is_pr":false,"commit":"a","metrics":{"latency":{"value":5,"group":"Time"},"__complete":{"value":1}}}
not json at all
{"created":"2024-03-01T12:01:00Z","build_id":"x7","branch":"main","metrics":{}}
{"created":"2024-03-01T12:02:00Z","build_id":8,"branch":"main","metrics":{"latency":{"value":null}}}

`
	require.NoError(t, os.MkdirAll(filepath.Dir(suite.store.path), 0755))
	require.NoError(t, os.WriteFile(suite.store.path, []byte(lines), 0644))

	records, err := suite.store.FindMatching(suite.ctx, types.BranchSelector("main"), 5, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, int64(7), records[0].BuildID)
	assert.Equal(t, "20240301.1", records[0].Label())
	assert.Equal(t, "Time", records[0].Metrics["latency"].Group)
	assert.True(t, records[0].IsComplete())

	assert.Equal(t, int64(8), records[1].BuildID)
	assert.True(t, math.IsNaN(records[1].Metrics["latency"].Value))
}

func (suite *FileStoreTestSuite) TestListNewestFirst() {
	t := suite.T()
	suite.seedOutOfOrder()

	records, err := suite.store.List(suite.ctx, types.BranchSelector("main"))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3, 2, 3, 1}, buildIDs(records))

	all, err := suite.store.List(suite.ctx, types.Selector{})
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestFileStoreTestSuite(t *testing.T) {
	suite.Run(t, new(FileStoreTestSuite))
}

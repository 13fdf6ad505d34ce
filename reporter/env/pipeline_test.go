package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimetrics/reporter/types"
)

func pipelineVars(extra map[string]string) map[string]string {
	vars := map[string]string{
		PipelineDetectEnv:        "https://dev.azure.com/acme/",
		"SYSTEM_TEAMPROJECT":     "bench",
		"BUILD_BUILDID":          "1234",
		"BUILD_BUILDNUMBER":      "20240105.3",
		"BUILD_SOURCEBRANCH":     "refs/heads/main",
		"BUILD_SOURCEVERSION":    "abc123",
		"BUILD_SOURCESDIRECTORY": "/agent/s",
		"BUILD_REPOSITORY_NAME":  "acme/bench",
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}

func TestPipelineBranchBuild(t *testing.T) {
	e, err := NewPipelineEnvironment(".", mapLookup(pipelineVars(nil)), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "azure-pipelines", e.Name())
	assert.Equal(t, "main", e.Branch())
	assert.Equal(t, "abc123", e.Commit())
	assert.Equal(t, "/agent/s", e.RepoRoot())
	assert.Equal(t, int64(1234), e.BuildID())
	assert.Equal(t, "20240105.3", e.BuildNumber())
	assert.Equal(t, DefaultTargetBranch, e.TargetBranch())
	assert.False(t, e.IsPR())
	assert.Equal(t, "acme/bench", e.Repository())
	assert.Equal(t, "https://dev.azure.com/acme/bench/_build/results?buildId=1234", e.BuildURL())
	assert.Equal(t, "https://dev.azure.com/acme/bench/_build/results?buildId=7", e.BuildURLByID(7))
	assert.Equal(t, types.BranchSelector("main"), Selector(e))
}

func TestPipelineTagBuild(t *testing.T) {
	e, err := NewPipelineEnvironment(".", mapLookup(pipelineVars(map[string]string{
		"BUILD_SOURCEBRANCH": "refs/tags/v2.1",
	})), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "v2.1", e.Branch())
}

func TestPipelineUnsupportedRef(t *testing.T) {
	_, err := NewPipelineEnvironment(".", mapLookup(pipelineVars(map[string]string{
		"BUILD_SOURCEBRANCH": "refs/pull/12/merge",
	})), quietLogger())
	assert.ErrorIs(t, err, ErrUnsupportedRef)
}

func TestPipelinePullRequest(t *testing.T) {
	e, err := NewPipelineEnvironment(".", mapLookup(pipelineVars(map[string]string{
		"BUILD_SOURCEBRANCH":                   "refs/pull/12/merge",
		"SYSTEM_PULLREQUEST_SOURCEBRANCH":      "refs/heads/feature/x",
		"SYSTEM_PULLREQUEST_TARGETBRANCH":      "refs/heads/develop",
		"SYSTEM_PULLREQUEST_PULLREQUESTNUMBER": "12",
	})), quietLogger())
	require.NoError(t, err)

	assert.True(t, e.IsPR())
	assert.Equal(t, "feature/x", e.Branch())
	assert.Equal(t, "develop", e.TargetBranch())
	assert.Equal(t, "12", e.PullRequestID())
	assert.Equal(t, types.PullRequestSelector("12"), Selector(e))

	rec := NewRecord(e)
	assert.Equal(t, int64(1234), rec.BuildID)
	assert.Equal(t, "12", rec.PRID)
	assert.Equal(t, "develop", rec.TargetBranch)
	assert.True(t, rec.IsPR)
	assert.NotNil(t, rec.Metrics)
}

func TestPipelineInvalidBuildID(t *testing.T) {
	_, err := NewPipelineEnvironment(".", mapLookup(pipelineVars(map[string]string{
		"BUILD_BUILDID": "abc",
	})), quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUILD_BUILDID")
}

func TestPipelineBuildNumberFallback(t *testing.T) {
	vars := pipelineVars(nil)
	delete(vars, "BUILD_BUILDNUMBER")

	e, err := NewPipelineEnvironment(".", mapLookup(vars), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "1234", e.BuildNumber())
}

func TestDetectPipeline(t *testing.T) {
	e, err := Detect(".", mapLookup(pipelineVars(nil)), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "azure-pipelines", e.Name())
}

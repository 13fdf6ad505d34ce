package env

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/types"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var signature = &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Unix(1700000000, 0)}

// LocalGitTestSuite runs against a throwaway repository
type LocalGitTestSuite struct {
	suite.Suite
	dir  string
	repo *git.Repository
	head plumbing.Hash
}

func (suite *LocalGitTestSuite) SetupTest() {
	t := suite.T()
	suite.dir = t.TempDir()

	repo, err := git.PlainInit(suite.dir, false)
	require.NoError(t, err)
	suite.repo = repo

	require.NoError(t, os.WriteFile(filepath.Join(suite.dir, "metrics.yml"), []byte("backend: file\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(suite.dir, "src", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(suite.dir, "src", "deep", "main.c"), []byte("int main;\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	suite.head, err = wt.Commit("initial", &git.CommitOptions{Author: signature})
	require.NoError(t, err)
}

func (suite *LocalGitTestSuite) TestBranch() {
	t := suite.T()

	e, err := NewLocalGitEnvironment(suite.dir, mapLookup(nil), quietLogger())
	require.NoError(t, err)

	assert.Equal(t, "master", e.Branch())
	assert.Equal(t, suite.head.String(), e.Commit())
	assert.Equal(t, suite.dir, e.RepoRoot())
	assert.Equal(t, DefaultTargetBranch, e.TargetBranch())
	assert.Equal(t, int64(0), e.BuildID())
	assert.False(t, e.IsPR())
	assert.Empty(t, e.BuildURL())
	assert.Equal(t, types.BranchSelector("master"), Selector(e))
}

func (suite *LocalGitTestSuite) TestDiscoversRootFromSubdirectory() {
	t := suite.T()

	e, err := NewLocalGitEnvironment(filepath.Join(suite.dir, "src", "deep"), mapLookup(nil), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, suite.dir, e.RepoRoot())
}

func (suite *LocalGitTestSuite) TestTargetBranchOverride() {
	t := suite.T()

	e, err := NewLocalGitEnvironment(suite.dir, mapLookup(map[string]string{TargetBranchEnv: "main"}), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "main", e.TargetBranch())
}

func (suite *LocalGitTestSuite) TestDetachedAtTag() {
	t := suite.T()

	_, err := suite.repo.CreateTag("v1.0.0", suite.head, &git.CreateTagOptions{Tagger: signature, Message: "release"})
	require.NoError(t, err)
	wt, err := suite.repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Hash: suite.head}))

	e, err := NewLocalGitEnvironment(suite.dir, mapLookup(nil), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", e.Branch())
}

func (suite *LocalGitTestSuite) TestDetachedWithoutTag() {
	t := suite.T()

	wt, err := suite.repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Hash: suite.head}))

	_, err = NewLocalGitEnvironment(suite.dir, mapLookup(nil), quietLogger())
	assert.ErrorIs(t, err, ErrNoBranch)
}

func (suite *LocalGitTestSuite) TestRepositoryFromOrigin() {
	t := suite.T()

	_, err := suite.repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{"git@github.com:acme/bench.git"}})
	require.NoError(t, err)

	e, err := NewLocalGitEnvironment(suite.dir, mapLookup(nil), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "acme/bench", e.Repository())
}

func (suite *LocalGitTestSuite) TestDetectLocal() {
	t := suite.T()

	e, err := Detect(suite.dir, mapLookup(nil), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "git", e.Name())
}

func TestLocalGitTestSuite(t *testing.T) {
	suite.Run(t, new(LocalGitTestSuite))
}

func TestNotARepository(t *testing.T) {
	_, err := NewLocalGitEnvironment(t.TempDir(), mapLookup(nil), quietLogger())
	assert.Error(t, err)
}

func TestRepositoryFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://github.com/acme/bench.git", "acme/bench"},
		{"https://github.com/acme/bench", "acme/bench"},
		{"git@github.com:acme/bench.git", "acme/bench"},
		{"ssh://git@github.com/acme/bench/", "acme/bench"},
		{"https://gitlab.com/acme/bench.git", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, repositoryFromURL(tt.url), tt.url)
	}
}

package env

import (
	"errors"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/types"
)

const (
	// DefaultTargetBranch is compared against when nothing else is configured
	DefaultTargetBranch = "master"
	// TargetBranchEnv overrides the target branch of local runs
	TargetBranchEnv = "CIMETRICS_TARGET_BRANCH"
	// PipelineDetectEnv is only set inside Azure Pipelines
	PipelineDetectEnv = "SYSTEM_TEAMFOUNDATIONCOLLECTIONURI"
)

var (
	// ErrNoBranch is returned when HEAD is detached and not tagged
	ErrNoBranch = errors.New("cannot determine branch: HEAD is detached and not tagged")
	// ErrUnsupportedRef is returned for source refs other than branches and tags
	ErrUnsupportedRef = errors.New("unsupported ref type")
)

// Environment describes the repository and build a report is produced for
type Environment interface {
	Name() string
	RepoRoot() string
	Branch() string
	Commit() string
	TargetBranch() string
	BuildID() int64
	BuildNumber() string
	BuildURL() string
	BuildURLByID(id int64) string
	IsPR() bool
	PullRequestID() string
	// Repository is the owner/name of the hosting repository, if known
	Repository() string
}

// Detect returns a pipeline environment inside Azure Pipelines and a local
// git environment otherwise. dir is any directory inside the repository.
func Detect(dir string, lookup config.LookupFunc, log logrus.FieldLogger) (Environment, error) {
	if lookup == nil {
		lookup = config.OSLookup
	}
	if _, ok := lookup(PipelineDetectEnv); ok {
		return NewPipelineEnvironment(dir, lookup, log)
	}
	return NewLocalGitEnvironment(dir, lookup, log)
}

// Selector returns the history selector of the environment's build: the pull
// request when there is one, else the branch
func Selector(e Environment) types.Selector {
	if e.IsPR() && e.PullRequestID() != "" {
		return types.PullRequestSelector(e.PullRequestID())
	}
	return types.BranchSelector(e.Branch())
}

// NewRecord returns an empty record stamped with the environment's build
func NewRecord(e Environment) *types.MetricRecord {
	rec := &types.MetricRecord{
		BuildID:     e.BuildID(),
		BuildNumber: e.BuildNumber(),
		Branch:      e.Branch(),
		IsPR:        e.IsPR(),
		Commit:      e.Commit(),
		Metrics:     make(map[string]types.Metric),
	}
	if e.IsPR() {
		rec.PRID = e.PullRequestID()
		rec.TargetBranch = e.TargetBranch()
	}
	return rec
}

func shortRef(ref string) (string, bool) {
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		if strings.HasPrefix(ref, prefix) {
			return strings.TrimPrefix(ref, prefix), true
		}
	}
	return ref, false
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

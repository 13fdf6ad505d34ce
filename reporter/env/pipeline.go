package env

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/config"
)

// Azure Pipelines predefined variables
const (
	azureBuildID          = "BUILD_BUILDID"
	azureBuildNumber      = "BUILD_BUILDNUMBER"
	azureSourceBranch     = "BUILD_SOURCEBRANCH"
	azureSourceVersion    = "BUILD_SOURCEVERSION"
	azureSourcesDirectory = "BUILD_SOURCESDIRECTORY"
	azureRepositoryName   = "BUILD_REPOSITORY_NAME"
	azureRepositoryID     = "BUILD_REPOSITORY_ID"
	azureTeamProject      = "SYSTEM_TEAMPROJECT"
	azurePRSourceBranch   = "SYSTEM_PULLREQUEST_SOURCEBRANCH"
	azurePRTargetBranch   = "SYSTEM_PULLREQUEST_TARGETBRANCH"
	azurePRNumber         = "SYSTEM_PULLREQUEST_PULLREQUESTNUMBER"
)

// PipelineEnvironment is a build running in Azure Pipelines
type PipelineEnvironment struct {
	root          string
	branch        string
	commit        string
	targetBranch  string
	buildID       int64
	buildNumber   string
	collectionURI string
	project       string
	isPR          bool
	prID          string
	repository    string
}

func NewPipelineEnvironment(dir string, lookup config.LookupFunc, log logrus.FieldLogger) (*PipelineEnvironment, error) {
	if lookup == nil {
		lookup = config.OSLookup
	}
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	raw := get(azureBuildID)
	buildID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", azureBuildID, raw, err)
	}

	e := &PipelineEnvironment{
		buildID:       buildID,
		buildNumber:   get(azureBuildNumber),
		collectionURI: get(PipelineDetectEnv),
		project:       get(azureTeamProject),
		commit:        get(azureSourceVersion),
		root:          get(azureSourcesDirectory),
	}
	if e.buildNumber == "" {
		e.buildNumber = formatID(buildID)
	}

	if source, ok := lookup(azurePRSourceBranch); ok {
		e.isPR = true
		e.branch, _ = shortRef(source)
		e.prID = get(azurePRNumber)
		if e.prID == "" {
			return nil, fmt.Errorf("%s is set but %s is not", azurePRSourceBranch, azurePRNumber)
		}
	} else {
		ref := get(azureSourceBranch)
		short, ok := shortRef(ref)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedRef, ref)
		}
		e.branch = short
	}

	e.targetBranch = DefaultTargetBranch
	if target := get(azurePRTargetBranch); target != "" {
		e.targetBranch, _ = shortRef(target)
	}

	e.repository = get(azureRepositoryName)
	if e.repository == "" {
		e.repository = get(azureRepositoryID)
	}

	// Fall back to the checkout for anything the agent did not provide
	if e.root == "" || e.commit == "" {
		local, err := NewLocalGitEnvironment(dir, lookup, log)
		if err != nil {
			return nil, err
		}
		if e.root == "" {
			e.root = local.RepoRoot()
		}
		if e.commit == "" {
			e.commit = local.Commit()
		}
	}

	return e, nil
}

func (e *PipelineEnvironment) Name() string          { return "azure-pipelines" }
func (e *PipelineEnvironment) RepoRoot() string      { return e.root }
func (e *PipelineEnvironment) Branch() string        { return e.branch }
func (e *PipelineEnvironment) Commit() string        { return e.commit }
func (e *PipelineEnvironment) TargetBranch() string  { return e.targetBranch }
func (e *PipelineEnvironment) BuildID() int64        { return e.buildID }
func (e *PipelineEnvironment) BuildNumber() string   { return e.buildNumber }
func (e *PipelineEnvironment) IsPR() bool            { return e.isPR }
func (e *PipelineEnvironment) PullRequestID() string { return e.prID }
func (e *PipelineEnvironment) Repository() string    { return e.repository }

func (e *PipelineEnvironment) BuildURL() string {
	return e.BuildURLByID(e.buildID)
}

// BuildURLByID links to the results page of a build of the same project
func (e *PipelineEnvironment) BuildURLByID(id int64) string {
	base := e.collectionURI
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return fmt.Sprintf("%s%s/_build/results?buildId=%d", base, e.project, id)
}

package env

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/config"
)

// LocalGitEnvironment is a developer checkout outside of CI. It has no build
// id; its branch is the checked out branch, or the tag at HEAD when detached.
type LocalGitEnvironment struct {
	root         string
	branch       string
	commit       string
	targetBranch string
	repository   string
}

func NewLocalGitEnvironment(dir string, lookup config.LookupFunc, log logrus.FieldLogger) (*LocalGitEnvironment, error) {
	if lookup == nil {
		lookup = config.OSLookup
	}
	log = log.WithField("component", "env")

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", dir, err)
	}

	e := &LocalGitEnvironment{}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to open worktree: %w", err)
	}
	e.root = wt.Filesystem.Root()

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	e.commit = head.Hash().String()

	if head.Name().IsBranch() {
		e.branch = head.Name().Short()
	} else {
		tag, err := tagAt(repo, head.Hash())
		if err != nil {
			return nil, err
		}
		e.branch = tag
	}

	if target, ok := lookup(TargetBranchEnv); ok && target != "" {
		e.targetBranch = target
	} else {
		e.targetBranch = DefaultTargetBranch
		log.Infof("Target branch defaulting to %s. Set %s to change it.", DefaultTargetBranch, TargetBranchEnv)
	}

	if remote, err := repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		e.repository = repositoryFromURL(remote.Config().URLs[0])
	}

	return e, nil
}

// tagAt returns the name of a tag pointing at hash, lightweight or annotated
func tagAt(repo *git.Repository, hash plumbing.Hash) (string, error) {
	tags, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("failed to list tags: %w", err)
	}

	var name string
	err = tags.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if obj, err := repo.TagObject(target); err == nil {
			target = obj.Target
		}
		if target == hash {
			name = ref.Name().Short()
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk tags: %w", err)
	}
	if name == "" {
		return "", ErrNoBranch
	}
	return name, nil
}

var githubURL = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(\.git)?/?$`)

// repositoryFromURL extracts owner/name from a GitHub remote URL
func repositoryFromURL(url string) string {
	m := githubURL.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return ""
	}
	return m[1] + "/" + m[2]
}

func (e *LocalGitEnvironment) Name() string          { return "git" }
func (e *LocalGitEnvironment) RepoRoot() string      { return e.root }
func (e *LocalGitEnvironment) Branch() string        { return e.branch }
func (e *LocalGitEnvironment) Commit() string        { return e.commit }
func (e *LocalGitEnvironment) TargetBranch() string  { return e.targetBranch }
func (e *LocalGitEnvironment) BuildID() int64        { return 0 }
func (e *LocalGitEnvironment) BuildNumber() string   { return "local" }
func (e *LocalGitEnvironment) BuildURL() string      { return "" }
func (e *LocalGitEnvironment) IsPR() bool            { return false }
func (e *LocalGitEnvironment) PullRequestID() string { return "" }
func (e *LocalGitEnvironment) Repository() string    { return e.repository }

func (e *LocalGitEnvironment) BuildURLByID(int64) string { return "" }

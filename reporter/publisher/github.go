package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v29/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/trendview"
)

var (
	// ErrNotPullRequest is returned when commenting outside a pull request build
	ErrNotPullRequest = errors.New("build is not a pull request")
	// ErrStaleReport is returned when the output directory does not hold a
	// completed report of the current build
	ErrStaleReport = errors.New("report is missing or incomplete for this build")
)

// NewTokenClient returns an HTTP client authenticating with a personal
// access token
func NewTokenClient(ctx context.Context, token string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// Commenter posts report comments on GitHub pull requests. Images are pushed
// to a dedicated branch so that the comment can link to them.
type Commenter struct {
	client      *github.Client
	owner       string
	repo        string
	imageBranch string
	baseBranch  string
	log         logrus.FieldLogger
	now         func() time.Time
}

// NewCommenter returns a commenter for repository, given as owner/name
func NewCommenter(httpClient *http.Client, repository string, cfg config.GitHubConfig, log logrus.FieldLogger) (*Commenter, error) {
	parts := strings.Split(repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("repository must be owner/name, got %q", repository)
	}

	client := github.NewClient(httpClient)
	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github api_url: %w", err)
		}
		client.BaseURL = u
	}

	return &Commenter{
		client:      client,
		owner:       parts[0],
		repo:        parts[1],
		imageBranch: cfg.ImageBranch,
		baseBranch:  cfg.BaseBranch,
		log:         log.WithField("component", "github"),
		now:         time.Now,
	}, nil
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

// EnsureImageBranch creates the image branch from the head of the base
// branch. An existing branch is left alone.
func (c *Commenter) EnsureImageBranch(ctx context.Context) error {
	_, resp, err := c.client.Repositories.GetBranch(ctx, c.owner, c.repo, c.imageBranch)
	if err == nil {
		return nil
	}
	if !isNotFound(resp) {
		return fmt.Errorf("failed doing repositories.getbranch: %w", err)
	}

	base, _, err := c.client.Repositories.GetBranch(ctx, c.owner, c.repo, c.baseBranch)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", c.baseBranch, err)
	}
	sha := base.GetCommit().GetSHA()

	ref := &github.Reference{
		Ref:    github.String("refs/heads/" + c.imageBranch),
		Object: &github.GitObject{SHA: github.String(sha)},
	}
	if _, _, err := c.client.Git.CreateRef(ctx, c.owner, c.repo, ref); err != nil {
		return fmt.Errorf("failed doing git.createref: %w", err)
	}
	c.log.WithField("branch", c.imageBranch).WithField("sha", sha).Info("Created image branch")
	return nil
}

// UploadImage commits a PNG to the image branch and returns its download URL
func (c *Commenter) UploadImage(ctx context.Context, png []byte) (string, error) {
	path := fmt.Sprintf("%s/image%s.png", c.imageBranch, c.now().UTC().Format("20060102T150405.000000000"))
	opts := &github.RepositoryContentFileOptions{
		Message: github.String("Uploading an image"),
		Content: png,
		Branch:  github.String(c.imageBranch),
	}

	res, _, err := c.client.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
	if err != nil {
		return "", fmt.Errorf("failed doing repositories.createfile: %w", err)
	}
	link := res.GetContent().GetDownloadURL()
	if link == "" {
		return "", errors.New("failed to upload image: no download url in response")
	}
	c.log.WithField("path", path).Debug("Uploaded image")
	return link, nil
}

// Comment posts body on a pull request and returns the comment URL
func (c *Commenter) Comment(ctx context.Context, number int, body string) (string, error) {
	comment := &github.IssueComment{Body: github.String(body)}
	res, resp, err := c.client.Issues.CreateComment(ctx, c.owner, c.repo, number, comment)
	if err != nil {
		return "", fmt.Errorf("failed doing issues.createcomment: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code %d from issues.createcomment", resp.StatusCode)
	}
	return res.GetHTMLURL(), nil
}

// PublishReport comments the report in dir on pull request number. The
// report must have been completed for buildID: artifacts of a failed or
// earlier run are never published.
func (c *Commenter) PublishReport(ctx context.Context, dir string, buildID int64, number int) (string, error) {
	if number <= 0 {
		return "", ErrNotPullRequest
	}

	manifest, err := trendview.ReadManifest(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStaleReport, err)
	}
	if !manifest.Complete(buildID) {
		return "", fmt.Errorf("%w: manifest is for build %d at stage %s", ErrStaleReport, manifest.BuildID, manifest.Stage)
	}

	text, err := os.ReadFile(filepath.Join(dir, trendview.DiffText))
	if err != nil {
		return "", fmt.Errorf("failed to read report text: %w", err)
	}
	body := strings.TrimRight(string(text), "\n")

	if manifest.Has(trendview.DiffImage) {
		png, err := os.ReadFile(filepath.Join(dir, trendview.DiffImage))
		if err != nil {
			return "", fmt.Errorf("failed to read report image: %w", err)
		}
		if err := c.EnsureImageBranch(ctx); err != nil {
			return "", err
		}
		link, err := c.UploadImage(ctx, png)
		if err != nil {
			return "", err
		}
		body += fmt.Sprintf("\n\n![images](%s)", link)
	}

	link, err := c.Comment(ctx, number, body)
	if err != nil {
		return "", err
	}
	c.log.WithField("pr", number).WithField("run_id", manifest.RunID).Info("Published report comment")
	return link, nil
}

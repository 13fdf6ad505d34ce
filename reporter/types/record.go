package types

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// CompleteMarker is the metric key the publisher adds to every snapshot it
// writes in full. Builds interrupted mid-publish lack it.
const CompleteMarker = "__complete"

// HigherIsBetterSuffix flips the sense of a metric: values going up are good.
const HigherIsBetterSuffix = "^"

// Metric is a single named value inside a build snapshot
type Metric struct {
	Value float64 `json:"value" bson:"value"`
	Group string  `json:"group,omitempty" bson:"group,omitempty"`
}

// MetricRecord is one persisted build snapshot
type MetricRecord struct {
	Created      time.Time         `json:"created" bson:"created" db:"created"`
	BuildID      int64             `json:"build_id" bson:"build_id" db:"build_id"`
	BuildNumber  string            `json:"build_number,omitempty" bson:"build_number,omitempty" db:"build_number"`
	Branch       string            `json:"branch" bson:"branch" db:"branch"`
	IsPR         bool              `json:"is_pr" bson:"is_pr" db:"is_pr"`
	Commit       string            `json:"commit" bson:"commit" db:"commit"`
	PRID         string            `json:"pr_id,omitempty" bson:"pr_id,omitempty" db:"pr_id"`
	TargetBranch string            `json:"target_branch,omitempty" bson:"target_branch,omitempty" db:"target_branch"`
	Metrics      map[string]Metric `json:"metrics" bson:"metrics" db:"metrics"`
}

// Label returns the display build number, falling back to the build id.
func (r *MetricRecord) Label() string {
	if r.BuildNumber != "" {
		return r.BuildNumber
	}
	return strconv.FormatInt(r.BuildID, 10)
}

// IsComplete reports whether the record carries the completeness marker.
func (r *MetricRecord) IsComplete() bool {
	_, ok := r.Metrics[CompleteMarker]
	return ok
}

// Values flattens the metric map to name -> value.
func (r *MetricRecord) Values() map[string]float64 {
	values := make(map[string]float64, len(r.Metrics))
	for name, m := range r.Metrics {
		values[name] = m.Value
	}
	return values
}

// Groups returns the explicit group tag of every metric that has one.
func (r *MetricRecord) Groups() map[string]string {
	groups := make(map[string]string)
	for name, m := range r.Metrics {
		if m.Group != "" {
			groups[name] = m.Group
		}
	}
	return groups
}

// MetricNames returns the record's metric names in ascending order.
func (r *MetricRecord) MetricNames() []string {
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Selector picks the history of one branch or one pull request
type Selector struct {
	Branch        string `json:"branch,omitempty"`
	PullRequestID string `json:"pr_id,omitempty"`
}

// BranchSelector selects by branch name.
func BranchSelector(branch string) Selector {
	return Selector{Branch: branch}
}

// PullRequestSelector selects by pull request id.
func PullRequestSelector(id string) Selector {
	return Selector{PullRequestID: id}
}

// IsZero reports whether the selector has no criteria.
func (s Selector) IsZero() bool {
	return s.Branch == "" && s.PullRequestID == ""
}

// Matches reports whether a record satisfies the selector. The PR id wins
// when both criteria are set.
func (s Selector) Matches(r *MetricRecord) bool {
	if s.PullRequestID != "" {
		return r.PRID == s.PullRequestID
	}
	return r.Branch == s.Branch
}

func (s Selector) String() string {
	if s.PullRequestID != "" {
		return "pr_id=" + s.PullRequestID
	}
	return "branch=" + s.Branch
}

// DisplayName strips the sense marker and surrounding whitespace.
func DisplayName(name string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), HigherIsBetterSuffix))
}

// HigherIsBetter reports whether the metric name carries the sense marker.
func HigherIsBetter(name string) bool {
	return strings.HasSuffix(strings.TrimSpace(name), HigherIsBetterSuffix)
}

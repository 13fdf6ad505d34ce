package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileName is the repo-local configuration file
const FileName = "metrics.yml"

const (
	DuplicatesAverage   = "average"
	DuplicatesLastWrite = "last_write"
)

// Config is built once at startup and passed to every component
type Config struct {
	StoreConfig `yaml:",inline"`

	TargetBranch       string        `yaml:"target_branch"`
	Columns            int           `yaml:"columns"`
	MonitoringColumns  int           `yaml:"monitoring_columns"`
	Span               int           `yaml:"span"`
	MonitoringSpan     int           `yaml:"monitoring_span"`
	EWMASpan           int           `yaml:"ewma_span"`
	EWMAAdjust         bool          `yaml:"ewma_adjust"`
	AnomalyWindow      int           `yaml:"anomaly_window"`
	MaxBranchBuilds    int           `yaml:"max_branch_builds"`
	StrictCompleteness bool          `yaml:"strict_completeness"`
	Duplicates         string        `yaml:"duplicates"`
	DefaultGroup       string        `yaml:"default_group"`
	Groups             GroupPatterns `yaml:"groups"`
	OutputDir          string        `yaml:"output_dir"`
	Pushgateway        string        `yaml:"pushgateway"`
	GitHub             GitHubConfig  `yaml:"github"`
}

// GitHubConfig configures the pull request commenter
type GitHubConfig struct {
	Token       string `yaml:"token"`
	ImageBranch string `yaml:"image_branch"`
	BaseBranch  string `yaml:"base_branch"`
	// APIURL points at a GitHub Enterprise API, e.g. https://ghe.example.com/api/v3/
	APIURL string `yaml:"api_url"`
}

// GroupPattern maps a group name to a metric name regular expression
type GroupPattern struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// GroupPatterns keeps the order in which groups appear in metrics.yml, since
// the first matching pattern wins.
type GroupPatterns []GroupPattern

// UnmarshalYAML accepts either a mapping (name: pattern) or a sequence of
// {name, pattern} entries.
func (g *GroupPatterns) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(GroupPatterns, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var name, pattern string
			if err := node.Content[i].Decode(&name); err != nil {
				return fmt.Errorf("group name: %w", err)
			}
			if err := node.Content[i+1].Decode(&pattern); err != nil {
				return fmt.Errorf("group %q: %w", name, err)
			}
			out = append(out, GroupPattern{Name: name, Pattern: pattern})
		}
		*g = out
		return nil
	case yaml.SequenceNode:
		var list []GroupPattern
		if err := node.Decode(&list); err != nil {
			return err
		}
		*g = list
		return nil
	default:
		return fmt.Errorf("groups must be a mapping or a list, line %d", node.Line)
	}
}

// Default returns a configuration with every field at its default
func Default() *Config {
	return &Config{
		StoreConfig:       DefaultStoreConfig(),
		TargetBranch:      "master",
		Columns:           4,
		MonitoringColumns: 3,
		Span:              10,
		MonitoringSpan:    50,
		EWMASpan:          5,
		MaxBranchBuilds:   5,
		Duplicates:        DuplicatesAverage,
		DefaultGroup:      "Metrics",
		OutputDir:         "_cimetrics",
		GitHub: GitHubConfig{
			ImageBranch: "cimetrics",
			BaseBranch:  "master",
		},
	}
}

// Load reads metrics.yml from path. A missing file is not an error: the
// defaults are returned and a warning is logged, matching how a repository
// without metrics.yml simply records nothing.
func Load(path string, lookup LookupFunc, log logrus.FieldLogger) (*Config, error) {
	log = log.WithField("component", "config")

	if path == "" {
		log.Info("No config path provided, using defaults")
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.WithField("path", path).Warnf("%s does not exist at the root of your repo, your metrics will not be recorded", FileName)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, lookup)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	log.WithFields(logrus.Fields{
		"backend":       cfg.Backend,
		"db":            cfg.Database,
		"collection":    cfg.Collection,
		"target_branch": cfg.TargetBranch,
		"ewma_span":     cfg.EWMASpan,
		"groups":        len(cfg.Groups),
	}).Info("Loaded configuration")

	return cfg, nil
}

// LoadFromRepo loads metrics.yml at the root of the repository.
func LoadFromRepo(repoRoot string, lookup LookupFunc, log logrus.FieldLogger) (*Config, error) {
	return Load(filepath.Join(repoRoot, FileName), lookup, log)
}

// Parse substitutes environment references, decodes, applies defaults and
// validates.
func Parse(data []byte, lookup LookupFunc) (*Config, error) {
	content, err := SubstituteEnvVars(string(data), lookup)
	if err != nil {
		return nil, fmt.Errorf("environment substitution failed: %w", err)
	}

	cfg := Default()
	// An empty document leaves the defaults untouched
	if strings.TrimSpace(content) != "" {
		if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	c.StoreConfig.applyDefaults()
	if c.TargetBranch == "" {
		c.TargetBranch = def.TargetBranch
	}
	if c.Columns == 0 {
		c.Columns = def.Columns
	}
	if c.MonitoringColumns == 0 {
		c.MonitoringColumns = def.MonitoringColumns
	}
	if c.Span == 0 {
		c.Span = def.Span
	}
	if c.MonitoringSpan == 0 {
		c.MonitoringSpan = def.MonitoringSpan
	}
	if c.EWMASpan == 0 {
		c.EWMASpan = def.EWMASpan
	}
	if c.MaxBranchBuilds == 0 {
		c.MaxBranchBuilds = def.MaxBranchBuilds
	}
	if c.Duplicates == "" {
		c.Duplicates = def.Duplicates
	}
	if c.DefaultGroup == "" {
		c.DefaultGroup = def.DefaultGroup
	}
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.GitHub.ImageBranch == "" {
		c.GitHub.ImageBranch = def.GitHub.ImageBranch
	}
	if c.GitHub.BaseBranch == "" {
		c.GitHub.BaseBranch = def.GitHub.BaseBranch
	}
}

// Validate reports every problem in the configuration at once
func (c *Config) Validate() error {
	var result *multierror.Error

	if err := c.StoreConfig.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	positive := map[string]int{
		"columns":            c.Columns,
		"monitoring_columns": c.MonitoringColumns,
		"span":               c.Span,
		"monitoring_span":    c.MonitoringSpan,
		"ewma_span":          c.EWMASpan,
		"max_branch_builds":  c.MaxBranchBuilds,
	}
	for _, key := range []string{"columns", "monitoring_columns", "span", "monitoring_span", "ewma_span", "max_branch_builds"} {
		if positive[key] < 1 {
			result = multierror.Append(result, fmt.Errorf("%s must be at least 1, got %d", key, positive[key]))
		}
	}
	if c.AnomalyWindow < 0 {
		result = multierror.Append(result, fmt.Errorf("anomaly_window must not be negative, got %d", c.AnomalyWindow))
	}
	switch c.Duplicates {
	case DuplicatesAverage, DuplicatesLastWrite:
	default:
		result = multierror.Append(result, fmt.Errorf("duplicates must be %q or %q, got %q", DuplicatesAverage, DuplicatesLastWrite, c.Duplicates))
	}

	seen := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if g.Name == "" {
			result = multierror.Append(result, fmt.Errorf("group with pattern %q has no name", g.Pattern))
			continue
		}
		if seen[g.Name] {
			result = multierror.Append(result, fmt.Errorf("group %q is defined twice", g.Name))
		}
		seen[g.Name] = true
		if _, err := regexp.Compile(g.Pattern); err != nil {
			result = multierror.Append(result, fmt.Errorf("group %q: invalid pattern: %w", g.Name, err))
		}
	}

	return result.ErrorOrNil()
}

// AnomalyWindowSize is the rolling window used by the level shift detector.
// It follows the smoothing span unless set explicitly.
func (c *Config) AnomalyWindowSize() int {
	if c.AnomalyWindow > 0 {
		return c.AnomalyWindow
	}
	return c.EWMASpan
}

// ResolveStore resolves the store section, see StoreConfig.Resolve.
func (c *Config) ResolveStore(lookup LookupFunc) (*StoreSettings, error) {
	return c.StoreConfig.Resolve(lookup)
}

// GitHubToken returns the configured token or GITHUB_TOKEN.
func (c *Config) GitHubToken(lookup LookupFunc) (string, bool) {
	if c.GitHub.Token != "" {
		return c.GitHub.Token, true
	}
	if lookup == nil {
		lookup = OSLookup
	}
	token, ok := lookup("GITHUB_TOKEN")
	return token, ok && token != ""
}

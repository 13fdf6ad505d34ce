package trendview

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/analysis"
	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/env"
	"github.com/cimetrics/reporter/report"
	"github.com/cimetrics/reporter/storage"
	"github.com/cimetrics/reporter/types"
)

// Artifact file names in the output directory
const (
	DiffImage     = "diff.png"
	DiffText      = "diff.txt"
	DashboardFile = "report.html"
)

// Build identifies the build a report is made for
type Build struct {
	Branch       string
	TargetBranch string
	// Selector finds the history of the current branch or pull request
	Selector     types.Selector
	BuildID      int64
	BuildNumber  string
	BuildURL     string
	BuildURLByID func(id int64) string
}

// BuildFromEnvironment describes the environment's build. The target branch
// is the one the environment reports for pull requests and explicit
// overrides, otherwise the configured one.
func BuildFromEnvironment(e env.Environment, cfg *config.Config) Build {
	target := e.TargetBranch()
	if !e.IsPR() && target == env.DefaultTargetBranch && cfg.TargetBranch != "" {
		target = cfg.TargetBranch
	}
	return Build{
		Branch:       e.Branch(),
		TargetBranch: target,
		Selector:     env.Selector(e),
		BuildID:      e.BuildID(),
		BuildNumber:  e.BuildNumber(),
		BuildURL:     e.BuildURL(),
		BuildURLByID: e.BuildURLByID,
	}
}

// Summary returns the report heading fields of the build
func (b Build) Summary() report.Summary {
	return report.Summary{
		Branch:       b.Branch,
		BuildID:      b.BuildID,
		BuildNumber:  b.BuildNumber,
		BuildURL:     b.BuildURL,
		TargetBranch: b.TargetBranch,
		BuildURLByID: b.BuildURLByID,
	}
}

// Exporter writes extra artifacts once the report is rendered
type Exporter interface {
	Name() string
	// Export writes into dir and returns the names of the written files,
	// relative to dir
	Export(ctx context.Context, dir string, run *Run) ([]string, error)
}

// Options configures a single run
type Options struct {
	Mode      report.Mode
	OutputDir string
	Build     Build
}

// Run is the outcome of a report run
type Run struct {
	Mode  report.Mode
	Build Build
	Input *report.Input
	// Shifts holds the level shifts of every metric, monitor mode only
	Shifts    map[string][]analysis.LevelShift
	Warnings  []string
	Artifacts []string
	Manifest  *Manifest
}

func (r *Run) warn(log logrus.FieldLogger, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Warn(msg)
	r.Warnings = append(r.Warnings, msg)
}

// Orchestrator produces the report of one build
type Orchestrator struct {
	cfg       *config.Config
	store     storage.HistoryStore
	renderer  *report.Renderer
	exporters []Exporter
	log       logrus.FieldLogger
	stage     Stage
}

func New(cfg *config.Config, store storage.HistoryStore, canvas report.Canvas, log logrus.FieldLogger, exporters ...Exporter) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		renderer:  report.NewRenderer(canvas, log),
		exporters: exporters,
		log:       log.WithField("component", "trendview"),
	}
}

// Stage returns the last stage reached by the current or previous run
func (o *Orchestrator) Stage() Stage {
	return o.stage
}

func (o *Orchestrator) advance(s Stage) {
	o.stage = s
	o.log.WithField("stage", s).Debug("Stage reached")
}

// Run loads history, smooths it, compares the build against the trend and
// writes every artifact. Errors are *StageError values; whatever was
// written before a failure is left without a manifest.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Run, error) {
	o.stage = Idle

	if opts.Mode == "" {
		opts.Mode = report.ModeDiff
	}
	dir := opts.OutputDir
	if dir == "" {
		dir = o.cfg.OutputDir
	}
	if err := removeManifest(dir); err != nil {
		return nil, &StageError{Stage: DataLoaded, Err: err}
	}

	run := &Run{Mode: opts.Mode, Build: opts.Build}
	log := o.log.WithField("mode", opts.Mode).WithField("branch", opts.Build.Branch)

	span, columns := o.cfg.Span, o.cfg.Columns
	if opts.Mode == report.ModeMonitor {
		span, columns = o.cfg.MonitoringSpan, o.cfg.MonitoringColumns
	}

	target, branch, err := o.load(ctx, run, span, log)
	if err != nil {
		return run, &StageError{Stage: DataLoaded, Err: err}
	}
	o.advance(DataLoaded)

	trend, err := target.Smooth(o.cfg.EWMASpan, o.cfg.EWMAAdjust)
	if err != nil {
		return run, &StageError{Stage: Smoothed, Err: err}
	}
	target, trend = target.Tail(span), trend.Tail(span)
	o.advance(Smoothed)

	in := &report.Input{
		Mode:    opts.Mode,
		Target:  target,
		Trend:   trend,
		Branch:  branch,
		Columns: columns,
	}
	run.Input = in
	if err := o.compare(run, log); err != nil {
		return run, &StageError{Stage: Compared, Err: err}
	}
	o.advance(Compared)

	if err := o.render(dir, run); err != nil {
		return run, &StageError{Stage: Rendered, Err: err}
	}
	o.advance(Rendered)

	for _, exp := range o.exporters {
		names, err := exp.Export(ctx, dir, run)
		if err != nil {
			return run, &StageError{Stage: Written, Err: fmt.Errorf("%s export: %w", exp.Name(), err)}
		}
		run.Artifacts = append(run.Artifacts, names...)
	}

	run.Manifest = newManifest(run)
	if err := writeManifest(dir, run.Manifest); err != nil {
		return run, &StageError{Stage: Written, Err: err}
	}
	o.advance(Written)

	log.WithField("artifacts", len(run.Artifacts)).WithField("warnings", len(run.Warnings)).Info("Report written")
	return run, nil
}

func (o *Orchestrator) seriesOptions() analysis.SeriesOptions {
	return analysis.SeriesOptions{
		Strict:     o.cfg.StrictCompleteness,
		Duplicates: analysis.DuplicatePolicy(o.cfg.Duplicates),
	}
}

func (o *Orchestrator) load(ctx context.Context, run *Run, span int, log logrus.FieldLogger) (*analysis.SeriesTable, *analysis.SeriesTable, error) {
	// Extra builds give the smoothing a run-up before the displayed span
	limit := span + o.cfg.EWMASpan
	records, err := o.store.FindMatching(ctx, types.BranchSelector(run.Build.TargetBranch), limit, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s history: %w", run.Build.TargetBranch, err)
	}
	target := analysis.BuildSeries(records, o.seriesOptions())
	if target.Empty() {
		run.warn(log, "%s does not have any data", run.Build.TargetBranch)
	}

	if run.Mode == report.ModeMonitor {
		return target, nil, nil
	}

	var before *int64
	if run.Build.BuildID > 0 {
		id := run.Build.BuildID
		before = &id
	}
	records, err = o.store.FindMatching(ctx, run.Build.Selector, o.cfg.MaxBranchBuilds, before)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s history: %w", run.Build.Selector, err)
	}
	branch := analysis.BuildSeries(records, o.seriesOptions())
	if branch.Empty() {
		run.warn(log, "%s does not have any data", run.Build.Selector)
	}

	log.WithField("target_builds", target.Len()).WithField("branch_builds", branch.Len()).Debug("History loaded")
	return target, branch, nil
}

func (o *Orchestrator) compare(run *Run, log logrus.FieldLogger) error {
	in := run.Input

	var names []string
	explicit := make(map[string]string)
	for name, group := range in.Target.Groups {
		explicit[name] = group
	}

	switch run.Mode {
	case report.ModeMonitor:
		run.Shifts = make(map[string][]analysis.LevelShift)
		in.Anomalies = make(map[string][]int)
		window := o.cfg.AnomalyWindowSize()
		for _, name := range in.Target.Columns {
			shifts, err := analysis.FindLevelShifts(in.Target.Column(name), window)
			if err != nil {
				log.WithField("metric", name).WithError(err).Warn("Level shift detection skipped")
				continue
			}
			if len(shifts) == 0 {
				continue
			}
			run.Shifts[name] = shifts
			for _, s := range shifts {
				in.Anomalies[name] = append(in.Anomalies[name], s.Index)
			}
		}
		names = in.Target.Columns

	default:
		if in.Branch.Empty() {
			// Nothing to compare: the target trend is drawn alone
			in.Comparison = &analysis.Comparison{DiffAgainstSelf: true}
			names = in.Target.Columns
			break
		}
		in.Comparison = analysis.Compare(in.Branch.LastRow(), in.Trend.LastRow())
		if in.Comparison.DiffAgainstSelf {
			run.warn(log, "no baseline for %s, comparing %s with itself", run.Build.TargetBranch, run.Build.Branch)
		}
		for _, merr := range in.Comparison.Errors() {
			log.WithField("metric", merr.Metric).Warn(merr.Error())
		}
		for name, group := range in.Branch.Groups {
			explicit[name] = group
		}
		// Metrics the branch no longer reports are listed but not drawn
		names = in.Branch.Columns
	}

	rules, err := analysis.CompileGroupRules(o.cfg.Groups)
	if err != nil {
		return err
	}
	in.Groups = analysis.AssignGroups(names, explicit, rules, o.cfg.DefaultGroup)
	return nil
}

func (o *Orchestrator) render(dir string, run *Run) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	charts, err := o.renderer.RenderGroups(dir, run.Input)
	if err != nil {
		return err
	}
	for _, path := range charts {
		run.Artifacts = append(run.Artifacts, filepath.Base(path))
	}

	if len(charts) > 0 {
		if err := report.StackVertically(charts, filepath.Join(dir, DiffImage)); err != nil {
			return err
		}
		run.Artifacts = append(run.Artifacts, DiffImage)
	}

	if err := report.WriteTextFile(filepath.Join(dir, DiffText), run.Build.Summary(), run.Input); err != nil {
		return err
	}
	run.Artifacts = append(run.Artifacts, DiffText)

	title := fmt.Sprintf("%s vs %s", run.Build.Branch, run.Build.TargetBranch)
	if run.Mode == report.ModeMonitor {
		title = fmt.Sprintf("%s monitoring", run.Build.TargetBranch)
	}
	if err := report.WriteDashboardFile(filepath.Join(dir, DashboardFile), title, run.Input); err != nil {
		return err
	}
	run.Artifacts = append(run.Artifacts, DashboardFile)
	return nil
}

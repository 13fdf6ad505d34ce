package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cimetrics/reporter/analysis"
	"github.com/cimetrics/reporter/exporter"
	"github.com/cimetrics/reporter/report"
	"github.com/cimetrics/reporter/trendview"
)

const modeAuto = "auto"

// resolveMode maps the --mode flag to a report mode. Auto reports the diff
// of pull requests and the trend of everything else.
func resolveMode(flag string, isPR bool) (report.Mode, error) {
	switch flag {
	case modeAuto, "":
		if isPR {
			return report.ModeDiff, nil
		}
		return report.ModeMonitor, nil
	case string(report.ModeDiff):
		return report.ModeDiff, nil
	case string(report.ModeMonitor):
		return report.ModeMonitor, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want auto, diff or monitor)", flag)
	}
}

func newPlotCommand() *cobra.Command {
	var (
		mode   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Render the report of the current build",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			m, err := resolveMode(mode, a.env.IsPR())
			if err != nil {
				return err
			}
			return a.runReport(cmd, m, output)
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", modeAuto, "report mode: auto, diff or monitor")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default: output_dir of metrics.yml)")
	return cmd
}

func newMonitorCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Render the trend of the target branch with level shifts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.runReport(cmd, report.ModeMonitor, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default: output_dir of metrics.yml)")
	return cmd
}

func (a *app) runReport(cmd *cobra.Command, mode report.Mode, output string) error {
	ctx := cmd.Context()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	dir := a.outputDir()
	if output != "" {
		dir = output
	}

	orch := trendview.New(a.cfg, store, report.NewPlotCanvas(), a.log,
		exporter.NewDataExporter(),
		exporter.NewPrometheusExporter(a.cfg.Pushgateway, a.log),
	)
	run, err := orch.Run(ctx, trendview.Options{
		Mode:      mode,
		OutputDir: dir,
		Build:     trendview.BuildFromEnvironment(a.env, a.cfg),
	})
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), dir, run)
	return nil
}

func printSummary(w io.Writer, dir string, run *trendview.Run) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s report for %s\n", run.Mode, run.Build.Branch)

	in := run.Input
	if in != nil && in.Comparison != nil {
		counts := in.Comparison.Counts()
		fmt.Fprintf(w, "  %s  %s  %s  %s\n",
			color.GreenString("%d improved", counts[analysis.StatusImproved]),
			color.RedString("%d regressed", counts[analysis.StatusRegressed]),
			color.CyanString("%d new", counts[analysis.StatusNew]),
			color.New(color.Faint).Sprintf("%d deleted", counts[analysis.StatusDeleted]),
		)
		for _, r := range in.Comparison.Rows {
			if r.Status == analysis.StatusRegressed && r.Err == nil {
				fmt.Fprintf(w, "  %s %s %+.2f%%\n", color.RedString("regressed"), r.Name, r.PercentChange)
			}
		}
	}
	if in != nil && len(in.Anomalies) > 0 {
		shifts := 0
		for _, idx := range in.Anomalies {
			shifts += len(idx)
		}
		fmt.Fprintf(w, "  %s\n", color.YellowString("%d level shifts in %d metrics", shifts, len(in.Anomalies)))
	}
	for _, warning := range run.Warnings {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("warning:"), warning)
	}

	fmt.Fprintf(w, "  %d files written to %s\n", len(run.Artifacts), dir)
}

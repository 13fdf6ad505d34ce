package exporter

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/analysis"
	"github.com/cimetrics/reporter/trendview"
)

// MetricsTextfile is the node_exporter textfile written next to the report
const MetricsTextfile = "metrics.prom"

const namespace = "cimetrics"

// PrometheusExporter exposes the report as Prometheus gauges: always as a
// textfile, and pushed to a Pushgateway when one is configured
type PrometheusExporter struct {
	pushgateway string
	log         logrus.FieldLogger
}

func NewPrometheusExporter(pushgateway string, log logrus.FieldLogger) *PrometheusExporter {
	return &PrometheusExporter{
		pushgateway: pushgateway,
		log:         log.WithField("component", "prometheus"),
	}
}

func (pe *PrometheusExporter) Name() string { return "prometheus" }

// Export implements trendview.Exporter
func (pe *PrometheusExporter) Export(ctx context.Context, dir string, run *trendview.Run) ([]string, error) {
	reg, err := NewRegistry(run)
	if err != nil {
		return nil, err
	}

	if err := prometheus.WriteToTextfile(filepath.Join(dir, MetricsTextfile), reg); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", MetricsTextfile, err)
	}

	if pe.pushgateway != "" {
		pusher := push.New(pe.pushgateway, namespace).
			Gatherer(reg).
			Grouping("instance", run.Build.Branch).
			Grouping("mode", string(run.Mode))
		if err := pusher.PushContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to push to %s: %w", pe.pushgateway, err)
		}
		pe.log.WithField("url", pe.pushgateway).Info("Pushed report metrics")
	}
	return []string{MetricsTextfile}, nil
}

// NewRegistry builds a registry holding the gauges of a run
func NewRegistry(run *trendview.Run) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{
		"branch":        run.Build.Branch,
		"target_branch": run.Build.TargetBranch,
	}

	value := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "metric_value",
		Help:        "Latest value of a metric, for the branch and for the trend baseline.",
		ConstLabels: labels,
	}, []string{"metric", "series"})
	change := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "metric_change_percent",
		Help:        "Percent change of the branch against the trend baseline.",
		ConstLabels: labels,
	}, []string{"metric"})
	regressed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "metric_regressed",
		Help:        "1 when the metric moved in the bad direction.",
		ConstLabels: labels,
	}, []string{"metric"})
	shifts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "level_shifts",
		Help:        "Level shifts found in the displayed target history.",
		ConstLabels: labels,
	}, []string{"metric"})
	warnings := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "report_warnings",
		Help:        "Warnings raised while producing the report.",
		ConstLabels: labels,
	})
	build := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "report_build_id",
		Help:        "Build the report was produced for.",
		ConstLabels: labels,
	})

	for _, c := range []prometheus.Collector{value, change, regressed, shifts, warnings, build} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	warnings.Set(float64(len(run.Warnings)))
	build.Set(float64(run.Build.BuildID))

	in := run.Input
	if in == nil {
		return reg, nil
	}

	setValue := func(v float64, metric, series string) {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			value.WithLabelValues(metric, series).Set(v)
		}
	}

	if in.Comparison != nil {
		for _, r := range in.Comparison.Rows {
			if r.Status == analysis.StatusDeleted {
				continue
			}
			setValue(r.BranchValue, r.Name, "branch")
			setValue(r.BaselineValue, r.Name, "baseline")
			if r.Err == nil {
				change.WithLabelValues(r.Name).Set(r.PercentChange)
			}
			flag := 0.0
			if r.Status == analysis.StatusRegressed {
				flag = 1
			}
			regressed.WithLabelValues(r.Name).Set(flag)
		}
		return reg, nil
	}

	for _, name := range in.Target.Columns {
		if v, ok := in.Target.Last(name); ok {
			value.WithLabelValues(name, "target").Set(v)
		}
		if v, ok := in.Trend.Last(name); ok {
			value.WithLabelValues(name, "baseline").Set(v)
		}
		shifts.WithLabelValues(name).Set(float64(len(run.Shifts[name])))
	}
	return reg, nil
}

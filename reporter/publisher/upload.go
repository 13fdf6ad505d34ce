package publisher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cimetrics/reporter/env"
	"github.com/cimetrics/reporter/storage"
	"github.com/cimetrics/reporter/types"
)

var (
	// ErrNoMetrics is returned when publishing a build without any value
	ErrNoMetrics = errors.New("no metrics to publish")
	// ErrReservedName is returned for metric names used internally
	ErrReservedName = errors.New("metric name is reserved")
)

// Metrics collects the values of the current build and publishes them as
// one snapshot
type Metrics struct {
	env    env.Environment
	store  storage.HistoryStore
	values map[string]types.Metric
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewMetrics(e env.Environment, store storage.HistoryStore, log logrus.FieldLogger) *Metrics {
	return &Metrics{
		env:    e,
		store:  store,
		values: make(map[string]types.Metric),
		log:    log.WithField("component", "publisher"),
		now:    time.Now,
	}
}

// Put records a value, replacing any earlier value of the same name
func (m *Metrics) Put(name string, value float64) error {
	return m.PutGrouped(name, "", value)
}

// PutGrouped records a value tagged with the chart group it belongs to
func (m *Metrics) PutGrouped(name, group string, value float64) error {
	if name == "" {
		return errors.New("metric name is empty")
	}
	if name == types.CompleteMarker {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	if math.IsInf(value, 0) {
		return fmt.Errorf("metric %s is infinite", name)
	}
	m.values[name] = types.Metric{Value: value, Group: group}
	return nil
}

// Len returns the number of recorded metrics
func (m *Metrics) Len() int {
	return len(m.values)
}

// Publish writes the snapshot of the build with the completeness marker
func (m *Metrics) Publish(ctx context.Context) (*types.MetricRecord, error) {
	if len(m.values) == 0 {
		return nil, ErrNoMetrics
	}

	rec := env.NewRecord(m.env)
	rec.Created = m.now().UTC()
	for name, v := range m.values {
		rec.Metrics[name] = v
	}
	rec.Metrics[types.CompleteMarker] = types.Metric{Value: 1}

	if err := m.store.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to publish metrics of build %d: %w", rec.BuildID, err)
	}

	m.log.WithFields(logrus.Fields{
		"build_id": rec.BuildID,
		"branch":   rec.Branch,
		"metrics":  len(m.values),
	}).Info("Published metrics")
	return rec, nil
}

// metricEntry accepts either a bare number or {value, group}
type metricEntry struct {
	Value float64
	Group string
}

func (e *metricEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&e.Value)
	}
	var full struct {
		Value *float64 `yaml:"value"`
		Group string   `yaml:"group"`
	}
	if err := node.Decode(&full); err != nil {
		return err
	}
	if full.Value == nil {
		return fmt.Errorf("line %d: metric has no value", node.Line)
	}
	e.Value, e.Group = *full.Value, full.Group
	return nil
}

// LoadValues reads a YAML or JSON file of metrics into m. Each entry is
// either `name: 12.5` or `name: {value: 12.5, group: Latency}`.
func (m *Metrics) LoadValues(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metrics file: %w", err)
	}

	var entries map[string]metricEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse metrics file %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e := entries[name]
		if err := m.PutGrouped(name, e.Group, e.Value); err != nil {
			return err
		}
	}
	return nil
}

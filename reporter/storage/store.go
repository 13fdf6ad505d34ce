package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/types"
)

// HistoryStore gives read and append access to persisted build snapshots
type HistoryStore interface {
	// FindMatching returns the documents of at most limit distinct builds
	// matching the selector, ascending by build id. Builds are discovered
	// newest first by creation time; before, when set, excludes build ids
	// greater than it. Documents sharing a build id are ordered by creation
	// time so that later writes come last.
	FindMatching(ctx context.Context, sel types.Selector, limit int, before *int64) ([]*types.MetricRecord, error)

	// List returns every document matching the selector, newest first.
	List(ctx context.Context, sel types.Selector) ([]*types.MetricRecord, error)

	// Insert persists one build snapshot.
	Insert(ctx context.Context, rec *types.MetricRecord) error

	Close(ctx context.Context) error
}

var (
	ErrInvalidLimit  = errors.New("limit must be positive")
	ErrEmptySelector = errors.New("selector has neither branch nor pr_id")
)

// Open dials the backend described by settings
func Open(ctx context.Context, settings *config.StoreSettings, log logrus.FieldLogger) (HistoryStore, error) {
	switch settings.Backend {
	case config.BackendFile:
		return NewFileStore(settings.Path, log), nil
	case config.BackendPostgres:
		store := NewPostgresStore(settings, log)
		if err := store.Connect(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMongo, "":
		store := NewMongoStore(settings, log)
		if err := store.Connect(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", settings.Backend)
	}
}

func checkQuery(sel types.Selector, limit int) error {
	if sel.IsZero() {
		return ErrEmptySelector
	}
	if limit < 1 {
		return ErrInvalidLimit
	}
	return nil
}

// buildCollector implements the discovery pass shared by the backends that
// cannot express it in their query language. Candidates must be fed newest
// first.
type buildCollector struct {
	limit  int
	before *int64
	seen   map[int64]bool
	ids    []int64
}

func newBuildCollector(limit int, before *int64) *buildCollector {
	return &buildCollector{
		limit:  limit,
		before: before,
		seen:   make(map[int64]bool, limit),
	}
}

// Add offers a candidate build id and reports whether more are wanted.
// Zero means the document carries no build id.
func (c *buildCollector) Add(buildID int64) bool {
	if c.Done() {
		return false
	}
	if buildID == 0 {
		return true
	}
	if c.before != nil && buildID > *c.before {
		return true
	}
	if !c.seen[buildID] {
		c.seen[buildID] = true
		c.ids = append(c.ids, buildID)
	}
	return !c.Done()
}

func (c *buildCollector) Done() bool {
	return len(c.ids) >= c.limit
}

func (c *buildCollector) IDs() []int64 {
	return c.ids
}

func (c *buildCollector) Contains(buildID int64) bool {
	return c.seen[buildID]
}

// sortByBuild orders records ascending by build id, then by creation time.
func sortByBuild(records []*types.MetricRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].BuildID != records[j].BuildID {
			return records[i].BuildID < records[j].BuildID
		}
		return records[i].Created.Before(records[j].Created)
	})
}

// sortNewestFirst orders records descending by creation time.
func sortNewestFirst(records []*types.MetricRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Created.After(records[j].Created)
	})
}

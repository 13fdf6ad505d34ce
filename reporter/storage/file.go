package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/types"
)

// FileStore keeps documents in a JSON lines file, one document per line.
type FileStore struct {
	path string
	mu   sync.Mutex
	log  logrus.FieldLogger
}

// NewFileStore creates a store backed by path. The file is created on the
// first insert.
func NewFileStore(path string, log logrus.FieldLogger) *FileStore {
	return &FileStore{
		path: path,
		log:  log.WithField("component", "file-store"),
	}
}

// FindMatching implements HistoryStore
func (s *FileStore) FindMatching(ctx context.Context, sel types.Selector, limit int, before *int64) ([]*types.MetricRecord, error) {
	if err := checkQuery(sel, limit); err != nil {
		return nil, err
	}

	matching, err := s.List(ctx, sel)
	if err != nil {
		return nil, err
	}

	collector := newBuildCollector(limit, before)
	for _, rec := range matching {
		if !collector.Add(rec.BuildID) {
			break
		}
	}

	var out []*types.MetricRecord
	for _, rec := range matching {
		if collector.Contains(rec.BuildID) {
			out = append(out, rec)
		}
	}
	sortByBuild(out)

	s.log.WithFields(logrus.Fields{
		"selector": sel.String(),
		"builds":   len(collector.IDs()),
		"records":  len(out),
	}).Debug("Loaded history")
	return out, nil
}

// List implements HistoryStore
func (s *FileStore) List(ctx context.Context, sel types.Selector) ([]*types.MetricRecord, error) {
	all, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}

	var matching []*types.MetricRecord
	for _, rec := range all {
		if sel.IsZero() || sel.Matches(rec) {
			matching = append(matching, rec)
		}
	}
	sortNewestFirst(matching)
	return matching, nil
}

// Insert implements HistoryStore
func (s *FileStore) Insert(ctx context.Context, rec *types.MetricRecord) error {
	data, err := EncodeDocument(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"build_id": rec.BuildID,
		"branch":   rec.Branch,
		"metrics":  len(rec.Metrics),
	}).Debug("Inserted record")
	return nil
}

// Close implements HistoryStore
func (s *FileStore) Close(ctx context.Context) error {
	return nil
}

// readAll loads every valid document in file order. Invalid lines are
// skipped with a warning.
func (s *FileStore) readAll(ctx context.Context) ([]*types.MetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	var records []*types.MetricRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		rec, err := DecodeDocument(line)
		if err != nil {
			s.log.WithError(err).WithField("line", lineNum).Warn("Skipping malformed document")
			continue
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading history file: %w", err)
	}
	return records, nil
}

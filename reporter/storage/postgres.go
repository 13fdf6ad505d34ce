package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/cimetrics/reporter/config"
	"github.com/cimetrics/reporter/types"
)

// PostgresStore keeps build snapshots as JSONB documents in PostgreSQL
type PostgresStore struct {
	db       *sql.DB
	settings *config.StoreSettings
	log      logrus.FieldLogger
}

// NewPostgresStore creates a store; call Connect before use
func NewPostgresStore(settings *config.StoreSettings, log logrus.FieldLogger) *PostgresStore {
	return &PostgresStore{
		settings: settings,
		log:      log.WithField("component", "postgres"),
	}
}

// NewPostgresStoreFromDB wraps an already open database. Migrations are
// applied before returning.
func NewPostgresStoreFromDB(ctx context.Context, db *sql.DB, log logrus.FieldLogger) (*PostgresStore, error) {
	s := &PostgresStore{db: db, settings: &config.StoreSettings{}, log: log.WithField("component", "postgres")}
	if err := RunMigrations(ctx, db, s.log); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect establishes the database connection and migrates the schema
func (s *PostgresStore) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", s.settings.Connection)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if s.settings.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.settings.MaxOpenConns)
	}
	if s.settings.MaxIdleConns > 0 {
		db.SetMaxIdleConns(s.settings.MaxIdleConns)
	}

	timeout := s.settings.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, db, s.log); err != nil {
		db.Close()
		return err
	}

	s.db = db
	s.log.Info("Connected to PostgreSQL database")
	return nil
}

// FindMatching implements HistoryStore. The discovery pass orders builds by
// their most recent document, which is the order in which a scan by
// descending creation time first meets them.
func (s *PostgresStore) FindMatching(ctx context.Context, sel types.Selector, limit int, before *int64) ([]*types.MetricRecord, error) {
	if err := checkQuery(sel, limit); err != nil {
		return nil, err
	}

	column, value := selectorColumn(sel)
	var beforeArg interface{}
	if before != nil {
		beforeArg = *before
	}

	discover := fmt.Sprintf(`
		SELECT build_id FROM metric_records
		WHERE %s = $1 AND build_id IS NOT NULL AND build_id <> 0
			AND ($2::BIGINT IS NULL OR build_id <= $2::BIGINT)
		GROUP BY build_id
		ORDER BY MAX(created) DESC
		LIMIT $3`, column)

	rows, err := s.db.QueryContext(ctx, discover, value, beforeArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query build ids: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan build id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fetch := fmt.Sprintf(`
		SELECT document FROM metric_records
		WHERE %s = $1 AND build_id = ANY($2)
		ORDER BY build_id ASC, created ASC, id ASC`, column)

	records, err := s.query(ctx, fetch, value, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"selector": sel.String(),
		"builds":   len(ids),
		"records":  len(records),
	}).Debug("Loaded history")
	return records, nil
}

// List implements HistoryStore
func (s *PostgresStore) List(ctx context.Context, sel types.Selector) ([]*types.MetricRecord, error) {
	if sel.IsZero() {
		return s.query(ctx, `SELECT document FROM metric_records ORDER BY created DESC, id DESC`)
	}
	column, value := selectorColumn(sel)
	query := fmt.Sprintf(`SELECT document FROM metric_records WHERE %s = $1 ORDER BY created DESC, id DESC`, column)
	return s.query(ctx, query, value)
}

// Insert implements HistoryStore
func (s *PostgresStore) Insert(ctx context.Context, rec *types.MetricRecord) error {
	doc, err := EncodeDocument(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	var buildID interface{}
	if rec.BuildID != 0 {
		buildID = rec.BuildID
	}
	created := rec.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}

	query := `
		INSERT INTO metric_records (created, build_id, branch, pr_id, document)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query, created, buildID, rec.Branch, rec.PRID, doc); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"build_id": rec.BuildID,
		"branch":   rec.Branch,
	}).Debug("Inserted record")
	return nil
}

// Close implements HistoryStore
func (s *PostgresStore) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...interface{}) ([]*types.MetricRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*types.MetricRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := DecodeDocument(doc)
		if err != nil {
			s.log.WithError(err).Warn("Skipping malformed document")
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func selectorColumn(sel types.Selector) (string, string) {
	if sel.PullRequestID != "" {
		return "pr_id", sel.PullRequestID
	}
	return "branch", sel.Branch
}

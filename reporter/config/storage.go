package config

import (
	"errors"
	"fmt"
	"time"
)

// Backend names a HistoryStore implementation
type Backend string

const (
	BackendMongo    Backend = "mongo"
	BackendPostgres Backend = "postgres"
	BackendFile     Backend = "file"
)

// Environment variables consulted when the connection is not in metrics.yml.
const (
	MongoConnectionEnv    = "METRICS_MONGO_CONNECTION"
	PostgresConnectionEnv = "METRICS_POSTGRES_CONNECTION"
)

// ErrStoreNotConfigured means the run has nowhere to read history from or
// publish to. It is not a failure of the CI job: callers print a diagnostic
// and exit cleanly.
var ErrStoreNotConfigured = errors.New("metrics store is not configured")

// StoreConfig holds the history store section of metrics.yml
type StoreConfig struct {
	Backend        Backend          `yaml:"backend"`
	Connection     string           `yaml:"connection"`
	Database       string           `yaml:"db"`
	Collection     string           `yaml:"collection"`
	Path           string           `yaml:"path"`
	ConnectTimeout time.Duration    `yaml:"connect_timeout"`
	PostgreSQL     PostgreSQLConfig `yaml:"postgresql"`
}

// PostgreSQLConfig contains pool settings for the relational backend
type PostgreSQLConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// StoreSettings is the resolved, ready to dial store configuration
type StoreSettings struct {
	Backend        Backend
	Connection     string
	Database       string
	Collection     string
	Path           string
	ConnectTimeout time.Duration
	MaxOpenConns   int
	MaxIdleConns   int
}

// DefaultStoreConfig returns the store defaults
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:        BackendMongo,
		ConnectTimeout: 10 * time.Second,
		PostgreSQL: PostgreSQLConfig{
			MaxOpenConns: 4,
			MaxIdleConns: 2,
		},
	}
}

func (c *StoreConfig) applyDefaults() {
	def := DefaultStoreConfig()
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.PostgreSQL.MaxOpenConns == 0 {
		c.PostgreSQL.MaxOpenConns = def.PostgreSQL.MaxOpenConns
	}
	if c.PostgreSQL.MaxIdleConns == 0 {
		c.PostgreSQL.MaxIdleConns = def.PostgreSQL.MaxIdleConns
	}
}

// Validate checks the static shape of the section. Missing connection
// details are not validation errors, see Resolve.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case BackendMongo, BackendPostgres, BackendFile:
	default:
		return fmt.Errorf("unknown backend %q (expected mongo, postgres or file)", c.Backend)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative")
	}
	if c.PostgreSQL.MaxOpenConns < 0 || c.PostgreSQL.MaxIdleConns < 0 {
		return fmt.Errorf("postgresql pool sizes must not be negative")
	}
	return nil
}

// Resolve turns the section into dialable settings. It returns an error
// wrapping ErrStoreNotConfigured when a required piece is missing.
func (c *StoreConfig) Resolve(lookup LookupFunc) (*StoreSettings, error) {
	if lookup == nil {
		lookup = OSLookup
	}

	s := &StoreSettings{
		Backend:        c.Backend,
		Connection:     c.Connection,
		Database:       c.Database,
		Collection:     c.Collection,
		Path:           c.Path,
		ConnectTimeout: c.ConnectTimeout,
		MaxOpenConns:   c.PostgreSQL.MaxOpenConns,
		MaxIdleConns:   c.PostgreSQL.MaxIdleConns,
	}

	switch c.Backend {
	case BackendFile:
		if s.Path == "" {
			return nil, fmt.Errorf("%w: \"path\" is required for the file backend", ErrStoreNotConfigured)
		}
		return s, nil
	case BackendPostgres:
		if s.Connection == "" {
			s.Connection, _ = lookup(PostgresConnectionEnv)
		}
		if s.Connection == "" {
			return nil, fmt.Errorf("%w: %s is not set", ErrStoreNotConfigured, PostgresConnectionEnv)
		}
		if s.Collection == "" {
			s.Collection = "metric_records"
		}
		return s, nil
	default:
		if s.Connection == "" {
			s.Connection, _ = lookup(MongoConnectionEnv)
		}
		if s.Connection == "" {
			return nil, fmt.Errorf("%w: %s is not set", ErrStoreNotConfigured, MongoConnectionEnv)
		}
		if s.Database == "" || s.Collection == "" {
			return nil, fmt.Errorf("%w: \"db\" or \"collection\" have not been set in %s", ErrStoreNotConfigured, FileName)
		}
		return s, nil
	}
}

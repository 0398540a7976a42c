// Package shadow verifies a migration history by applying it to a scratch
// SQLite database and comparing the result with the replayed schema.
package shadow

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/satishbabariya/schemamigrate/migrate/executor"
	"github.com/satishbabariya/schemamigrate/migrate/history"
	"github.com/satishbabariya/schemamigrate/migrate/introspect"
	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

// ShadowDB is a throwaway SQLite database file.
type ShadowDB struct {
	path string
	db   *sql.DB
}

// Create opens a new shadow database under dir. An empty dir means the
// system temp directory.
func Create(ctx context.Context, dir string) (*ShadowDB, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "schemamigrate_shadow_"+uuid.NewString()+".db")

	db, err := sql.Open(sqlgen.SQLite.DriverName(), path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shadow database: %w", err)
	}
	// PRAGMA foreign_keys and the rebuild transactions are per connection
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to ping shadow database: %w", err)
	}
	return &ShadowDB{path: path, db: db}, nil
}

// Path returns the database file location.
func (s *ShadowDB) Path() string {
	return s.path
}

// DB returns the open database.
func (s *ShadowDB) DB() *sql.DB {
	return s.db
}

// Drop closes the database and removes its files.
func (s *ShadowDB) Drop() error {
	closeErr := s.db.Close()
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove shadow database: %w", err)
		}
	}
	return closeErr
}

// Report is the outcome of a shadow verification.
type Report struct {
	DBVersion   int
	Applied     int
	Warnings    []string
	Differences []introspect.Difference
}

// OK reports whether the history replays cleanly and matches the applied database.
func (r *Report) OK() bool {
	return len(r.Warnings) == 0 && len(r.Differences) == 0
}

type config struct {
	dir    string
	logger *slog.Logger
}

// Option configures Verify.
type Option func(*config)

// WithDir places the shadow database in dir.
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Verify applies sets to a fresh shadow database, introspects it and reports
// every difference from the schema obtained by replaying the same sets.
func Verify(ctx context.Context, sets []*migration.Set, opts ...Option) (*Report, error) {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	replayer := history.NewReplayer(sets, cfg.logger)
	report := &Report{DBVersion: replayer.Version(), Warnings: replayer.Warnings()}

	shadow, err := Create(ctx, cfg.dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := shadow.Drop(); err != nil {
			cfg.logger.Warn("failed to drop shadow database", "path", shadow.Path(), "error", err)
		}
	}()
	cfg.logger.Debug("created shadow database", "path", shadow.Path())

	exec, err := executor.NewExecutor(shadow.DB(), sqlgen.SQLite, executor.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	results, err := exec.Apply(ctx, sets)
	if err != nil {
		return nil, fmt.Errorf("failed to apply history to shadow database: %w", err)
	}
	report.Applied = len(results)

	in, err := introspect.NewIntrospector(shadow.DB(), sqlgen.SQLite)
	if err != nil {
		return nil, err
	}
	actual, err := in.Introspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect shadow database: %w", err)
	}
	report.Differences = introspect.Compare(replayer.Schema(), actual, history.TableName)
	return report, nil
}

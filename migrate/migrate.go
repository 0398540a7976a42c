// Package migrate ties the schema migration pieces together: it replays the
// stored history, diffs it against a declared schema, renders DDL, persists
// new migration sets and applies them to a database.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/satishbabariya/schemamigrate/migrate/diff"
	"github.com/satishbabariya/schemamigrate/migrate/executor"
	"github.com/satishbabariya/schemamigrate/migrate/history"
	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
	"github.com/satishbabariya/schemamigrate/migrate/shadow"
	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

var (
	// ErrNoStore is returned when the engine is built without a migration store.
	ErrNoStore = errors.New("no migration store configured")
	// ErrEmptyPlan is returned when saving a set without migrations.
	ErrEmptyPlan = errors.New("migration set is empty")
	// ErrAborted is returned when a destructive apply was not confirmed.
	ErrAborted = errors.New("migration aborted")
)

// Store persists migration sets. *store.Dir implements it.
type Store interface {
	Load(ctx context.Context) ([]*migration.Set, error)
	Write(ctx context.Context, set *migration.Set) (string, error)
}

// ConfirmFunc is asked before a set that drops tables is applied.
type ConfirmFunc func(set *migration.Set, statements []string) bool

// Options configures an Engine.
type Options struct {
	Store   Store
	Dialect sqlgen.Dialect
	Logger  *slog.Logger
}

// Engine is the main migration engine
type Engine struct {
	store     Store
	dialect   sqlgen.Dialect
	generator sqlgen.Generator
	logger    *slog.Logger
}

// NewEngine creates a new migration engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	gen, err := sqlgen.NewGenerator(opts.Dialect)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: opts.Store, dialect: opts.Dialect, generator: gen, logger: logger}, nil
}

// Dialect returns the engine's target dialect.
func (e *Engine) Dialect() sqlgen.Dialect {
	return e.dialect
}

// History loads every stored migration set in version order.
func (e *Engine) History(ctx context.Context) ([]*migration.Set, error) {
	sets, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load migration history: %w", err)
	}
	return sets, nil
}

// Baseline replays the stored history into the schema the database is
// expected to have.
func (e *Engine) Baseline(ctx context.Context) (*history.Replayer, error) {
	sets, err := e.History(ctx)
	if err != nil {
		return nil, err
	}
	replayer := history.NewReplayer(sets, e.logger)
	for _, w := range replayer.Warnings() {
		e.logger.Warn("history replay", "warning", w)
	}
	return replayer, nil
}

// Plan computes the migration set that moves the baseline to target. The set
// is empty when nothing changed.
func (e *Engine) Plan(ctx context.Context, target schema.Tables) (*migration.Set, error) {
	baseline, err := e.Baseline(ctx)
	if err != nil {
		return nil, err
	}
	set, err := diff.Compute(baseline.Schema(), target, baseline.Version())
	if err != nil {
		return nil, fmt.Errorf("failed to compute migrations: %w", err)
	}
	e.logger.Debug("planned migration set", "version", set.DBVersion(), "migrations", set.Len())
	return set, nil
}

// SQL renders the DDL for set in the engine's dialect.
func (e *Engine) SQL(set *migration.Set) ([]string, error) {
	return e.generator.Generate(set)
}

// Save writes set to the store and returns the file name.
func (e *Engine) Save(ctx context.Context, set *migration.Set) (string, error) {
	if !set.IsValid() || set.IsEmpty() {
		return "", ErrEmptyPlan
	}
	name, err := e.store.Write(ctx, set)
	if err != nil {
		return "", fmt.Errorf("failed to save migration set: %w", err)
	}
	e.logger.Info("saved migration set", "version", set.DBVersion(), "file", name)
	return name, nil
}

// Status reports the database's applied version and the stored sets still pending.
func (e *Engine) Status(ctx context.Context, db *sql.DB) (int, []*migration.Set, error) {
	exec, err := executor.NewExecutor(db, e.dialect, executor.WithLogger(e.logger))
	if err != nil {
		return 0, nil, err
	}
	sets, err := e.History(ctx)
	if err != nil {
		return 0, nil, err
	}
	current, err := exec.CurrentVersion(ctx)
	if err != nil {
		return 0, nil, err
	}
	pending, err := exec.Pending(ctx, sets)
	if err != nil {
		return 0, nil, err
	}
	return current, pending, nil
}

// Apply runs the pending stored sets against db. Sets that drop tables are
// applied only when confirm approves them; a nil confirm approves everything.
func (e *Engine) Apply(ctx context.Context, db *sql.DB, confirm ConfirmFunc) ([]executor.Result, error) {
	_, pending, err := e.Status(ctx, db)
	if err != nil {
		return nil, err
	}
	if confirm != nil {
		for _, set := range pending {
			if !set.HasDestructive() {
				continue
			}
			statements, err := e.SQL(set)
			if err != nil {
				return nil, err
			}
			if !confirm(set, statements) {
				return nil, fmt.Errorf("%w: version %d drops tables", ErrAborted, set.DBVersion())
			}
		}
	}

	exec, err := executor.NewExecutor(db, e.dialect, executor.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	return exec.Apply(ctx, pending)
}

// Verify checks the stored history against a shadow SQLite database.
func (e *Engine) Verify(ctx context.Context, opts ...shadow.Option) (*shadow.Report, error) {
	sets, err := e.History(ctx)
	if err != nil {
		return nil, err
	}
	return shadow.Verify(ctx, sets, append([]shadow.Option{shadow.WithLogger(e.logger)}, opts...)...)
}

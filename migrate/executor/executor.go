// Package executor applies migration sets to a live database and records each
// applied version.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/satishbabariya/schemamigrate/migrate/history"
	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

// Executor applies migration sets in version order.
type Executor struct {
	db        *sql.DB
	dialect   sqlgen.Dialect
	generator sqlgen.Generator
	lock      Lock
	logger    *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLock replaces the dialect's default lock.
func WithLock(lock Lock) Option {
	return func(e *Executor) {
		e.lock = lock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates an executor for db.
func NewExecutor(db *sql.DB, dialect sqlgen.Dialect, opts ...Option) (*Executor, error) {
	gen, err := sqlgen.NewGenerator(dialect)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		db:        db,
		dialect:   dialect,
		generator: gen,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.lock == nil {
		e.lock = NewLock(db, dialect)
	}
	return e, nil
}

// Result describes one applied set.
type Result struct {
	DBVersion  int
	Statements int
	Duration   time.Duration
}

// CurrentVersion returns the highest version recorded in the database.
func (e *Executor) CurrentVersion(ctx context.Context) (int, error) {
	tracker := history.NewTracker(e.db, e.dialect)
	if err := tracker.EnsureTable(ctx); err != nil {
		return 0, err
	}
	return tracker.CurrentVersion(ctx)
}

// Pending returns the sets whose version is above the database's current version.
func (e *Executor) Pending(ctx context.Context, sets []*migration.Set) ([]*migration.Set, error) {
	current, err := e.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	return pendingAfter(sets, current), nil
}

func pendingAfter(sets []*migration.Set, current int) []*migration.Set {
	var pending []*migration.Set
	for _, set := range sets {
		if set.IsValid() && set.DBVersion() > current {
			pending = append(pending, set)
		}
	}
	return pending
}

// Apply runs every pending set under the migration lock. It stops at the first
// failing set; the results cover the sets applied before it.
func (e *Executor) Apply(ctx context.Context, sets []*migration.Set) ([]Result, error) {
	release, err := e.lock.Acquire(ctx, LockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer release()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	defer conn.Close()

	tracker := history.NewTracker(conn, e.dialect)
	if err := tracker.EnsureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure migration table exists: %w", err)
	}
	current, err := tracker.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, set := range pendingAfter(sets, current) {
		statements, err := e.generator.Generate(set)
		if err != nil {
			return results, fmt.Errorf("failed to generate version %d: %w", set.DBVersion(), err)
		}
		result, err := e.applySet(ctx, conn, set, statements)
		if err != nil {
			return results, err
		}
		e.logger.Info("applied migration set",
			"version", result.DBVersion,
			"statements", result.Statements,
			"duration", result.Duration)
		results = append(results, result)
	}
	return results, nil
}

func (e *Executor) applySet(ctx context.Context, conn *sql.Conn, set *migration.Set, statements []string) (Result, error) {
	start := time.Now()
	snapshot, err := history.SerializeSchema(set.TargetSchema())
	if err != nil {
		return Result{}, err
	}
	record := func(q history.Queryer) error {
		return history.NewTracker(q, e.dialect).Record(ctx, history.Record{
			DBVersion:      set.DBVersion(),
			Checksum:       history.CalculateChecksum(statements),
			ExecutionTime:  time.Since(start).Milliseconds(),
			MigrationCount: set.Len(),
			Snapshot:       snapshot,
		})
	}

	if e.dialect == sqlgen.SQLite && selfTransacting(statements) {
		err = e.execWithoutForeignKeys(ctx, conn, statements, record)
	} else {
		err = e.execInTx(ctx, conn, statements, record)
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to apply version %d: %w", set.DBVersion(), err)
	}

	return Result{DBVersion: set.DBVersion(), Statements: len(statements), Duration: time.Since(start)}, nil
}

// execInTx runs the statements and the record callback in one transaction.
func (e *Executor) execInTx(ctx context.Context, conn *sql.Conn, statements []string, record func(history.Queryer) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	for i, stmt := range statements {
		if stmt == "" {
			continue
		}
		e.logger.Debug("executing statement", "index", i+1, "sql", stmt)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return rollback(tx, fmt.Errorf("failed to execute statement %d: %w", i+1, err))
		}
	}

	if err := record(tx); err != nil {
		return rollback(tx, fmt.Errorf("failed to record migration: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

func rollback(tx *sql.Tx, cause error) error {
	if err := tx.Rollback(); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to roll back: %w", err))
	}
	return cause
}

// execWithoutForeignKeys runs a set containing table rebuilds as one
// transaction with foreign-key enforcement switched off around it. SQLite
// ignores the foreign_keys pragma inside a transaction, so the rebuilds' own
// transaction control and pragmas are left out.
func (e *Executor) execWithoutForeignKeys(ctx context.Context, conn *sql.Conn, statements []string, record func(history.Queryer) error) (err error) {
	var enabled bool
	if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("failed to read foreign_keys: %w", err)
	}
	if enabled {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return fmt.Errorf("failed to disable foreign keys: %w", err)
		}
		defer func() {
			if _, restoreErr := conn.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); restoreErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to restore foreign keys: %w", restoreErr))
			}
		}()
	}
	return e.execInTx(ctx, conn, withoutTransactionControl(statements), record)
}

// withoutTransactionControl drops BEGIN, COMMIT and foreign_keys pragmas.
func withoutTransactionControl(statements []string) []string {
	out := make([]string, 0, len(statements))
	for _, stmt := range statements {
		upper := strings.ToUpper(strings.TrimSpace(stmt))
		switch {
		case strings.HasPrefix(upper, "BEGIN"), upper == "COMMIT", strings.HasPrefix(upper, "PRAGMA FOREIGN_KEYS"):
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func selfTransacting(statements []string) bool {
	for _, stmt := range statements {
		if strings.HasPrefix(stmt, "BEGIN") {
			return true
		}
	}
	return false
}

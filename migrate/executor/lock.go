package executor

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

// LockKey is the key every executor locks before applying migrations.
const LockKey = "schemamigrate"

// Lock provides mutual exclusion for migration runs across processes.
type Lock interface {
	// Acquire obtains the lock for key. The returned release function must be
	// called to release it.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NewLock returns the lock suited to the dialect: a session advisory lock on
// PostgreSQL and MySQL, a process mutex on SQLite.
func NewLock(db *sql.DB, dialect sqlgen.Dialect) Lock {
	switch dialect {
	case sqlgen.Postgres:
		return &PostgresLock{db: db}
	case sqlgen.MySQL:
		return &MySQLLock{db: db}
	default:
		return &ProcessLock{}
	}
}

// PostgresLock holds pg_advisory_lock on a dedicated connection, since
// advisory locks belong to the session that took them.
type PostgresLock struct {
	db *sql.DB
}

// Acquire blocks until the advisory lock for key is held.
func (l *PostgresLock) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lock connection: %w", err)
	}
	lockID := hashLockKey(key)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pg_advisory_lock(%d): %w", lockID, err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
		conn.Close()
	}, nil
}

// MySQLLock holds a GET_LOCK named lock on a dedicated connection.
type MySQLLock struct {
	db *sql.DB
}

// Acquire blocks until the named lock for key is held.
func (l *MySQLLock) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lock connection: %w", err)
	}
	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, -1)`, key).Scan(&got); err != nil {
		conn.Close()
		return nil, fmt.Errorf("GET_LOCK(%s): %w", key, err)
	}
	if got.Int64 != 1 {
		conn.Close()
		return nil, fmt.Errorf("GET_LOCK(%s) was not granted", key)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT RELEASE_LOCK(?)`, key)
		conn.Close()
	}, nil
}

// ProcessLock is a process-local mutex. SQLite's own file locking covers
// other processes.
type ProcessLock struct {
	mu sync.Mutex
}

// Acquire obtains the mutex. It fails if ctx is already done.
func (l *ProcessLock) Acquire(ctx context.Context, _ string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// hashLockKey maps key to a non-negative advisory lock id using FNV-1a.
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/satishbabariya/schemamigrate/migrate/schema"
	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

// TableName is the table recording applied migration sets.
const TableName = "_schema_migrations"

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record is one applied migration set.
type Record struct {
	DBVersion      int
	Checksum       string
	AppliedAt      time.Time
	ExecutionTime  int64 // milliseconds
	MigrationCount int
	// Snapshot is the schema the set produced, serialized as JSON
	Snapshot string
}

// Tracker reads and writes the applied-version table.
type Tracker struct {
	db      Queryer
	dialect sqlgen.Dialect
}

// NewTracker creates a tracker bound to db.
func NewTracker(db Queryer, dialect sqlgen.Dialect) *Tracker {
	return &Tracker{db: db, dialect: dialect}
}

// EnsureTable creates the tracking table if it does not exist.
func (t *Tracker) EnsureTable(ctx context.Context) error {
	createSQL, err := t.createTableSQL()
	if err != nil {
		return err
	}
	if _, err := t.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

// Record stores an applied set.
func (t *Tracker) Record(ctx context.Context, record Record) error {
	if record.AppliedAt.IsZero() {
		record.AppliedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx, t.bind(`
		INSERT INTO `+TableName+` (db_version, checksum, applied_at, execution_time_ms, migration_count, schema_snapshot)
		VALUES (?, ?, ?, ?, ?, ?)
	`),
		record.DBVersion,
		record.Checksum,
		record.AppliedAt,
		record.ExecutionTime,
		record.MigrationCount,
		record.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("failed to record version %d: %w", record.DBVersion, err)
	}
	return nil
}

// All returns every applied set ordered by version.
func (t *Tracker) All(ctx context.Context) ([]Record, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT db_version, checksum, applied_at, execution_time_ms, migration_count, schema_snapshot
		FROM `+TableName+`
		ORDER BY db_version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record   Record
			snapshot sql.NullString
		)
		if err := rows.Scan(
			&record.DBVersion,
			&record.Checksum,
			&record.AppliedAt,
			&record.ExecutionTime,
			&record.MigrationCount,
			&snapshot,
		); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		record.Snapshot = snapshot.String
		records = append(records, record)
	}
	return records, rows.Err()
}

// CurrentVersion returns the highest applied version, or 0 when nothing was applied.
func (t *Tracker) CurrentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := t.db.QueryRowContext(ctx, `SELECT MAX(db_version) FROM `+TableName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query current version: %w", err)
	}
	return int(version.Int64), nil
}

// Snapshot returns the schema recorded for version, or nil when none was stored.
func (t *Tracker) Snapshot(ctx context.Context, version int) (schema.Tables, error) {
	var snapshot sql.NullString
	err := t.db.QueryRowContext(ctx, t.bind(`SELECT schema_snapshot FROM `+TableName+` WHERE db_version = ?`), version).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("version %d not found", version)
		}
		return nil, fmt.Errorf("failed to query schema snapshot: %w", err)
	}
	return DeserializeSchema(snapshot.String)
}

// SerializeSchema encodes tables for the snapshot column.
func SerializeSchema(tables schema.Tables) (string, error) {
	if tables == nil {
		return "", nil
	}
	data, err := json.Marshal(tables)
	if err != nil {
		return "", fmt.Errorf("failed to serialize schema: %w", err)
	}
	return string(data), nil
}

// DeserializeSchema decodes a snapshot column value.
func DeserializeSchema(data string) (schema.Tables, error) {
	if data == "" {
		return nil, nil
	}
	var tables schema.Tables
	if err := json.Unmarshal([]byte(data), &tables); err != nil {
		return nil, fmt.Errorf("failed to deserialize schema: %w", err)
	}
	return tables, nil
}

// CalculateChecksum returns the hex sha256 of the statements, one per line.
func CalculateChecksum(statements []string) string {
	hash := sha256.Sum256([]byte(strings.Join(statements, "\n")))
	return hex.EncodeToString(hash[:])
}

func (t *Tracker) createTableSQL() (string, error) {
	switch t.dialect {
	case sqlgen.Postgres:
		return `
			CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				db_version INTEGER PRIMARY KEY,
				checksum VARCHAR(64) NOT NULL,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				execution_time_ms BIGINT NOT NULL DEFAULT 0,
				migration_count INTEGER NOT NULL DEFAULT 0,
				schema_snapshot TEXT
			)
		`, nil
	case sqlgen.MySQL:
		return `
			CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				db_version INT PRIMARY KEY,
				checksum VARCHAR(64) NOT NULL,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				execution_time_ms BIGINT NOT NULL DEFAULT 0,
				migration_count INT NOT NULL DEFAULT 0,
				schema_snapshot LONGTEXT
			)
		`, nil
	case sqlgen.SQLite:
		return `
			CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				db_version INTEGER PRIMARY KEY,
				checksum TEXT NOT NULL,
				applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				execution_time_ms INTEGER NOT NULL DEFAULT 0,
				migration_count INTEGER NOT NULL DEFAULT 0,
				schema_snapshot TEXT
			)
		`, nil
	default:
		return "", fmt.Errorf("%w: %s", sqlgen.ErrUnsupportedDialect, t.dialect)
	}
}

// bind rewrites ? placeholders to $n for PostgreSQL.
func (t *Tracker) bind(query string) string {
	if t.dialect != sqlgen.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

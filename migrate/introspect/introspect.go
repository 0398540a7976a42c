// Package introspect reads the physical schema of a live database.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

// DatabaseSchema is the physical schema of a database.
type DatabaseSchema struct {
	Tables []Table
}

// Table returns the table with the given name.
func (s *DatabaseSchema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Table represents a database table
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  *PrimaryKey
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Column represents a table column
type Column struct {
	Name          string
	Type          string
	Nullable      bool
	DefaultValue  *string
	AutoIncrement bool
}

// PrimaryKey represents a primary key constraint
type PrimaryKey struct {
	Name    string
	Columns []string
}

// Index represents a database index
type Index struct {
	Name     string
	Columns  []string
	IsUnique bool
}

// ForeignKey represents a foreign key constraint
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
	OnUpdate          string
}

// Queryer is the read side of *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Introspector reads a database schema.
type Introspector interface {
	Introspect(ctx context.Context) (*DatabaseSchema, error)
}

// NewIntrospector creates an introspector for the given dialect.
func NewIntrospector(db Queryer, dialect sqlgen.Dialect) (Introspector, error) {
	switch dialect {
	case sqlgen.SQLite:
		return &SQLiteIntrospector{db: db}, nil
	case sqlgen.Postgres:
		return &PostgresIntrospector{db: db, schema: "public"}, nil
	case sqlgen.MySQL:
		return &MySQLIntrospector{db: db}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, dialect)
	}
}

// tableReader is implemented by each dialect; introspectAll drives it.
type tableReader interface {
	tableNames(ctx context.Context) ([]string, error)
	columns(ctx context.Context, table string) ([]Column, *PrimaryKey, error)
	indexes(ctx context.Context, table string) ([]Index, error)
	foreignKeys(ctx context.Context, table string) ([]ForeignKey, error)
}

// introspectAll lists the tables first and only then issues per-table
// queries, so no result set stays open while another query runs.
func introspectAll(ctx context.Context, r tableReader) (*DatabaseSchema, error) {
	names, err := r.tableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list tables: %v", ErrIntrospectionFailed, err)
	}
	sort.Strings(names)

	out := &DatabaseSchema{Tables: make([]Table, 0, len(names))}
	for _, name := range names {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		table := Table{Name: name}
		table.Columns, table.PrimaryKey, err = r.columns(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to introspect columns for %s: %v", ErrIntrospectionFailed, name, err)
		}
		if table.Indexes, err = r.indexes(ctx, name); err != nil {
			return nil, fmt.Errorf("%w: failed to introspect indexes for %s: %v", ErrIntrospectionFailed, name, err)
		}
		if table.ForeignKeys, err = r.foreignKeys(ctx, name); err != nil {
			return nil, fmt.Errorf("%w: failed to introspect foreign keys for %s: %v", ErrIntrospectionFailed, name, err)
		}
		out.Tables = append(out.Tables, table)
	}
	return out, nil
}

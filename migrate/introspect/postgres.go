package introspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresIntrospector introspects one PostgreSQL schema.
type PostgresIntrospector struct {
	db     Queryer
	schema string
}

// Introspect reads every base table of the schema.
func (i *PostgresIntrospector) Introspect(ctx context.Context) (*DatabaseSchema, error) {
	return introspectAll(ctx, i)
}

func (i *PostgresIntrospector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`, i.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (i *PostgresIntrospector) columns(ctx context.Context, table string) ([]Column, *PrimaryKey, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT column_name, udt_name, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name = $2
		ORDER BY ordinal_position`, i.schema, table)
	if err != nil {
		return nil, nil, err
	}

	var columns []Column
	for rows.Next() {
		var (
			col          Column
			isNullable   string
			defaultValue sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.Type, &isNullable, &defaultValue); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Nullable = isNullable == "YES"
		if defaultValue.Valid {
			v := defaultValue.String
			col.DefaultValue = &v
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	var pk PrimaryKey
	err = i.db.QueryRowContext(ctx, `
		SELECT tc.constraint_name,
		       array_agg(kcu.column_name::text ORDER BY kcu.ordinal_position)
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		GROUP BY tc.constraint_name`, i.schema, table).Scan(&pk.Name, pq.Array(&pk.Columns))
	if errors.Is(err, sql.ErrNoRows) {
		return columns, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	return columns, &pk, nil
}

func (i *PostgresIntrospector) indexes(ctx context.Context, table string) ([]Index, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT i.relname,
		       array_agg(a.attname::text ORDER BY array_position(ix.indkey, a.attnum)),
		       ix.indisunique
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1
		  AND t.relname = $2
		  AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname`, i.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, pq.Array(&idx.Columns), &idx.IsUnique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (i *PostgresIntrospector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT tc.constraint_name,
		       array_agg(kcu.column_name::text ORDER BY kcu.ordinal_position),
		       ccu.table_name,
		       array_agg(ccu.column_name::text ORDER BY kcu.ordinal_position),
		       rc.update_rule,
		       rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		GROUP BY tc.constraint_name, ccu.table_name, rc.update_rule, rc.delete_rule
		ORDER BY tc.constraint_name`, i.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Name, pq.Array(&fk.Columns), &fk.ReferencedTable,
			pq.Array(&fk.ReferencedColumns), &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

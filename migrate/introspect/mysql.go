package introspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// MySQLIntrospector introspects the connection's current MySQL database.
type MySQLIntrospector struct {
	db     Queryer
	dbName string
}

// Introspect reads every base table of the current database.
func (i *MySQLIntrospector) Introspect(ctx context.Context) (*DatabaseSchema, error) {
	if err := i.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&i.dbName); err != nil {
		return nil, fmt.Errorf("failed to get database name: %w", err)
	}
	return introspectAll(ctx, i)
}

func (i *MySQLIntrospector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`, i.dbName)
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

func (i *MySQLIntrospector) columns(ctx context.Context, table string) ([]Column, *PrimaryKey, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT column_name, column_type, is_nullable, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = ?
		  AND table_name = ?
		ORDER BY ordinal_position`, i.dbName, table)
	if err != nil {
		return nil, nil, err
	}

	var columns []Column
	for rows.Next() {
		var (
			col          Column
			isNullable   string
			defaultValue sql.NullString
			extra        string
		)
		if err := rows.Scan(&col.Name, &col.Type, &isNullable, &defaultValue, &extra); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Type = strings.ToUpper(col.Type)
		col.Nullable = isNullable == "YES"
		if defaultValue.Valid {
			v := defaultValue.String
			col.DefaultValue = &v
		}
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	var (
		pk        PrimaryKey
		pkColumns string
	)
	err = i.db.QueryRowContext(ctx, `
		SELECT constraint_name,
		       GROUP_CONCAT(column_name ORDER BY ordinal_position)
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		  AND table_name = ?
		  AND constraint_name = 'PRIMARY'
		GROUP BY constraint_name`, i.dbName, table).Scan(&pk.Name, &pkColumns)
	if errors.Is(err, sql.ErrNoRows) {
		return columns, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query primary key: %w", err)
	}
	pk.Columns = strings.Split(pkColumns, ",")
	return columns, &pk, nil
}

func (i *MySQLIntrospector) indexes(ctx context.Context, table string) ([]Index, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT index_name,
		       GROUP_CONCAT(column_name ORDER BY seq_in_index),
		       MAX(non_unique)
		FROM information_schema.statistics
		WHERE table_schema = ?
		  AND table_name = ?
		  AND index_name != 'PRIMARY'
		GROUP BY index_name
		ORDER BY index_name`, i.dbName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var (
			idx         Index
			columns     string
			isNonUnique int
		)
		if err := rows.Scan(&idx.Name, &columns, &isNonUnique); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		idx.Columns = strings.Split(columns, ",")
		idx.IsUnique = isNonUnique == 0
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (i *MySQLIntrospector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT kcu.constraint_name,
		       GROUP_CONCAT(kcu.column_name ORDER BY kcu.ordinal_position),
		       kcu.referenced_table_name,
		       GROUP_CONCAT(kcu.referenced_column_name ORDER BY kcu.ordinal_position),
		       rc.update_rule,
		       rc.delete_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = kcu.constraint_name
			AND rc.constraint_schema = kcu.table_schema
		WHERE kcu.table_schema = ?
		  AND kcu.table_name = ?
		  AND kcu.referenced_table_name IS NOT NULL
		GROUP BY kcu.constraint_name, kcu.referenced_table_name, rc.update_rule, rc.delete_rule
		ORDER BY kcu.constraint_name`, i.dbName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var (
			fk            ForeignKey
			local, remote string
		)
		if err := rows.Scan(&fk.Name, &local, &fk.ReferencedTable, &remote, &fk.OnUpdate, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fk.Columns = strings.Split(local, ",")
		fk.ReferencedColumns = strings.Split(remote, ",")
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

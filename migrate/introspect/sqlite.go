package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// SQLiteIntrospector introspects SQLite databases through PRAGMA queries.
type SQLiteIntrospector struct {
	db Queryer
}

// Introspect reads every user table.
func (i *SQLiteIntrospector) Introspect(ctx context.Context) (*DatabaseSchema, error) {
	return introspectAll(ctx, i)
}

func (i *SQLiteIntrospector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
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

func (i *SQLiteIntrospector) columns(ctx context.Context, table string) ([]Column, *PrimaryKey, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quote(table)))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var columns []Column
	pkOrder := map[int]string{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			col              Column
			defaultValue     sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.Nullable = notNull == 0 && pk == 0
		if defaultValue.Valid {
			v := defaultValue.String
			col.DefaultValue = &v
		}
		if pk > 0 {
			pkOrder[pk] = col.Name
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if len(pkOrder) == 0 {
		return columns, nil, nil
	}
	positions := make([]int, 0, len(pkOrder))
	for pos := range pkOrder {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	pk := &PrimaryKey{}
	for _, pos := range positions {
		pk.Columns = append(pk.Columns, pkOrder[pos])
	}
	if len(pk.Columns) == 1 {
		if col, ok := (&Table{Columns: columns}).Column(pk.Columns[0]); ok && strings.EqualFold(col.Type, "INTEGER") {
			// INTEGER PRIMARY KEY aliases the rowid
			col.AutoIncrement = true
		}
	}
	return columns, pk, nil
}

func (i *SQLiteIntrospector) indexes(ctx context.Context, table string) ([]Index, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quote(table)))
	if err != nil {
		return nil, err
	}

	var indexes []Index
	for rows.Next() {
		var (
			seq, unique, partial int
			name, origin         string
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		// the primary key's automatic index is reported through PrimaryKey
		if origin == "pk" {
			continue
		}
		indexes = append(indexes, Index{Name: name, IsUnique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for idx := range indexes {
		cols, err := i.indexColumns(ctx, indexes[idx].Name)
		if err != nil {
			return nil, err
		}
		indexes[idx].Columns = cols
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a].Name < indexes[b].Name })
	return indexes, nil
}

func (i *SQLiteIntrospector) indexColumns(ctx context.Context, index string) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quote(index)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bySeq := map[int]string{}
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("failed to scan index column: %w", err)
		}
		bySeq[seqno] = name.String
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	cols := make([]string, len(bySeq))
	for seq, name := range bySeq {
		if seq < len(cols) {
			cols[seq] = name
		}
	}
	return cols, nil
}

func (i *SQLiteIntrospector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[int]*ForeignKey{}
	var ids []int
	for rows.Next() {
		var (
			id, seq                             int
			refTable, from, onUpdate, onDelete string
			to                                  sql.NullString
			match                               string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fk, ok := byID[id]
		if !ok {
			fk = &ForeignKey{
				Name:            fmt.Sprintf("%s_fk_%d", table, id),
				ReferencedTable: refTable,
				OnDelete:        onDelete,
				OnUpdate:        onUpdate,
			}
			byID[id] = fk
			ids = append(ids, id)
		}
		fk.Columns = append(fk.Columns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to.String)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Ints(ids)
	fks := make([]ForeignKey, 0, len(ids))
	for _, id := range ids {
		fks = append(fks, *byID[id])
	}
	return fks, nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

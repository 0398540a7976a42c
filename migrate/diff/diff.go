// Package diff computes the ordered migrations that turn a baseline schema into a target schema.
package diff

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// Compute compares baseline to target and returns a migration set at version
// baselineVersion+1 whose target schema is the given target.
//
// Columns are never dropped from surviving tables; only whole tables are.
func Compute(baseline, target schema.Tables, baselineVersion int) (*migration.Set, error) {
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target schema: %w", err)
	}
	if baseline == nil {
		baseline = schema.Tables{}
	}

	var ms []migration.Migration
	for _, name := range target.Names() {
		table := target[name]
		existing, ok := baseline[name]
		if !ok {
			ms = append(ms, createTable(table)...)
			continue
		}
		ms = append(ms, alterTable(existing, table)...)
	}
	for _, name := range baseline.Names() {
		if _, ok := target[name]; !ok {
			ms = append(ms, migration.New(migration.DropTable, name, ""))
		}
	}

	migration.Sort(ms)
	return migration.NewSet(ms, target, baselineVersion+1), nil
}

// createTable emits CREATE_TABLE plus one migration per user column that the
// CREATE TABLE statement does not already materialize.
func createTable(table schema.TableInfo) []migration.Migration {
	ms := []migration.Migration{migration.New(migration.CreateTable, table.Name, "")}
	fkColumns := table.ForeignKeyColumns()
	for _, col := range table.SortedColumns() {
		if schema.IsDefaultColumn(col.Name) || fkColumns[col.Name] || table.IsPrimaryKeyColumn(col.Name) {
			continue
		}
		ms = append(ms, addColumn(table, col, fkColumns))
	}
	for _, idx := range table.Indices {
		ms = append(ms, compositeIndex(table.Name, idx))
	}
	return ms
}

func alterTable(existing, table schema.TableInfo) []migration.Migration {
	var ms []migration.Migration
	retained := undeclaredColumns(existing, table)

	if !existing.SamePrimaryKey(table) {
		ms = append(ms, migration.Migration{
			TableName: table.Name,
			Type:      migration.UpdatePrimaryKey,
			Payload:   migration.PrimaryKeyChange{PriorColumns: existing.ColumnNames(), Retained: retained},
		})
	}

	fkColumns := table.ForeignKeyColumns()
	skip := map[string]bool{}
	if !existing.SameForeignKeys(table) && !onlyAddsReferenceColumns(existing, table) {
		ms = append(ms, migration.Migration{
			TableName: table.Name,
			Type:      migration.UpdateForeignKeys,
			Payload: migration.ForeignKeyChange{
				PriorColumns:     existing.ColumnNames(),
				PriorForeignKeys: existing.AllForeignKeys(),
				Retained:         retained,
			},
		})
		// the table rebuild materializes every foreign-key column
		skip = fkColumns
	}

	retyped := false
	for _, col := range table.SortedColumns() {
		if schema.IsDefaultColumn(col.Name) || skip[col.Name] {
			continue
		}
		prior, ok := existing.Column(col.Name)
		if !ok {
			ms = append(ms, addColumn(table, col, fkColumns))
			continue
		}
		if prior.Type != col.Type {
			retyped = true
		}
		switch {
		case col.Index && col.Unique && !(prior.Index && prior.Unique):
			ms = append(ms, migration.New(migration.AddUniqueIndex, table.Name, col.Name))
		case col.Unique && !prior.Unique:
			ms = append(ms, migration.New(migration.MakeColumnUnique, table.Name, col.Name))
		case col.Index && !prior.Index:
			ms = append(ms, migration.New(migration.AddIndex, table.Name, col.Name))
		}
		if !col.SameDefault(prior) {
			ms = append(ms, rebuild(migration.ChangeDefaultValue, table.Name, col.Name, retained))
		}
	}

	for _, idx := range table.Indices {
		if !existing.HasIndex(idx) {
			ms = append(ms, compositeIndex(table.Name, idx))
		}
	}

	if retyped {
		ms = append(ms, rebuild(migration.CreateTempTableFromExisting, table.Name, "", retained))
	}
	return ms
}

// undeclaredColumns returns the existing columns the target no longer declares.
// Columns are never dropped, so a table rebuild has to carry them over.
func undeclaredColumns(existing, table schema.TableInfo) []schema.ColumnInfo {
	var out []schema.ColumnInfo
	for _, col := range existing.SortedColumns() {
		if _, ok := table.Columns[col.Name]; !ok {
			out = append(out, col.Clone())
		}
	}
	return out
}

func rebuild(t migration.Type, table, column string, retained []schema.ColumnInfo) migration.Migration {
	m := migration.New(t, table, column)
	if len(retained) > 0 {
		m.Payload = migration.TableRebuild{Retained: retained}
	}
	return m
}

// addColumn picks the add-column type for a column missing from the baseline.
func addColumn(table schema.TableInfo, col schema.ColumnInfo, fkColumns map[string]bool) migration.Migration {
	switch {
	case fkColumns[col.Name]:
		return migration.New(migration.AddForeignKeyReference, table.Name, col.Name)
	case col.Unique:
		return migration.New(migration.AlterTableAddUnique, table.Name, col.Name)
	default:
		return migration.New(migration.AlterTableAddColumn, table.Name, col.Name)
	}
}

func compositeIndex(table string, idx schema.IndexInfo) migration.Migration {
	t := migration.AddIndex
	if idx.Unique {
		t = migration.AddUniqueIndex
	}
	return migration.Migration{
		TableName:  table,
		ColumnName: idx.Columns[0],
		Type:       t,
		Payload:    migration.IndexOrder{Columns: append([]string(nil), idx.Columns...)},
	}
}

// onlyAddsReferenceColumns reports whether the foreign-key change consists only of
// new single-column references without a default on columns the baseline does not
// have yet. Those are added in place with ADD_FOREIGN_KEY_REFERENCE instead of a
// table rebuild.
func onlyAddsReferenceColumns(existing, table schema.TableInfo) bool {
	prior := map[string]bool{}
	for _, fk := range existing.AllForeignKeys() {
		prior[fk.Key()] = true
	}
	current := map[string]bool{}
	for _, fk := range table.AllForeignKeys() {
		current[fk.Key()] = true
		if prior[fk.Key()] {
			continue
		}
		local := fk.LocalColumns()
		if len(local) != 1 {
			return false
		}
		if _, ok := existing.Column(local[0]); ok {
			return false
		}
		// SQLite cannot add a REFERENCES column with a non-NULL default in place
		if col := table.MustColumn(local[0]); col.ForeignKey == nil || hasValueDefault(col) {
			return false
		}
	}
	for key := range prior {
		if !current[key] {
			return false
		}
	}
	return true
}

func hasValueDefault(col schema.ColumnInfo) bool {
	return col.HasDefault() && !strings.EqualFold(strings.TrimSpace(col.DefaultLiteral()), "NULL")
}

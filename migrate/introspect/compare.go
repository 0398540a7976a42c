package introspect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// DifferenceKind classifies a mismatch between a declared and a physical schema.
type DifferenceKind string

// Difference kinds
const (
	MissingTable       DifferenceKind = "missing_table"
	ExtraTable         DifferenceKind = "extra_table"
	MissingColumn      DifferenceKind = "missing_column"
	ExtraColumn        DifferenceKind = "extra_column"
	PrimaryKeyMismatch DifferenceKind = "primary_key_mismatch"
	MissingIndex       DifferenceKind = "missing_index"
	MissingForeignKey  DifferenceKind = "missing_foreign_key"
)

// Difference is one mismatch found by Compare.
type Difference struct {
	Kind   DifferenceKind
	Table  string
	Detail string
}

func (d Difference) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Table)
	}
	return fmt.Sprintf("%s: %s.%s", d.Kind, d.Table, d.Detail)
}

// Compare reports how the physical schema differs from the expected tables.
// Tables named in ignore are skipped on both sides. Extra indexes and
// foreign keys are not reported; column types are not compared since each
// dialect spells them differently.
func Compare(expected schema.Tables, actual *DatabaseSchema, ignore ...string) []Difference {
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}

	var diffs []Difference
	for _, name := range expected.Names() {
		if skip[name] {
			continue
		}
		table, ok := actual.Table(name)
		if !ok {
			diffs = append(diffs, Difference{Kind: MissingTable, Table: name})
			continue
		}
		diffs = append(diffs, compareTable(expected[name], table)...)
	}
	for _, table := range actual.Tables {
		if skip[table.Name] {
			continue
		}
		if _, ok := expected[table.Name]; !ok {
			diffs = append(diffs, Difference{Kind: ExtraTable, Table: table.Name})
		}
	}
	return diffs
}

func compareTable(want schema.TableInfo, got *Table) []Difference {
	var diffs []Difference
	for _, name := range want.ColumnNames() {
		if _, ok := got.Column(name); !ok {
			diffs = append(diffs, Difference{Kind: MissingColumn, Table: want.Name, Detail: name})
		}
	}
	for _, col := range got.Columns {
		if _, ok := want.Columns[col.Name]; !ok {
			diffs = append(diffs, Difference{Kind: ExtraColumn, Table: want.Name, Detail: col.Name})
		}
	}

	if !samePrimaryKey(want.SortedPrimaryKey(), got.PrimaryKey) {
		diffs = append(diffs, Difference{Kind: PrimaryKeyMismatch, Table: want.Name,
			Detail: strings.Join(want.SortedPrimaryKey(), ",")})
	}

	for _, col := range want.SortedColumns() {
		if (col.Unique || col.Index) && !hasIndex(got, []string{col.Name}, col.Unique) {
			diffs = append(diffs, Difference{Kind: MissingIndex, Table: want.Name, Detail: col.Name})
		}
	}
	for _, idx := range want.Indices {
		if !hasIndex(got, idx.Columns, idx.Unique) {
			diffs = append(diffs, Difference{Kind: MissingIndex, Table: want.Name, Detail: strings.Join(idx.Columns, ",")})
		}
	}

	for _, fk := range want.AllForeignKeys() {
		if !hasForeignKey(got, fk) {
			diffs = append(diffs, Difference{Kind: MissingForeignKey, Table: want.Name,
				Detail: strings.Join(fk.LocalColumns(), ",") + "->" + fk.ForeignTableName})
		}
	}
	return diffs
}

func samePrimaryKey(want []string, got *PrimaryKey) bool {
	if got == nil {
		return false
	}
	cols := append([]string(nil), got.Columns...)
	sort.Strings(cols)
	return strings.Join(cols, ",") == strings.Join(want, ",")
}

func hasIndex(t *Table, columns []string, unique bool) bool {
	key := strings.Join(columns, ",")
	for _, idx := range t.Indexes {
		if idx.IsUnique == unique && strings.Join(idx.Columns, ",") == key {
			return true
		}
	}
	return false
}

func hasForeignKey(t *Table, want schema.TableForeignKeyInfo) bool {
	for _, fk := range t.ForeignKeys {
		if fk.ReferencedTable != want.ForeignTableName || len(fk.Columns) != len(want.LocalToForeignColumns) {
			continue
		}
		match := true
		for i, local := range fk.Columns {
			if i >= len(fk.ReferencedColumns) || want.LocalToForeignColumns[local] != fk.ReferencedColumns[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

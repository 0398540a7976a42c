// Package sqlgen generates DDL statements from migration sets.
package sqlgen

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

var (
	// ErrUnsupportedType is returned when a column type has no SQL mapping.
	ErrUnsupportedType = errors.New("unsupported column type")
	// ErrUnsupportedDialect is returned for an unknown database dialect.
	ErrUnsupportedDialect = errors.New("unsupported dialect")
	// ErrUnsupportedMigration is returned for a migration type the generator cannot render.
	ErrUnsupportedMigration = errors.New("unsupported migration type")
)

// Dialect identifies the target database engine.
type Dialect string

// Supported dialects
const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect normalizes a provider name such as "postgresql" or "sqlite3".
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDialect, name)
	}
}

// DriverName returns the database/sql driver name for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case SQLite:
		return "sqlite3"
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	default:
		return string(d)
	}
}

// Generator turns a migration set into ordered SQL statements.
type Generator interface {
	Dialect() Dialect
	Generate(set *migration.Set) ([]string, error)
}

// NewGenerator creates a generator for the given dialect.
func NewGenerator(d Dialect) (Generator, error) {
	switch d {
	case SQLite:
		return NewSQLiteGenerator(), nil
	case Postgres:
		return NewPostgresGenerator(), nil
	case MySQL:
		return NewMySQLGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, d)
	}
}

// tableState tracks what earlier migrations of the same set did to a table.
type tableState struct {
	added   map[string]bool
	rebuilt bool
}

// existing returns the columns present before a migration carrying prior
// column names runs. Without prior names every target column is assumed present.
func (s *tableState) existing(table schema.TableInfo, prior []string) map[string]bool {
	out := map[string]bool{}
	if prior == nil {
		for name := range table.Columns {
			out[name] = true
		}
		return out
	}
	for _, name := range prior {
		out[name] = true
	}
	for name := range s.added {
		out[name] = true
	}
	return out
}

// dialectDDL is implemented by every dialect generator; render drives it.
type dialectDDL interface {
	CreateTable(table schema.TableInfo) ([]string, error)
	AddColumns(table schema.TableInfo, columns ...string) ([]string, error)
	AddForeignKeyReference(table schema.TableInfo, column string) ([]string, error)
	CreateIndex(table schema.TableInfo, columns []string, unique bool) []string
	ChangeDefaultValue(table schema.TableInfo, column string) ([]string, error)
	UpdatePrimaryKey(table schema.TableInfo, existing map[string]bool) ([]string, error)
	UpdateForeignKeys(table schema.TableInfo, change migration.ForeignKeyChange, existing map[string]bool) ([]string, error)
	RebuildTable(table schema.TableInfo) ([]string, error)
	DropTable(name string) []string
	// rebuilds reports whether the dialect renders t as a full table rebuild.
	rebuilds(t migration.Type) bool
	// deferred returns statements that must run after every table exists.
	deferred() []string
}

// render walks the set in its stored order and concatenates each migration's statements.
func render(d dialectDDL, set *migration.Set) ([]string, error) {
	target := set.TargetSchema()
	states := map[string]*tableState{}
	state := func(name string) *tableState {
		s, ok := states[name]
		if !ok {
			s = &tableState{added: map[string]bool{}}
			states[name] = s
		}
		return s
	}

	var out []string
	for _, m := range set.Migrations() {
		if m.Type == migration.DropTable {
			out = append(out, d.DropTable(m.TableName)...)
			continue
		}
		table, ok := target[m.TableName]
		if !ok {
			return nil, fmt.Errorf("%w: %s refers to a table missing from the target schema", schema.ErrInconsistentSchema, m)
		}
		st := state(m.TableName)
		if d.rebuilds(m.Type) {
			if st.rebuilt {
				// an earlier rebuild already produced the full target definition
				continue
			}
			table = withRetained(table, m.RetainedColumns())
		}

		var (
			stmts []string
			err   error
		)
		switch m.Type {
		case migration.CreateTable:
			stmts, err = d.CreateTable(table)
		case migration.AlterTableAddColumn, migration.AlterTableAddUnique:
			if err = requireColumn(table, m.ColumnName); err == nil {
				stmts, err = d.AddColumns(table, m.ColumnName)
				st.added[m.ColumnName] = true
			}
		case migration.AddForeignKeyReference:
			if err = requireColumn(table, m.ColumnName); err == nil {
				stmts, err = d.AddForeignKeyReference(table, m.ColumnName)
				st.added[m.ColumnName] = true
			}
		case migration.AddIndex, migration.AddUniqueIndex, migration.MakeColumnUnique:
			cols := m.IndexColumns()
			for _, c := range cols {
				if err = requireColumn(table, c); err != nil {
					break
				}
			}
			if err == nil && !st.rebuilt {
				stmts = d.CreateIndex(table, cols, m.Type != migration.AddIndex)
			}
		case migration.ChangeDefaultValue:
			if err = requireColumn(table, m.ColumnName); err == nil {
				stmts, err = d.ChangeDefaultValue(table, m.ColumnName)
			}
		case migration.UpdatePrimaryKey:
			var prior []string
			if p, ok := m.Payload.(migration.PrimaryKeyChange); ok {
				prior = p.PriorColumns
			}
			stmts, err = d.UpdatePrimaryKey(table, st.existing(table, prior))
		case migration.UpdateForeignKeys:
			change, _ := m.Payload.(migration.ForeignKeyChange)
			stmts, err = d.UpdateForeignKeys(table, change, st.existing(table, change.PriorColumns))
		case migration.CreateTempTableFromExisting:
			stmts, err = d.RebuildTable(table)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedMigration, m.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", m, err)
		}
		if d.rebuilds(m.Type) {
			st.rebuilt = true
		}
		out = append(out, stmts...)
	}
	return append(out, d.deferred()...), nil
}

// withRetained adds the columns a rebuild keeps although the target no longer
// declares them.
func withRetained(table schema.TableInfo, retained []schema.ColumnInfo) schema.TableInfo {
	if len(retained) == 0 {
		return table
	}
	out := table.Clone()
	for _, col := range retained {
		if _, ok := out.Columns[col.Name]; !ok {
			out.Columns[col.Name] = col
		}
	}
	return out
}

func requireColumn(table schema.TableInfo, name string) error {
	if _, ok := table.Columns[name]; !ok {
		return fmt.Errorf("%w: column %s.%s does not exist", schema.ErrInconsistentSchema, table.Name, name)
	}
	return nil
}

// IndexName returns the conventional name of an index over columns.
func IndexName(table string, columns []string, unique bool) string {
	suffix := "index"
	if unique {
		suffix = "unique"
	}
	return fmt.Sprintf("%s_%s_%s", table, strings.Join(columns, "_"), suffix)
}

// ForeignKeyName returns the conventional constraint name of a foreign key.
func ForeignKeyName(table string, fk schema.TableForeignKeyInfo) string {
	return fmt.Sprintf("%s_%s_fkey", table, strings.Join(fk.LocalColumns(), "_"))
}

// TriggerName returns the name of the trigger maintaining the modified column.
func TriggerName(table string) string {
	return table + "_modified"
}

// createdColumns returns the columns CREATE TABLE declares: the default,
// primary-key and foreign-key columns, sorted by name.
func createdColumns(table schema.TableInfo) []schema.ColumnInfo {
	keep := table.ForeignKeyColumns()
	for _, pk := range table.SortedPrimaryKey() {
		keep[pk] = true
	}
	var out []schema.ColumnInfo
	for _, c := range table.SortedColumns() {
		if schema.IsDefaultColumn(c.Name) || keep[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

// indexStatements returns the indices a freshly built table needs: one per
// unique or indexed column among cols, then the composite indices.
func indexStatements(d dialectDDL, table schema.TableInfo, cols []schema.ColumnInfo) []string {
	var out []string
	for _, c := range cols {
		if c.Unique || c.Index {
			out = append(out, d.CreateIndex(table, []string{c.Name}, c.Unique)...)
		}
	}
	for _, idx := range table.Indices {
		out = append(out, d.CreateIndex(table, idx.Columns, idx.Unique)...)
	}
	return out
}

// sortedForeignKeys orders foreign keys by referenced table.
func sortedForeignKeys(table schema.TableInfo) []schema.TableForeignKeyInfo {
	fks := table.AllForeignKeys()
	sort.SliceStable(fks, func(i, j int) bool {
		return fks[i].ForeignTableName < fks[j].ForeignTableName
	})
	return fks
}

// foreignKeysOf returns the foreign keys that include column.
func foreignKeysOf(table schema.TableInfo, column string) []schema.TableForeignKeyInfo {
	var out []schema.TableForeignKeyInfo
	for _, fk := range sortedForeignKeys(table) {
		if _, ok := fk.LocalToForeignColumns[column]; ok {
			out = append(out, fk)
		}
	}
	return out
}

func actionClauses(fk schema.TableForeignKeyInfo) string {
	var b strings.Builder
	if fk.DeleteAction != schema.ActionNone {
		b.WriteString(" ON DELETE ")
		b.WriteString(string(fk.DeleteAction))
	}
	if fk.UpdateAction != schema.ActionNone {
		b.WriteString(" ON UPDATE ")
		b.WriteString(string(fk.UpdateAction))
	}
	return b.String()
}

func quoteList(quote func(string) string, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func unsupportedType(table string, col schema.ColumnInfo) error {
	return fmt.Errorf("%w: %s.%s has type %q", ErrUnsupportedType, table, col.Name, col.Type)
}

func sortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

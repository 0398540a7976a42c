package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// SQLiteGenerator renders migrations for SQLite. Changes ALTER TABLE cannot
// express are applied by rebuilding the table through a temporary copy.
type SQLiteGenerator struct{}

// NewSQLiteGenerator creates a SQLite generator.
func NewSQLiteGenerator() *SQLiteGenerator {
	return &SQLiteGenerator{}
}

// Dialect returns SQLite.
func (g *SQLiteGenerator) Dialect() Dialect {
	return SQLite
}

// Generate renders the set in its stored order.
func (g *SQLiteGenerator) Generate(set *migration.Set) ([]string, error) {
	return render(g, set)
}

// SQLiteType maps a column type to its SQLite storage type.
func SQLiteType(t schema.ColumnType) (string, bool) {
	switch t {
	case schema.TypeString, schema.TypeBigDecimal, schema.TypeBigInt:
		return "TEXT", true
	case schema.TypeBool, schema.TypeInt32, schema.TypeInt64:
		return "INTEGER", true
	case schema.TypeFloat32, schema.TypeFloat64:
		return "REAL", true
	case schema.TypeDate:
		return "DATETIME", true
	case schema.TypeBytes:
		return "BLOB", true
	default:
		return "", false
	}
}

func (g *SQLiteGenerator) columnDef(table string, col schema.ColumnInfo) (string, error) {
	sqlType, ok := SQLiteType(col.Type)
	if !ok {
		return "", unsupportedType(table, col)
	}
	def := doubleQuote(col.Name) + " " + sqlType
	if col.HasDefault() {
		def += " DEFAULT(" + col.DefaultLiteral() + ")"
	}
	return def, nil
}

// CreateTable drops any table of the same name, creates the table with its
// built-in, primary-key and foreign-key columns, and installs the modified trigger.
func (g *SQLiteGenerator) CreateTable(table schema.TableInfo) ([]string, error) {
	body, err := g.createTableStatement(table.Name, table)
	if err != nil {
		return nil, err
	}
	hasFKs := table.HasForeignKeys()

	stmts := []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", doubleQuote(table.Name))}
	if hasFKs {
		stmts = append(stmts, "PRAGMA foreign_keys = OFF")
	}
	stmts = append(stmts, body)
	if hasFKs {
		stmts = append(stmts, "PRAGMA foreign_keys = ON")
	}
	stmts = append(stmts, g.modifiedTrigger(table.Name))
	stmts = append(stmts, indexStatements(g, table, createdColumns(table))...)
	return stmts, nil
}

// createTableStatement renders CREATE TABLE name (...) for the columns
// CREATE TABLE owns in table.
func (g *SQLiteGenerator) createTableStatement(name string, table schema.TableInfo) (string, error) {
	return g.createTableWith(name, table, createdColumns(table))
}

func (g *SQLiteGenerator) createTableWith(name string, table schema.TableInfo, cols []schema.ColumnInfo) (string, error) {
	inlinePK := table.HasDefaultPrimaryKey()
	defs := make([]string, 0, len(cols)+2)
	for _, col := range cols {
		def, err := g.columnDef(table.Name, col)
		if err != nil {
			return "", err
		}
		if inlinePK && col.Name == schema.IDColumn {
			def = doubleQuote(col.Name) + " INTEGER PRIMARY KEY"
		}
		defs = append(defs, def)
	}
	if !inlinePK {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY(%s)", quoteList(doubleQuote, table.SortedPrimaryKey())))
	}
	for _, fk := range sortedForeignKeys(table) {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY(%s) REFERENCES %s(%s)%s",
			quoteList(doubleQuote, fk.LocalColumns()),
			doubleQuote(fk.ForeignTableName),
			quoteList(doubleQuote, fk.ForeignColumns()),
			actionClauses(fk)))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", doubleQuote(name), strings.Join(defs, ", ")), nil
}

func (g *SQLiteGenerator) modifiedTrigger(table string) string {
	return fmt.Sprintf("CREATE TRIGGER %s AFTER UPDATE ON %s FOR EACH ROW BEGIN UPDATE %s SET %s = CURRENT_TIMESTAMP WHERE rowid = NEW.rowid; END",
		doubleQuote(TriggerName(table)), doubleQuote(table), doubleQuote(table), doubleQuote(schema.ModifiedColumn))
}

// AddColumns adds each named column in place, followed by its unique or plain index.
func (g *SQLiteGenerator) AddColumns(table schema.TableInfo, columns ...string) ([]string, error) {
	var stmts []string
	for _, name := range columns {
		col, ok := table.Columns[name]
		if !ok {
			return nil, requireColumn(table, name)
		}
		def, err := g.columnDef(table.Name, col)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", doubleQuote(table.Name), def))
		if col.Unique || col.Index {
			stmts = append(stmts, g.CreateIndex(table, []string{name}, col.Unique)...)
		}
	}
	return stmts, nil
}

// AddForeignKeyReference adds a column carrying an inline REFERENCES clause.
// SQLite refuses such a column when it has a non-NULL default.
func (g *SQLiteGenerator) AddForeignKeyReference(table schema.TableInfo, column string) ([]string, error) {
	col := table.Columns[column]
	def, err := g.columnDef(table.Name, col)
	if err != nil {
		return nil, err
	}
	fks := foreignKeysOf(table, column)
	if len(fks) == 0 {
		return g.AddColumns(table, column)
	}
	if col.HasDefault() && !strings.EqualFold(strings.TrimSpace(col.DefaultLiteral()), "NULL") {
		return nil, fmt.Errorf("%w: SQLite cannot add reference column %s.%s with a non-NULL default; update the foreign keys instead",
			ErrUnsupportedMigration, table.Name, column)
	}
	fk := fks[0]
	stmts := []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s REFERENCES %s(%s)%s",
		doubleQuote(table.Name), def,
		doubleQuote(fk.ForeignTableName), doubleQuote(fk.LocalToForeignColumns[column]),
		actionClauses(fk))}
	if col.Unique || col.Index {
		stmts = append(stmts, g.CreateIndex(table, []string{column}, col.Unique)...)
	}
	return stmts, nil
}

// CreateIndex creates a unique or plain index over columns.
func (g *SQLiteGenerator) CreateIndex(table schema.TableInfo, columns []string, unique bool) []string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return []string{fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s(%s)",
		kind, doubleQuote(IndexName(table.Name, columns, unique)), doubleQuote(table.Name), quoteList(doubleQuote, columns))}
}

// ChangeDefaultValue rebuilds the table; SQLite cannot alter a column default.
func (g *SQLiteGenerator) ChangeDefaultValue(table schema.TableInfo, _ string) ([]string, error) {
	return g.RecreateTable(table, SchemaDiff{})
}

// UpdatePrimaryKey rebuilds the table under its new primary key.
func (g *SQLiteGenerator) UpdatePrimaryKey(table schema.TableInfo, existing map[string]bool) ([]string, error) {
	return g.RecreateTable(table, SchemaDiff{AddedColumns: missing(table, existing)})
}

// UpdateForeignKeys rebuilds the table under its new foreign keys. Foreign-key
// columns that did not exist before are created empty.
func (g *SQLiteGenerator) UpdateForeignKeys(table schema.TableInfo, _ migration.ForeignKeyChange, existing map[string]bool) ([]string, error) {
	return g.RecreateTable(table, SchemaDiff{AddedColumns: missing(table, existing)})
}

// RebuildTable rebuilds the table from its target definition.
func (g *SQLiteGenerator) RebuildTable(table schema.TableInfo) ([]string, error) {
	return g.RecreateTable(table, SchemaDiff{})
}

// RecreateTable rebuilds table through a temporary copy: the copy is created
// under the target definition, filled from the original according to diff,
// and renamed into place.
func (g *SQLiteGenerator) RecreateTable(table schema.TableInfo, diff SchemaDiff) ([]string, error) {
	tmp := TempTableName(table.Name)
	cols := table.SortedColumns()
	create, err := g.createTableWith(tmp, table, cols)
	if err != nil {
		return nil, err
	}

	targets := make([]string, len(cols))
	sources := make([]string, len(cols))
	for i, col := range cols {
		targets[i] = doubleQuote(col.Name)
		sources[i] = diff.sourceExpr(col, backQuote)
	}

	stmts := []string{
		"PRAGMA foreign_keys = OFF",
		"BEGIN TRANSACTION",
		create,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			doubleQuote(tmp), strings.Join(targets, ", "), strings.Join(sources, ", "), doubleQuote(table.Name)),
		fmt.Sprintf("DROP TABLE %s", doubleQuote(table.Name)),
	}
	stmts = append(stmts, g.TableRename(tmp, table.Name)...)
	stmts = append(stmts, g.modifiedTrigger(table.Name))
	stmts = append(stmts, indexStatements(g, table, cols)...)
	stmts = append(stmts, "COMMIT", "PRAGMA foreign_keys = ON")
	return stmts, nil
}

// TableRename renames a table.
func (g *SQLiteGenerator) TableRename(from, to string) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", doubleQuote(from), doubleQuote(to))}
}

// DropTable drops the table together with its indices and triggers.
func (g *SQLiteGenerator) DropTable(name string) []string {
	return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", doubleQuote(name))}
}

func (g *SQLiteGenerator) rebuilds(t migration.Type) bool {
	switch t {
	case migration.ChangeDefaultValue, migration.UpdatePrimaryKey, migration.UpdateForeignKeys, migration.CreateTempTableFromExisting:
		return true
	}
	return false
}

func (g *SQLiteGenerator) deferred() []string {
	return nil
}

// TempTableName returns the name of the temporary copy used by a table rebuild.
func TempTableName(table string) string {
	return table + "_tmp"
}

// SchemaDiff tells a table rebuild how to fill each target column from the original table.
type SchemaDiff struct {
	// RenamedColumns maps a target column to the column it is copied from.
	RenamedColumns map[string]string
	// AddedColumns lists target columns that do not exist in the original table.
	AddedColumns map[string]bool
}

// HasRenames reports whether any column is copied from a differently named column.
func (d SchemaDiff) HasRenames() bool {
	return len(d.RenamedColumns) > 0
}

// HasAddedColumns reports whether any target column is new.
func (d SchemaDiff) HasAddedColumns() bool {
	return len(d.AddedColumns) > 0
}

// sourceExpr is the SELECT expression feeding col: the prior name for renamed
// columns, the default literal or NULL for added ones, otherwise the column itself.
// quote must not produce a double-quoted name: SQLite reads one that matches no
// column as a string literal.
func (d SchemaDiff) sourceExpr(col schema.ColumnInfo, quote func(string) string) string {
	if from, ok := d.RenamedColumns[col.Name]; ok {
		return quote(from)
	}
	if d.AddedColumns[col.Name] {
		if col.HasDefault() {
			return col.DefaultLiteral()
		}
		return "NULL"
	}
	return quote(col.Name)
}

// backQuote quotes an identifier so that SQLite never falls back to a string literal.
func backQuote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func missing(table schema.TableInfo, existing map[string]bool) map[string]bool {
	out := map[string]bool{}
	for name := range table.Columns {
		if !existing[name] {
			out[name] = true
		}
	}
	return out
}

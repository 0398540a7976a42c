package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// modifiedFunction is the trigger function shared by every table's modified trigger.
const modifiedFunction = "schemamigrate_set_modified"

// PostgresGenerator renders migrations for PostgreSQL. Foreign-key constraints
// are collected and emitted after every other statement of the set, so tables
// may be created in any order.
type PostgresGenerator struct {
	pending []string
}

// NewPostgresGenerator creates a PostgreSQL generator.
func NewPostgresGenerator() *PostgresGenerator {
	return &PostgresGenerator{}
}

// Dialect returns Postgres.
func (g *PostgresGenerator) Dialect() Dialect {
	return Postgres
}

// Generate renders the set in its stored order.
func (g *PostgresGenerator) Generate(set *migration.Set) ([]string, error) {
	return render(NewPostgresGenerator(), set)
}

// PostgresType maps a column type to a PostgreSQL type.
func PostgresType(t schema.ColumnType) (string, bool) {
	switch t {
	case schema.TypeString:
		return "TEXT", true
	case schema.TypeBigDecimal, schema.TypeBigInt:
		return "NUMERIC", true
	case schema.TypeInt32:
		return "INTEGER", true
	case schema.TypeInt64:
		return "BIGINT", true
	case schema.TypeFloat32:
		return "REAL", true
	case schema.TypeFloat64:
		return "DOUBLE PRECISION", true
	case schema.TypeDate:
		return "TIMESTAMP", true
	case schema.TypeBool:
		return "BOOLEAN", true
	case schema.TypeBytes:
		return "BYTEA", true
	default:
		return "", false
	}
}

// postgresLiteral adapts a default literal; booleans are declared as 0/1.
func postgresLiteral(col schema.ColumnInfo) string {
	lit := col.DefaultLiteral()
	if col.Type == schema.TypeBool {
		switch lit {
		case "0":
			return "FALSE"
		case "1":
			return "TRUE"
		}
	}
	return lit
}

func (g *PostgresGenerator) columnDef(table string, col schema.ColumnInfo) (string, error) {
	sqlType, ok := PostgresType(col.Type)
	if !ok {
		return "", unsupportedType(table, col)
	}
	def := doubleQuote(col.Name) + " " + sqlType
	if col.HasDefault() {
		def += " DEFAULT " + postgresLiteral(col)
	}
	return def, nil
}

// CreateTable creates the table with its built-in, primary-key and foreign-key
// columns. The synthetic _id column is a BIGSERIAL.
func (g *PostgresGenerator) CreateTable(table schema.TableInfo) ([]string, error) {
	cols := createdColumns(table)
	defs := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		if col.Name == schema.IDColumn {
			def := doubleQuote(col.Name) + " BIGSERIAL"
			if table.HasDefaultPrimaryKey() {
				def += " PRIMARY KEY"
			}
			defs = append(defs, def)
			continue
		}
		def, err := g.columnDef(table.Name, col)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if !table.HasDefaultPrimaryKey() {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			doubleQuote(table.Name+"_pkey"), quoteList(doubleQuote, table.SortedPrimaryKey())))
	}

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", doubleQuote(table.Name)),
		fmt.Sprintf("CREATE TABLE %s (%s)", doubleQuote(table.Name), strings.Join(defs, ", ")),
	}
	stmts = append(stmts, g.modifiedTrigger(table.Name)...)
	stmts = append(stmts, indexStatements(g, table, cols)...)
	for _, fk := range sortedForeignKeys(table) {
		g.deferConstraint(table.Name, fk)
	}
	return stmts, nil
}

func (g *PostgresGenerator) modifiedTrigger(table string) []string {
	return []string{
		fmt.Sprintf("CREATE OR REPLACE FUNCTION %s() RETURNS TRIGGER AS $$ BEGIN NEW.%s = CURRENT_TIMESTAMP; RETURN NEW; END; $$ LANGUAGE plpgsql",
			modifiedFunction, doubleQuote(schema.ModifiedColumn)),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", doubleQuote(TriggerName(table)), doubleQuote(table)),
		fmt.Sprintf("CREATE TRIGGER %s BEFORE UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
			doubleQuote(TriggerName(table)), doubleQuote(table), modifiedFunction),
	}
}

func (g *PostgresGenerator) deferConstraint(table string, fk schema.TableForeignKeyInfo) {
	g.pending = append(g.pending, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
		doubleQuote(table), doubleQuote(ForeignKeyName(table, fk)),
		quoteList(doubleQuote, fk.LocalColumns()),
		doubleQuote(fk.ForeignTableName), quoteList(doubleQuote, fk.ForeignColumns()),
		actionClauses(fk)))
}

// AddColumns adds each named column, followed by its unique or plain index.
func (g *PostgresGenerator) AddColumns(table schema.TableInfo, columns ...string) ([]string, error) {
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

// AddForeignKeyReference adds the column and defers its constraint.
func (g *PostgresGenerator) AddForeignKeyReference(table schema.TableInfo, column string) ([]string, error) {
	stmts, err := g.AddColumns(table, column)
	if err != nil {
		return nil, err
	}
	for _, fk := range foreignKeysOf(table, column) {
		g.deferConstraint(table.Name, fk)
	}
	return stmts, nil
}

// CreateIndex creates a unique or plain index over columns.
func (g *PostgresGenerator) CreateIndex(table schema.TableInfo, columns []string, unique bool) []string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return []string{fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, doubleQuote(IndexName(table.Name, columns, unique)), doubleQuote(table.Name), quoteList(doubleQuote, columns))}
}

// ChangeDefaultValue sets or drops the column default.
func (g *PostgresGenerator) ChangeDefaultValue(table schema.TableInfo, column string) ([]string, error) {
	col := table.Columns[column]
	if !col.HasDefault() {
		return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", doubleQuote(table.Name), doubleQuote(column))}, nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
		doubleQuote(table.Name), doubleQuote(column), postgresLiteral(col))}, nil
}

// UpdatePrimaryKey replaces the primary-key constraint.
func (g *PostgresGenerator) UpdatePrimaryKey(table schema.TableInfo, existing map[string]bool) ([]string, error) {
	stmts, err := g.addMissing(table, existing, table.SortedPrimaryKey())
	if err != nil {
		return nil, err
	}
	pkey := doubleQuote(table.Name + "_pkey")
	return append(stmts,
		fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", doubleQuote(table.Name), pkey),
		fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s)",
			doubleQuote(table.Name), pkey, quoteList(doubleQuote, table.SortedPrimaryKey())),
	), nil
}

// UpdateForeignKeys drops the prior constraints, adds missing foreign-key
// columns and defers the new constraints.
func (g *PostgresGenerator) UpdateForeignKeys(table schema.TableInfo, change migration.ForeignKeyChange, existing map[string]bool) ([]string, error) {
	var stmts []string
	for _, fk := range change.PriorForeignKeys {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s",
			doubleQuote(table.Name), doubleQuote(ForeignKeyName(table.Name, fk))))
	}
	added, err := g.addMissing(table, existing, sortedNames(table.ForeignKeyColumns()))
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, added...)
	for _, fk := range sortedForeignKeys(table) {
		g.deferConstraint(table.Name, fk)
	}
	return stmts, nil
}

func (g *PostgresGenerator) addMissing(table schema.TableInfo, existing map[string]bool, columns []string) ([]string, error) {
	var toAdd []string
	for _, c := range columns {
		if !existing[c] {
			toAdd = append(toAdd, c)
		}
	}
	if len(toAdd) == 0 {
		return nil, nil
	}
	return g.AddColumns(table, toAdd...)
}

// RebuildTable converts every user column to its declared type in place.
func (g *PostgresGenerator) RebuildTable(table schema.TableInfo) ([]string, error) {
	var stmts []string
	for _, col := range table.SortedColumns() {
		if schema.IsDefaultColumn(col.Name) {
			continue
		}
		sqlType, ok := PostgresType(col.Type)
		if !ok {
			return nil, unsupportedType(table.Name, col)
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
			doubleQuote(table.Name), doubleQuote(col.Name), sqlType, doubleQuote(col.Name), sqlType))
	}
	return stmts, nil
}

// DropTable drops the table and any constraint depending on it.
func (g *PostgresGenerator) DropTable(name string) []string {
	return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", doubleQuote(name))}
}

func (g *PostgresGenerator) rebuilds(migration.Type) bool {
	return false
}

func (g *PostgresGenerator) deferred() []string {
	out := g.pending
	g.pending = nil
	return out
}

package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// MySQLGenerator renders migrations for MySQL. Like PostgresGenerator it defers
// foreign-key constraints to the end of the set.
type MySQLGenerator struct {
	pending []string
}

// NewMySQLGenerator creates a MySQL generator.
func NewMySQLGenerator() *MySQLGenerator {
	return &MySQLGenerator{}
}

// Dialect returns MySQL.
func (g *MySQLGenerator) Dialect() Dialect {
	return MySQL
}

// Generate renders the set in its stored order.
func (g *MySQLGenerator) Generate(set *migration.Set) ([]string, error) {
	return render(NewMySQLGenerator(), set)
}

// MySQLType maps a column type to a MySQL type.
func MySQLType(t schema.ColumnType) (string, bool) {
	switch t {
	case schema.TypeString:
		return "VARCHAR(255)", true
	case schema.TypeBigDecimal:
		return "DECIMAL(65,30)", true
	case schema.TypeBigInt:
		return "DECIMAL(65,0)", true
	case schema.TypeInt32:
		return "INT", true
	case schema.TypeInt64:
		return "BIGINT", true
	case schema.TypeFloat32:
		return "FLOAT", true
	case schema.TypeFloat64:
		return "DOUBLE", true
	case schema.TypeDate:
		return "DATETIME", true
	case schema.TypeBool:
		return "TINYINT(1)", true
	case schema.TypeBytes:
		return "LONGBLOB", true
	default:
		return "", false
	}
}

func backtick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (g *MySQLGenerator) columnDef(table string, col schema.ColumnInfo) (string, error) {
	sqlType, ok := MySQLType(col.Type)
	if !ok {
		return "", unsupportedType(table, col)
	}
	def := backtick(col.Name) + " " + sqlType
	if col.HasDefault() {
		def += " DEFAULT " + col.DefaultLiteral()
	}
	if col.Name == schema.ModifiedColumn {
		def += " ON UPDATE CURRENT_TIMESTAMP"
	}
	return def, nil
}

// CreateTable creates the table with its built-in, primary-key and foreign-key
// columns. The modified column updates itself, so no trigger is needed.
func (g *MySQLGenerator) CreateTable(table schema.TableInfo) ([]string, error) {
	cols := createdColumns(table)
	defs := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		if col.Name == schema.IDColumn {
			// _id stays keyed by a unique index so the primary key can move
			defs = append(defs, backtick(col.Name)+" BIGINT NOT NULL AUTO_INCREMENT UNIQUE")
			continue
		}
		def, err := g.columnDef(table.Name, col)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(backtick, table.SortedPrimaryKey())))

	stmts := []string{
		"SET FOREIGN_KEY_CHECKS = 0",
		fmt.Sprintf("DROP TABLE IF EXISTS %s", backtick(table.Name)),
		"SET FOREIGN_KEY_CHECKS = 1",
		fmt.Sprintf("CREATE TABLE %s (%s) ENGINE=InnoDB", backtick(table.Name), strings.Join(defs, ", ")),
	}
	stmts = append(stmts, indexStatements(g, table, cols)...)
	for _, fk := range sortedForeignKeys(table) {
		g.deferConstraint(table.Name, fk)
	}
	return stmts, nil
}

func (g *MySQLGenerator) deferConstraint(table string, fk schema.TableForeignKeyInfo) {
	g.pending = append(g.pending, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)%s",
		backtick(table), backtick(ForeignKeyName(table, fk)),
		quoteList(backtick, fk.LocalColumns()),
		backtick(fk.ForeignTableName), quoteList(backtick, fk.ForeignColumns()),
		actionClauses(fk)))
}

// AddColumns adds each named column, followed by its unique or plain index.
func (g *MySQLGenerator) AddColumns(table schema.TableInfo, columns ...string) ([]string, error) {
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
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", backtick(table.Name), def))
		if col.Unique || col.Index {
			stmts = append(stmts, g.CreateIndex(table, []string{name}, col.Unique)...)
		}
	}
	return stmts, nil
}

// AddForeignKeyReference adds the column and defers its constraint.
func (g *MySQLGenerator) AddForeignKeyReference(table schema.TableInfo, column string) ([]string, error) {
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
func (g *MySQLGenerator) CreateIndex(table schema.TableInfo, columns []string, unique bool) []string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return []string{fmt.Sprintf("CREATE %s %s ON %s (%s)",
		kind, backtick(IndexName(table.Name, columns, unique)), backtick(table.Name), quoteList(backtick, columns))}
}

// ChangeDefaultValue redefines the column with its new default.
func (g *MySQLGenerator) ChangeDefaultValue(table schema.TableInfo, column string) ([]string, error) {
	def, err := g.columnDef(table.Name, table.Columns[column])
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", backtick(table.Name), def)}, nil
}

// UpdatePrimaryKey replaces the primary key in a single statement.
func (g *MySQLGenerator) UpdatePrimaryKey(table schema.TableInfo, existing map[string]bool) ([]string, error) {
	stmts, err := g.addMissing(table, existing, table.SortedPrimaryKey())
	if err != nil {
		return nil, err
	}
	return append(stmts, fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY, ADD PRIMARY KEY (%s)",
		backtick(table.Name), quoteList(backtick, table.SortedPrimaryKey()))), nil
}

// UpdateForeignKeys drops the prior constraints, adds missing foreign-key
// columns and defers the new constraints.
func (g *MySQLGenerator) UpdateForeignKeys(table schema.TableInfo, change migration.ForeignKeyChange, existing map[string]bool) ([]string, error) {
	var stmts []string
	for _, fk := range change.PriorForeignKeys {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s",
			backtick(table.Name), backtick(ForeignKeyName(table.Name, fk))))
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

func (g *MySQLGenerator) addMissing(table schema.TableInfo, existing map[string]bool, columns []string) ([]string, error) {
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

// RebuildTable redefines every user column with its declared type.
func (g *MySQLGenerator) RebuildTable(table schema.TableInfo) ([]string, error) {
	var mods []string
	for _, col := range table.SortedColumns() {
		if schema.IsDefaultColumn(col.Name) {
			continue
		}
		def, err := g.columnDef(table.Name, col)
		if err != nil {
			return nil, err
		}
		mods = append(mods, "MODIFY COLUMN "+def)
	}
	if len(mods) == 0 {
		return nil, nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s %s", backtick(table.Name), strings.Join(mods, ", "))}, nil
}

// DropTable drops the table with foreign-key checks suspended.
func (g *MySQLGenerator) DropTable(name string) []string {
	return []string{
		"SET FOREIGN_KEY_CHECKS = 0",
		fmt.Sprintf("DROP TABLE IF EXISTS %s", backtick(name)),
		"SET FOREIGN_KEY_CHECKS = 1",
	}
}

func (g *MySQLGenerator) rebuilds(migration.Type) bool {
	return false
}

func (g *MySQLGenerator) deferred() []string {
	out := g.pending
	g.pending = nil
	return out
}

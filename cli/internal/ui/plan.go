package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
)

// MigrationColor picks the printer for a migration type: red for drops,
// yellow for rebuilds, green for everything else.
func MigrationColor(t migration.Type) *color.Color {
	printers := GetColorPrinters()
	switch t {
	case migration.DropTable:
		return printers["error"]
	case migration.CreateTempTableFromExisting, migration.UpdatePrimaryKey, migration.UpdateForeignKeys:
		return printers["warning"]
	default:
		return printers["success"]
	}
}

// PrintMigrations lists each migration of set, colored by type.
func PrintMigrations(set *migration.Set) {
	for _, m := range set.Migrations() {
		target := m.TableName
		if m.ColumnName != "" {
			target += "." + m.ColumnName
		}
		ColorPrint(MigrationColor(m.Type), "  %-32s", m.Type)
		fmt.Println(target)
	}
}

// PlanMarkdown summarizes a migration set and its DDL as markdown.
func PlanMarkdown(set *migration.Set, statements []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Migration plan v%d\n\n", set.DBVersion())
	if set.IsEmpty() {
		b.WriteString("Schema is up to date. Nothing to migrate.\n")
		return b.String()
	}

	if set.HasDestructive() {
		b.WriteString("> **Warning:** this plan drops tables and their data.\n\n")
	}

	b.WriteString("| # | Type | Table | Column |\n|---|------|-------|--------|\n")
	for i, m := range set.Migrations() {
		column := m.ColumnName
		if column == "" {
			column = "-"
		}
		fmt.Fprintf(&b, "| %d | `%s` | %s | %s |\n", i+1, m.Type, m.TableName, column)
	}

	if len(statements) > 0 {
		b.WriteString("\n## SQL\n\n```sql\n")
		for _, stmt := range statements {
			b.WriteString(stmt)
			b.WriteString(";\n")
		}
		b.WriteString("```\n")
	}
	return b.String()
}

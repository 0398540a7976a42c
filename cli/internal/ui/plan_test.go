package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

func TestPlanMarkdown(t *testing.T) {
	set := migration.NewSet([]migration.Migration{
		migration.New(migration.CreateTable, "user", ""),
		migration.New(migration.AlterTableAddColumn, "user", "email"),
		migration.New(migration.DropTable, "legacy", ""),
	}, schema.Tables{}, 3)

	md := PlanMarkdown(set, []string{`DROP TABLE "legacy"`})
	assert.Contains(t, md, "# Migration plan v3")
	assert.Contains(t, md, "**Warning:**")
	assert.Contains(t, md, "| 2 | `ALTER_TABLE_ADD_COLUMN` | user | email |")
	assert.Contains(t, md, "| 1 | `CREATE_TABLE` | user | - |")
	assert.Contains(t, md, "DROP TABLE \"legacy\";\n```")

	out, err := RenderMarkdown(md)
	require.NoError(t, err)
	assert.Contains(t, out, "legacy")
}

func TestPlanMarkdownEmpty(t *testing.T) {
	md := PlanMarkdown(migration.NewSet(nil, schema.Tables{}, 4), nil)
	assert.Contains(t, md, "Nothing to migrate")
	assert.NotContains(t, md, "```sql")
}

func TestMigrationColor(t *testing.T) {
	printers := GetColorPrinters()
	assert.Equal(t, printers["error"].Sprint("x"), MigrationColor(migration.DropTable).Sprint("x"))
	assert.Equal(t, printers["warning"].Sprint("x"), MigrationColor(migration.UpdatePrimaryKey).Sprint("x"))
	assert.Equal(t, printers["success"].Sprint("x"), MigrationColor(migration.AddIndex).Sprint("x"))
}

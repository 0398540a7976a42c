package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemamigrate/migrate/diff"
	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

func mustTable(t *testing.T, name string, cols []schema.ColumnInfo, opts ...schema.TableOption) schema.TableInfo {
	t.Helper()
	table, err := schema.NewTableInfo(name, "com.example."+name, cols, opts...)
	require.NoError(t, err)
	return table
}

func strPtr(s string) *string { return &s }

func userTable(t *testing.T) schema.TableInfo {
	return mustTable(t, "user", []schema.ColumnInfo{
		{Name: "id", Type: schema.TypeInt64},
		{Name: "name", Type: schema.TypeString, Unique: true},
	}, schema.WithPrimaryKey("id"))
}

func countPrefix(stmts []string, prefix string) int {
	n := 0
	for _, s := range stmts {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{in: "sqlite", want: SQLite},
		{in: "SQLite3", want: SQLite},
		{in: "postgresql", want: Postgres},
		{in: " pg ", want: Postgres},
		{in: "mariadb", want: MySQL},
		{in: "oracle", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedDialect)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewGenerator(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres, MySQL} {
		g, err := NewGenerator(d)
		require.NoError(t, err)
		assert.Equal(t, d, g.Dialect())
	}
	_, err := NewGenerator("db2")
	assert.ErrorIs(t, err, ErrUnsupportedDialect)

	assert.Equal(t, "sqlite3", SQLite.DriverName())
	assert.Equal(t, "postgres", Postgres.DriverName())
	assert.Equal(t, "mysql", MySQL.DriverName())
}

func TestNames(t *testing.T) {
	assert.Equal(t, "user_email_unique", IndexName("user", []string{"email"}, true))
	assert.Equal(t, "user_last_first_index", IndexName("user", []string{"last", "first"}, false))
	assert.Equal(t, "post_author_id_fkey", ForeignKeyName("post", schema.TableForeignKeyInfo{
		ForeignTableName:      "user",
		LocalToForeignColumns: map[string]string{"author_id": "_id"},
	}))
	assert.Equal(t, "user_modified", TriggerName("user"))
	assert.Equal(t, "user_tmp", TempTableName("user"))
}

func TestGenerateRejectsMigrationOutsideTarget(t *testing.T) {
	set := migration.NewSet([]migration.Migration{migration.New(migration.CreateTable, "ghost", "")}, schema.Tables{}, 1)
	for _, d := range []Dialect{SQLite, Postgres, MySQL} {
		g, err := NewGenerator(d)
		require.NoError(t, err)
		_, err = g.Generate(set)
		assert.ErrorIs(t, err, schema.ErrInconsistentSchema, string(d))
	}
}

func TestGenerateRejectsMissingColumn(t *testing.T) {
	user := userTable(t)
	set := migration.NewSet([]migration.Migration{migration.New(migration.AlterTableAddColumn, "user", "missing")},
		schema.Tables{"user": user}, 1)
	_, err := NewSQLiteGenerator().Generate(set)
	assert.ErrorIs(t, err, schema.ErrInconsistentSchema)
}

func TestGenerateUnsupportedType(t *testing.T) {
	user := userTable(t)
	user.Columns["blob"] = schema.ColumnInfo{Name: "blob", Type: "uuid"}
	set := migration.NewSet([]migration.Migration{migration.New(migration.AlterTableAddColumn, "user", "blob")},
		schema.Tables{"user": user}, 1)
	for _, d := range []Dialect{SQLite, Postgres, MySQL} {
		g, err := NewGenerator(d)
		require.NoError(t, err)
		_, err = g.Generate(set)
		assert.ErrorIs(t, err, ErrUnsupportedType, string(d))
	}
}

func TestGenerateUnknownMigrationType(t *testing.T) {
	user := userTable(t)
	set := migration.NewSet([]migration.Migration{migration.New("RENAME_EVERYTHING", "user", "")},
		schema.Tables{"user": user}, 1)
	_, err := NewSQLiteGenerator().Generate(set)
	assert.ErrorIs(t, err, ErrUnsupportedMigration)
}

func TestGenerateIsRepeatable(t *testing.T) {
	post := mustTable(t, "post", []schema.ColumnInfo{
		{Name: "author_id", Type: schema.TypeInt64, ForeignKey: &schema.ForeignKeyInfo{TableName: "user", ColumnName: "_id"}},
	})
	target := schema.Tables{"user": userTable(t), "post": post}
	set, err := diff.Compute(schema.Tables{}, target, 0)
	require.NoError(t, err)

	for _, d := range []Dialect{SQLite, Postgres, MySQL} {
		g, err := NewGenerator(d)
		require.NoError(t, err)
		first, err := g.Generate(set)
		require.NoError(t, err)
		second, err := g.Generate(set)
		require.NoError(t, err)
		assert.Equal(t, first, second, string(d))
	}
}

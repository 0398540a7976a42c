package introspect

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemamigrate/migrate/diff"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func blogTables(t *testing.T) schema.Tables {
	t.Helper()
	user, err := schema.NewTableInfo("user", "com.example.User", []schema.ColumnInfo{
		{Name: "name", Type: schema.TypeString, Unique: true},
	})
	require.NoError(t, err)
	post, err := schema.NewTableInfo("post", "com.example.Post", []schema.ColumnInfo{
		{Name: "title", Type: schema.TypeString, Index: true},
		{Name: "author_id", Type: schema.TypeInt64, ForeignKey: &schema.ForeignKeyInfo{
			TableName: "user", ColumnName: schema.IDColumn, DeleteAction: schema.ActionCascade,
		}},
	}, schema.WithIndices(schema.IndexInfo{Columns: []string{"title", "author_id"}, Unique: true}))
	require.NoError(t, err)
	return schema.Tables{"user": user, "post": post}
}

func apply(t *testing.T, db *sql.DB, tables schema.Tables) {
	t.Helper()
	set, err := diff.Compute(schema.Tables{}, tables, 0)
	require.NoError(t, err)
	gen, err := sqlgen.NewGenerator(sqlgen.SQLite)
	require.NoError(t, err)
	stmts, err := gen.Generate(set)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func TestSQLiteIntrospectMatchesDeclaredSchema(t *testing.T) {
	db := openMemory(t)
	tables := blogTables(t)
	apply(t, db, tables)

	in, err := NewIntrospector(db, sqlgen.SQLite)
	require.NoError(t, err)
	got, err := in.Introspect(context.Background())
	require.NoError(t, err)

	require.Len(t, got.Tables, 2)
	assert.Equal(t, "post", got.Tables[0].Name)
	assert.Equal(t, "user", got.Tables[1].Name)
	assert.Empty(t, Compare(tables, got))

	user, ok := got.Table("user")
	require.True(t, ok)
	require.NotNil(t, user.PrimaryKey)
	assert.Equal(t, []string{schema.IDColumn}, user.PrimaryKey.Columns)
	id, ok := user.Column(schema.IDColumn)
	require.True(t, ok)
	assert.True(t, id.AutoIncrement)
	deleted, ok := user.Column(schema.DeletedColumn)
	require.True(t, ok)
	require.NotNil(t, deleted.DefaultValue)
	assert.Equal(t, "0", *deleted.DefaultValue)

	post, ok := got.Table("post")
	require.True(t, ok)
	require.Len(t, post.ForeignKeys, 1)
	fk := post.ForeignKeys[0]
	assert.Equal(t, "user", fk.ReferencedTable)
	assert.Equal(t, []string{"author_id"}, fk.Columns)
	assert.Equal(t, []string{schema.IDColumn}, fk.ReferencedColumns)
	assert.Equal(t, "CASCADE", fk.OnDelete)
	assert.True(t, hasIndex(post, []string{"title", "author_id"}, true))
}

func TestCompareReportsDrift(t *testing.T) {
	tables := blogTables(t)
	actual := &DatabaseSchema{Tables: []Table{
		{
			Name: "post",
			Columns: []Column{
				{Name: "_id"}, {Name: "created"}, {Name: "modified"}, {Name: "deleted"},
				{Name: "title"}, {Name: "legacy"},
			},
			PrimaryKey: &PrimaryKey{Columns: []string{"title"}},
		},
		{Name: "_schema_migrations", Columns: []Column{{Name: "db_version"}}},
		{Name: "audit"},
	}}

	got := Compare(tables, actual, "_schema_migrations")
	var rendered []string
	for _, d := range got {
		rendered = append(rendered, d.String())
	}
	assert.Equal(t, []string{
		"missing_column: post.author_id",
		"extra_column: post.legacy",
		"primary_key_mismatch: post._id",
		"missing_index: post.title",
		"missing_index: post.title,author_id",
		"missing_foreign_key: post.author_id->user",
		"missing_table: user",
		"extra_table: audit",
	}, rendered)
}

func TestIntrospectCancelledContext(t *testing.T) {
	db := openMemory(t)
	apply(t, db, blogTables(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&SQLiteIntrospector{db: db}).Introspect(ctx)
	assert.Error(t, err)
}

func TestNewIntrospectorPerDialect(t *testing.T) {
	for dialect, want := range map[sqlgen.Dialect]Introspector{
		sqlgen.SQLite:   &SQLiteIntrospector{},
		sqlgen.Postgres: &PostgresIntrospector{},
		sqlgen.MySQL:    &MySQLIntrospector{},
	} {
		got, err := NewIntrospector(nil, dialect)
		require.NoError(t, err)
		assert.IsType(t, want, got)
	}

	_, err := NewIntrospector(nil, "oracle")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

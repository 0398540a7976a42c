package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNewTableInfoInjectsDefaults(t *testing.T) {
	table, err := NewTableInfo("user", "com.example.User", []ColumnInfo{
		{Name: "name", Type: TypeString, Unique: true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{IDColumn}, table.PrimaryKey)
	assert.True(t, table.HasDefaultPrimaryKey())
	assert.Equal(t, []string{"_id", "created", "deleted", "modified", "name"}, table.ColumnNames())

	created := table.MustColumn(CreatedColumn)
	assert.Equal(t, CurrentTimestamp, created.DefaultLiteral())
	assert.Equal(t, "0", table.MustColumn(DeletedColumn).DefaultLiteral())
}

func TestNewTableInfoValidation(t *testing.T) {
	tests := []struct {
		name    string
		columns []ColumnInfo
		opts    []TableOption
	}{
		{
			name:    "missing primary key column",
			columns: []ColumnInfo{{Name: "name", Type: TypeString}},
			opts:    []TableOption{WithPrimaryKey("id")},
		},
		{
			name:    "missing foreign key column",
			columns: []ColumnInfo{{Name: "name", Type: TypeString}},
			opts: []TableOption{WithForeignKeys(TableForeignKeyInfo{
				ForeignTableName:      "org",
				LocalToForeignColumns: map[string]string{"org_id": IDColumn},
			})},
		},
		{
			name:    "missing index column",
			columns: []ColumnInfo{{Name: "name", Type: TypeString}},
			opts:    []TableOption{WithIndices(IndexInfo{Columns: []string{"name", "age"}})},
		},
		{
			name:    "redeclared built-in column",
			columns: []ColumnInfo{{Name: CreatedColumn, Type: TypeDate}},
		},
		{
			name:    "duplicate column",
			columns: []ColumnInfo{{Name: "a", Type: TypeString}, {Name: "a", Type: TypeInt32}},
		},
		{
			name: "unknown action",
			columns: []ColumnInfo{{Name: "org_id", Type: TypeInt64, ForeignKey: &ForeignKeyInfo{
				TableName: "org", ColumnName: IDColumn, DeleteAction: "EXPLODE",
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTableInfo("user", "", tt.columns, tt.opts...)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInconsistentSchema)
		})
	}
}

func TestAllForeignKeysMergesColumnReferences(t *testing.T) {
	table, err := NewTableInfo("post", "", []ColumnInfo{
		{Name: "author_id", Type: TypeInt64, ForeignKey: &ForeignKeyInfo{TableName: "user", ColumnName: IDColumn, DeleteAction: ActionCascade}},
		{Name: "org_code", Type: TypeString},
		{Name: "org_id", Type: TypeInt64},
	}, WithForeignKeys(TableForeignKeyInfo{
		ForeignTableName:      "org",
		LocalToForeignColumns: map[string]string{"org_id": IDColumn, "org_code": "code"},
	}))
	require.NoError(t, err)

	fks := table.AllForeignKeys()
	require.Len(t, fks, 2)
	assert.Equal(t, "org", fks[0].ForeignTableName)
	assert.Equal(t, []string{"org_code", "org_id"}, fks[0].LocalColumns())
	assert.Equal(t, []string{"code", IDColumn}, fks[0].ForeignColumns())
	assert.Equal(t, "user", fks[1].ForeignTableName)
	assert.Equal(t, ActionCascade, fks[1].DeleteAction)

	assert.Equal(t, map[string]bool{"author_id": true, "org_code": true, "org_id": true}, table.ForeignKeyColumns())
}

func TestSameForeignKeysIgnoresOrder(t *testing.T) {
	a := TableInfo{Name: "t", ForeignKeys: []TableForeignKeyInfo{
		{ForeignTableName: "x", LocalToForeignColumns: map[string]string{"a": "_id"}},
		{ForeignTableName: "y", LocalToForeignColumns: map[string]string{"b": "_id"}},
	}}
	b := TableInfo{Name: "t", ForeignKeys: []TableForeignKeyInfo{a.ForeignKeys[1], a.ForeignKeys[0]}}
	assert.True(t, a.SameForeignKeys(b))

	c := b.Clone()
	c.ForeignKeys[0].DeleteAction = ActionCascade
	assert.False(t, a.SameForeignKeys(c))
}

func TestCloneIsDeep(t *testing.T) {
	table, err := NewTableInfo("user", "", []ColumnInfo{{Name: "name", Type: TypeString, DefaultValue: strPtr("'x'")}})
	require.NoError(t, err)

	clone := table.Clone()
	*clone.Columns["name"].DefaultValue = "'y'"
	clone.PrimaryKey[0] = "name"

	assert.Equal(t, "'x'", table.MustColumn("name").DefaultLiteral())
	assert.Equal(t, IDColumn, table.PrimaryKey[0])
	assert.False(t, table.Equal(clone))
}

func TestColumnDefaults(t *testing.T) {
	plain := ColumnInfo{Name: "a", Type: TypeInt32}
	withZero := plain.WithDefault("0")

	assert.False(t, plain.SameDefault(withZero))
	assert.True(t, withZero.SameDefault(plain.WithDefault("0")))
	assert.False(t, withZero.SameDefault(plain.WithDefault("1")))
	assert.True(t, plain.SameDefault(withZero.WithoutDefault()))
	assert.False(t, plain.HasDefault())
}

func TestTablesValidateChecksReferences(t *testing.T) {
	post, err := NewTableInfo("post", "", []ColumnInfo{
		{Name: "author_id", Type: TypeInt64, ForeignKey: &ForeignKeyInfo{TableName: "user", ColumnName: IDColumn}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, Tables{"post": post}.Validate(), ErrInconsistentSchema)

	user, err := NewTableInfo("user", "", nil)
	require.NoError(t, err)
	assert.NoError(t, Tables{"post": post, "user": user}.Validate())
}

func TestColumnTypeKnown(t *testing.T) {
	assert.True(t, TypeBigDecimal.Known())
	assert.False(t, ColumnType("uuid").Known())
}

func TestMustColumnPanics(t *testing.T) {
	table, err := NewTableInfo("user", "", nil)
	require.NoError(t, err)
	assert.Panics(t, func() { table.MustColumn("missing") })
}

package declare

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

const blog = `
// organisations own users
table org "com.example.Org" {
  code  string @unique
}

table user "com.example.User" {
  name     string @unique @index @default("anon") @searchable @orderable
  age      int32  @default(18)
  active   bool   @default(true)
  joined   date   @default(now)
  org_id   int64  @references(org._id, onDelete: "CASCADE")
  org_code string
  @@index([name, age])
  @@foreign(org, [org_id, org_code], [_id, code], onUpdate: "CASCADE")
  @@asset("seed/user.csv")
}

table tag {
  label string
  @@primary([label])
  @@unique([label, _id])
}
`

func TestParseDeclarationLanguage(t *testing.T) {
	tables, err := ParseString("blog.schema", blog)
	require.NoError(t, err)
	assert.Equal(t, []string{"org", "tag", "user"}, tables.Names())

	user := tables["user"]
	assert.Equal(t, "com.example.User", user.QualifiedType)
	assert.Equal(t, "seed/user.csv", user.StaticDataAsset)
	assert.Equal(t, []string{schema.IDColumn}, user.PrimaryKey)

	name := user.MustColumn("name")
	assert.Equal(t, schema.TypeString, name.Type)
	assert.True(t, name.Unique)
	assert.True(t, name.Index)
	assert.True(t, name.Searchable)
	assert.True(t, name.Orderable)
	assert.Equal(t, "'anon'", name.DefaultLiteral())

	assert.Equal(t, "18", user.MustColumn("age").DefaultLiteral())
	assert.Equal(t, "1", user.MustColumn("active").DefaultLiteral())
	assert.Equal(t, schema.CurrentTimestamp, user.MustColumn("joined").DefaultLiteral())

	ref := user.MustColumn("org_id").ForeignKey
	require.NotNil(t, ref)
	assert.Equal(t, schema.ForeignKeyInfo{TableName: "org", ColumnName: "_id", DeleteAction: schema.ActionCascade}, *ref)

	require.Len(t, user.ForeignKeys, 1)
	assert.Equal(t, "org", user.ForeignKeys[0].ForeignTableName)
	assert.Equal(t, map[string]string{"org_id": "_id", "org_code": "code"}, user.ForeignKeys[0].LocalToForeignColumns)
	assert.Equal(t, schema.ActionCascade, user.ForeignKeys[0].UpdateAction)

	assert.Equal(t, []schema.IndexInfo{{Columns: []string{"name", "age"}}}, user.Indices)

	tag := tables["tag"]
	assert.Equal(t, "tag", tag.QualifiedType)
	assert.Equal(t, []string{"label"}, tag.PrimaryKey)
	assert.Equal(t, []schema.IndexInfo{{Columns: []string{"label", "_id"}, Unique: true}}, tag.Indices)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		is     error
	}{
		{name: "syntax", source: `table user { name string`},
		{name: "unknown type", source: `table user { name text }`, is: ErrInvalidDeclaration},
		{name: "unknown attribute", source: `table user { name string @fancy }`, is: ErrInvalidDeclaration},
		{name: "unknown block", source: `table user { @@shard([name]) }`, is: ErrInvalidDeclaration},
		{name: "bad action", source: `table user { org int64 @references(org._id, onDelete: "EXPLODE") }`, is: ErrInvalidDeclaration},
		{name: "bad reference", source: `table user { org int64 @references(org) }`, is: ErrInvalidDeclaration},
		{name: "duplicate table", source: `table a { } table a { }`, is: ErrInvalidDeclaration},
		{name: "built-in column", source: `table a { created date }`, is: schema.ErrInconsistentSchema},
		{name: "unknown referenced table", source: `table a { b int64 @references(b._id) }`, is: schema.ErrInconsistentSchema},
		{name: "index on missing column", source: `table a { @@index([nope]) }`, is: schema.ErrInconsistentSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString("bad.schema", tt.source)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestParseJSONAcceptsStoredTargetSchema(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `{
	  "user": {
	    "qualified_type": "com.example.User",
	    "column_map": {
	      "_id": {"column_name": "_id", "column_type": "int64"},
	      "email": {"column_type": "string", "unique": true, "default_value": "'x'"}
	    },
	    "primary_key": ["_id"]
	  }
	}`
	require.NoError(t, afero.WriteFile(fs, "schema.json", []byte(doc), 0644))

	got, err := Load(fs, "schema.json")
	require.NoError(t, err)
	user := got["user"]
	assert.Equal(t, "user", user.Name)
	assert.Equal(t, "'x'", user.MustColumn("email").DefaultLiteral())
	assert.True(t, user.MustColumn("email").Unique)
	assert.Len(t, user.Columns, 5)
}

func TestParseYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `
tables:
  - name: org
    columns:
      - {name: code, type: string, unique: true}
  - name: member
    type: com.example.Member
    columns:
      - name: org_id
        type: int64
        references: {table: org, column: _id, on_delete: CASCADE}
      - {name: nick, type: string, default: "'n/a'", index: true}
    indices:
      - {columns: [nick, org_id], unique: true}
`
	require.NoError(t, afero.WriteFile(fs, "schema.yaml", []byte(doc), 0644))

	tables, err := Load(fs, "schema.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"member", "org"}, tables.Names())

	member := tables["member"]
	assert.Equal(t, "com.example.Member", member.QualifiedType)
	assert.Equal(t, schema.ActionCascade, member.MustColumn("org_id").ForeignKey.DeleteAction)
	assert.Equal(t, "'n/a'", member.MustColumn("nick").DefaultLiteral())
	assert.Equal(t, []schema.IndexInfo{{Columns: []string{"nick", "org_id"}, Unique: true}}, member.Indices)
}

func TestParseYAMLRejectsUnknownFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "schema.yml", []byte("tables:\n  - name: a\n    colums: []\n"), 0644))
	_, err := Load(fs, "schema.yml")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "missing.schema")
	assert.Error(t, err)
}

// Package schema defines the value types that describe a declared database schema.
package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInconsistentSchema is returned when a table references a column that does not exist.
var ErrInconsistentSchema = errors.New("inconsistent schema")

// CurrentTimestamp is the default-value sentinel for "current timestamp".
const CurrentTimestamp = "CURRENT_TIMESTAMP"

// Default column names present on every table.
const (
	IDColumn       = "_id"
	CreatedColumn  = "created"
	ModifiedColumn = "modified"
	DeletedColumn  = "deleted"
)

// ColumnType is the declared value type of a column.
type ColumnType string

// Supported column types
const (
	TypeInt32      ColumnType = "int32"
	TypeInt64      ColumnType = "int64"
	TypeFloat32    ColumnType = "float32"
	TypeFloat64    ColumnType = "float64"
	TypeString     ColumnType = "string"
	TypeBytes      ColumnType = "bytes"
	TypeBigInt     ColumnType = "bigint"
	TypeBigDecimal ColumnType = "bigdecimal"
	TypeDate       ColumnType = "date"
	TypeBool       ColumnType = "bool"
)

var knownTypes = map[ColumnType]bool{
	TypeInt32: true, TypeInt64: true, TypeFloat32: true, TypeFloat64: true,
	TypeString: true, TypeBytes: true, TypeBigInt: true, TypeBigDecimal: true,
	TypeDate: true, TypeBool: true,
}

// Known reports whether the type belongs to the closed set of column types.
func (t ColumnType) Known() bool {
	return knownTypes[t]
}

// ReferentialAction is an ON DELETE / ON UPDATE action. The empty value means unset.
type ReferentialAction string

// Referential actions
const (
	ActionNone       ReferentialAction = ""
	ActionNoAction   ReferentialAction = "NO ACTION"
	ActionRestrict   ReferentialAction = "RESTRICT"
	ActionSetNull    ReferentialAction = "SET NULL"
	ActionSetDefault ReferentialAction = "SET DEFAULT"
	ActionCascade    ReferentialAction = "CASCADE"
)

// Valid reports whether the action is one of the known actions or unset.
func (a ReferentialAction) Valid() bool {
	switch a {
	case ActionNone, ActionNoAction, ActionRestrict, ActionSetNull, ActionSetDefault, ActionCascade:
		return true
	}
	return false
}

// ForeignKeyInfo describes a single-column reference to another table.
type ForeignKeyInfo struct {
	TableName    string            `json:"table_name" yaml:"table"`
	ColumnName   string            `json:"column_name" yaml:"column"`
	APIType      string            `json:"api_type,omitempty" yaml:"api_type,omitempty"`
	UpdateAction ReferentialAction `json:"update_action,omitempty" yaml:"on_update,omitempty"`
	DeleteAction ReferentialAction `json:"delete_action,omitempty" yaml:"on_delete,omitempty"`
}

// TableForeignKeyInfo is a table-level foreign key made of one or more local->foreign column pairs.
type TableForeignKeyInfo struct {
	ForeignTableName      string            `json:"foreign_table_name" yaml:"table"`
	ForeignAPIType        string            `json:"foreign_api_type,omitempty" yaml:"api_type,omitempty"`
	LocalToForeignColumns map[string]string `json:"local_to_foreign_column_map" yaml:"columns"`
	UpdateAction          ReferentialAction `json:"update_action,omitempty" yaml:"on_update,omitempty"`
	DeleteAction          ReferentialAction `json:"delete_action,omitempty" yaml:"on_delete,omitempty"`
}

// LocalColumns returns the local column names sorted alphabetically.
func (fk TableForeignKeyInfo) LocalColumns() []string {
	return sortedKeys(fk.LocalToForeignColumns)
}

// ForeignColumns returns the referenced columns in the order of LocalColumns.
func (fk TableForeignKeyInfo) ForeignColumns() []string {
	local := fk.LocalColumns()
	out := make([]string, len(local))
	for i, c := range local {
		out[i] = fk.LocalToForeignColumns[c]
	}
	return out
}

// Key returns a canonical string identifying the foreign key, used for set comparison.
func (fk TableForeignKeyInfo) Key() string {
	return fmt.Sprintf("%s%v->%v/%s/%s", fk.ForeignTableName, fk.LocalColumns(), fk.ForeignColumns(), fk.UpdateAction, fk.DeleteAction)
}

// Equal reports whether two foreign keys describe the same constraint.
func (fk TableForeignKeyInfo) Equal(other TableForeignKeyInfo) bool {
	return fk.Key() == other.Key()
}

// Clone returns a deep copy.
func (fk TableForeignKeyInfo) Clone() TableForeignKeyInfo {
	out := fk
	out.LocalToForeignColumns = make(map[string]string, len(fk.LocalToForeignColumns))
	for k, v := range fk.LocalToForeignColumns {
		out.LocalToForeignColumns[k] = v
	}
	return out
}

// ColumnInfo describes a single column. Values are never mutated; use the With helpers to derive changed copies.
type ColumnInfo struct {
	Name         string          `json:"column_name" yaml:"name"`
	Type         ColumnType      `json:"column_type" yaml:"type"`
	DefaultValue *string         `json:"default_value" yaml:"default,omitempty"`
	Unique       bool            `json:"unique" yaml:"unique,omitempty"`
	Index        bool            `json:"index" yaml:"index,omitempty"`
	ForeignKey   *ForeignKeyInfo `json:"foreign_key,omitempty" yaml:"references,omitempty"`
	Searchable   bool            `json:"searchable" yaml:"searchable,omitempty"`
	Orderable    bool            `json:"orderable" yaml:"orderable,omitempty"`
}

// HasDefault reports whether the column declares a default value.
func (c ColumnInfo) HasDefault() bool {
	return c.DefaultValue != nil
}

// DefaultLiteral returns the default value literal, or "" when none is declared.
func (c ColumnInfo) DefaultLiteral() string {
	if c.DefaultValue == nil {
		return ""
	}
	return *c.DefaultValue
}

// SameDefault reports whether both columns declare the same default, including both having none.
func (c ColumnInfo) SameDefault(other ColumnInfo) bool {
	if c.HasDefault() != other.HasDefault() {
		return false
	}
	return c.DefaultLiteral() == other.DefaultLiteral()
}

// WithDefault returns a copy of the column with the given default literal.
func (c ColumnInfo) WithDefault(literal string) ColumnInfo {
	c.DefaultValue = &literal
	return c
}

// WithoutDefault returns a copy of the column without a default.
func (c ColumnInfo) WithoutDefault() ColumnInfo {
	c.DefaultValue = nil
	return c
}

// WithUnique returns a copy of the column with the unique flag set.
func (c ColumnInfo) WithUnique(unique bool) ColumnInfo {
	c.Unique = unique
	return c
}

// WithIndex returns a copy of the column with the index flag set.
func (c ColumnInfo) WithIndex(index bool) ColumnInfo {
	c.Index = index
	return c
}

// WithForeignKey returns a copy of the column referencing fk.
func (c ColumnInfo) WithForeignKey(fk ForeignKeyInfo) ColumnInfo {
	c.ForeignKey = &fk
	return c
}

// Clone returns a deep copy.
func (c ColumnInfo) Clone() ColumnInfo {
	out := c
	if c.DefaultValue != nil {
		v := *c.DefaultValue
		out.DefaultValue = &v
	}
	if c.ForeignKey != nil {
		fk := *c.ForeignKey
		out.ForeignKey = &fk
	}
	return out
}

// Equal compares two columns attribute by attribute.
func (c ColumnInfo) Equal(other ColumnInfo) bool {
	if c.Name != other.Name || c.Type != other.Type || c.Unique != other.Unique || c.Index != other.Index ||
		c.Searchable != other.Searchable || c.Orderable != other.Orderable || !c.SameDefault(other) {
		return false
	}
	if (c.ForeignKey == nil) != (other.ForeignKey == nil) {
		return false
	}
	return c.ForeignKey == nil || *c.ForeignKey == *other.ForeignKey
}

// IndexInfo is a composite index spanning several columns, in declared order.
type IndexInfo struct {
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique" yaml:"unique,omitempty"`
}

// Key returns a canonical string identifying the index.
func (i IndexInfo) Key() string {
	return fmt.Sprintf("%v/%t", i.Columns, i.Unique)
}

// DefaultColumns returns the built-in columns every table carries.
func DefaultColumns() []ColumnInfo {
	now := CurrentTimestamp
	modified := CurrentTimestamp
	notDeleted := "0"
	return []ColumnInfo{
		{Name: IDColumn, Type: TypeInt64},
		{Name: CreatedColumn, Type: TypeDate, DefaultValue: &now},
		{Name: ModifiedColumn, Type: TypeDate, DefaultValue: &modified},
		{Name: DeletedColumn, Type: TypeBool, DefaultValue: &notDeleted},
	}
}

// IsDefaultColumn reports whether name is one of the built-in columns.
func IsDefaultColumn(name string) bool {
	switch name {
	case IDColumn, CreatedColumn, ModifiedColumn, DeletedColumn:
		return true
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package schema

import (
	"fmt"
	"sort"
	"strings"
)

// TableInfo describes a table. Treat values as read-only; Clone before deriving a changed copy.
type TableInfo struct {
	Name            string                `json:"table_name"`
	QualifiedType   string                `json:"qualified_type"`
	Columns         map[string]ColumnInfo `json:"column_map"`
	PrimaryKey      []string              `json:"primary_key"`
	ForeignKeys     []TableForeignKeyInfo `json:"foreign_keys"`
	Indices         []IndexInfo           `json:"indices,omitempty"`
	StaticDataAsset string                `json:"static_data_asset"`
}

// TableOption customizes a table built by NewTableInfo.
type TableOption func(*TableInfo)

// WithPrimaryKey sets the primary-key columns.
func WithPrimaryKey(columns ...string) TableOption {
	return func(t *TableInfo) {
		t.PrimaryKey = append([]string(nil), columns...)
	}
}

// WithForeignKeys adds table-level foreign keys.
func WithForeignKeys(fks ...TableForeignKeyInfo) TableOption {
	return func(t *TableInfo) {
		for _, fk := range fks {
			t.ForeignKeys = append(t.ForeignKeys, fk.Clone())
		}
	}
}

// WithIndices adds composite indices.
func WithIndices(indices ...IndexInfo) TableOption {
	return func(t *TableInfo) {
		for _, idx := range indices {
			t.Indices = append(t.Indices, IndexInfo{Columns: append([]string(nil), idx.Columns...), Unique: idx.Unique})
		}
	}
}

// WithStaticDataAsset sets the static data asset reference.
func WithStaticDataAsset(asset string) TableOption {
	return func(t *TableInfo) {
		t.StaticDataAsset = asset
	}
}

// NewTableInfo builds a validated table. The default columns are injected and the
// primary key defaults to the synthetic _id column.
func NewTableInfo(name, qualifiedType string, columns []ColumnInfo, opts ...TableOption) (TableInfo, error) {
	t := TableInfo{
		Name:          name,
		QualifiedType: qualifiedType,
		Columns:       make(map[string]ColumnInfo, len(columns)+4),
	}
	for _, c := range DefaultColumns() {
		t.Columns[c.Name] = c
	}
	for _, c := range columns {
		if IsDefaultColumn(c.Name) {
			return TableInfo{}, fmt.Errorf("%w: table %q redeclares built-in column %q", ErrInconsistentSchema, name, c.Name)
		}
		if _, dup := t.Columns[c.Name]; dup {
			return TableInfo{}, fmt.Errorf("%w: table %q declares column %q twice", ErrInconsistentSchema, name, c.Name)
		}
		t.Columns[c.Name] = c.Clone()
	}
	for _, opt := range opts {
		opt(&t)
	}
	if len(t.PrimaryKey) == 0 {
		t.PrimaryKey = []string{IDColumn}
	}
	if err := t.Validate(); err != nil {
		return TableInfo{}, err
	}
	return t, nil
}

// Validate checks that every column referenced by the primary key, foreign keys
// and indices exists.
func (t TableInfo) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: table without a name", ErrInconsistentSchema)
	}
	for name, c := range t.Columns {
		if name != c.Name {
			return fmt.Errorf("%w: table %q maps key %q to column %q", ErrInconsistentSchema, t.Name, name, c.Name)
		}
		if c.ForeignKey != nil {
			if c.ForeignKey.TableName == "" || c.ForeignKey.ColumnName == "" {
				return fmt.Errorf("%w: column %s.%s has an incomplete foreign key", ErrInconsistentSchema, t.Name, c.Name)
			}
			if !c.ForeignKey.UpdateAction.Valid() || !c.ForeignKey.DeleteAction.Valid() {
				return fmt.Errorf("%w: column %s.%s has an unknown referential action", ErrInconsistentSchema, t.Name, c.Name)
			}
		}
	}
	for _, pk := range t.PrimaryKey {
		if _, ok := t.Columns[pk]; !ok {
			return fmt.Errorf("%w: primary key column %s.%s does not exist", ErrInconsistentSchema, t.Name, pk)
		}
	}
	for _, fk := range t.ForeignKeys {
		if fk.ForeignTableName == "" || len(fk.LocalToForeignColumns) == 0 {
			return fmt.Errorf("%w: table %q has an empty foreign key", ErrInconsistentSchema, t.Name)
		}
		if !fk.UpdateAction.Valid() || !fk.DeleteAction.Valid() {
			return fmt.Errorf("%w: foreign key on %q has an unknown referential action", ErrInconsistentSchema, t.Name)
		}
		for local := range fk.LocalToForeignColumns {
			if _, ok := t.Columns[local]; !ok {
				return fmt.Errorf("%w: foreign key column %s.%s does not exist", ErrInconsistentSchema, t.Name, local)
			}
		}
	}
	for _, idx := range t.Indices {
		if len(idx.Columns) == 0 {
			return fmt.Errorf("%w: table %q has an empty index", ErrInconsistentSchema, t.Name)
		}
		for _, c := range idx.Columns {
			if _, ok := t.Columns[c]; !ok {
				return fmt.Errorf("%w: index column %s.%s does not exist", ErrInconsistentSchema, t.Name, c)
			}
		}
	}
	return nil
}

// Column returns the named column.
func (t TableInfo) Column(name string) (ColumnInfo, bool) {
	c, ok := t.Columns[name]
	return c, ok
}

// MustColumn returns the named column and panics if the table does not declare it.
func (t TableInfo) MustColumn(name string) ColumnInfo {
	c, ok := t.Columns[name]
	if !ok {
		panic(fmt.Sprintf("%v: column %s.%s does not exist", ErrInconsistentSchema, t.Name, name))
	}
	return c
}

// ColumnNames returns all column names sorted alphabetically.
func (t TableInfo) ColumnNames() []string {
	return sortedKeys(t.Columns)
}

// SortedColumns returns all columns sorted alphabetically by name.
func (t TableInfo) SortedColumns() []ColumnInfo {
	names := t.ColumnNames()
	out := make([]ColumnInfo, len(names))
	for i, n := range names {
		out[i] = t.Columns[n]
	}
	return out
}

// HasDefaultPrimaryKey reports whether the table is keyed only by the synthetic _id column.
func (t TableInfo) HasDefaultPrimaryKey() bool {
	return len(t.PrimaryKey) == 0 || (len(t.PrimaryKey) == 1 && t.PrimaryKey[0] == IDColumn)
}

// SortedPrimaryKey returns the primary-key columns sorted alphabetically.
func (t TableInfo) SortedPrimaryKey() []string {
	if len(t.PrimaryKey) == 0 {
		return []string{IDColumn}
	}
	out := append([]string(nil), t.PrimaryKey...)
	sort.Strings(out)
	return out
}

// IsPrimaryKeyColumn reports whether name is part of the primary key.
func (t TableInfo) IsPrimaryKeyColumn(name string) bool {
	for _, pk := range t.SortedPrimaryKey() {
		if pk == name {
			return true
		}
	}
	return false
}

// AllForeignKeys merges table-level foreign keys with the single-column references
// declared on columns, ordered by referenced table and then by local columns.
func (t TableInfo) AllForeignKeys() []TableForeignKeyInfo {
	out := make([]TableForeignKeyInfo, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		out = append(out, fk.Clone())
	}
	for _, c := range t.SortedColumns() {
		if c.ForeignKey == nil {
			continue
		}
		out = append(out, TableForeignKeyInfo{
			ForeignTableName:      c.ForeignKey.TableName,
			ForeignAPIType:        c.ForeignKey.APIType,
			LocalToForeignColumns: map[string]string{c.Name: c.ForeignKey.ColumnName},
			UpdateAction:          c.ForeignKey.UpdateAction,
			DeleteAction:          c.ForeignKey.DeleteAction,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ForeignTableName != out[j].ForeignTableName {
			return out[i].ForeignTableName < out[j].ForeignTableName
		}
		return strings.Join(out[i].LocalColumns(), ",") < strings.Join(out[j].LocalColumns(), ",")
	})
	return out
}

// ForeignKeyColumns returns the set of local columns taking part in any foreign key.
func (t TableInfo) ForeignKeyColumns() map[string]bool {
	out := make(map[string]bool)
	for _, fk := range t.AllForeignKeys() {
		for local := range fk.LocalToForeignColumns {
			out[local] = true
		}
	}
	return out
}

// HasForeignKeys reports whether the table references any other table.
func (t TableInfo) HasForeignKeys() bool {
	return len(t.AllForeignKeys()) > 0
}

// SameForeignKeys reports whether both tables declare the same set of foreign keys.
func (t TableInfo) SameForeignKeys(other TableInfo) bool {
	return sameKeySet(foreignKeyKeys(t.AllForeignKeys()), foreignKeyKeys(other.AllForeignKeys()))
}

// SamePrimaryKey reports whether both tables use the same primary-key column set.
func (t TableInfo) SamePrimaryKey(other TableInfo) bool {
	a, b := t.SortedPrimaryKey(), other.SortedPrimaryKey()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HasIndex reports whether the table declares an equal composite index.
func (t TableInfo) HasIndex(idx IndexInfo) bool {
	for _, existing := range t.Indices {
		if existing.Key() == idx.Key() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (t TableInfo) Clone() TableInfo {
	out := t
	out.Columns = make(map[string]ColumnInfo, len(t.Columns))
	for k, c := range t.Columns {
		out.Columns[k] = c.Clone()
	}
	out.PrimaryKey = append([]string(nil), t.PrimaryKey...)
	out.ForeignKeys = nil
	for _, fk := range t.ForeignKeys {
		out.ForeignKeys = append(out.ForeignKeys, fk.Clone())
	}
	out.Indices = nil
	for _, idx := range t.Indices {
		out.Indices = append(out.Indices, IndexInfo{Columns: append([]string(nil), idx.Columns...), Unique: idx.Unique})
	}
	return out
}

// Equal reports whether two tables describe the same schema.
func (t TableInfo) Equal(other TableInfo) bool {
	if t.Name != other.Name || t.QualifiedType != other.QualifiedType || t.StaticDataAsset != other.StaticDataAsset {
		return false
	}
	if len(t.Columns) != len(other.Columns) {
		return false
	}
	for name, c := range t.Columns {
		o, ok := other.Columns[name]
		if !ok || !c.Equal(o) {
			return false
		}
	}
	if !t.SamePrimaryKey(other) || !sameKeySet(foreignKeyKeys(t.ForeignKeys), foreignKeyKeys(other.ForeignKeys)) {
		return false
	}
	return sameKeySet(indexKeys(t.Indices), indexKeys(other.Indices))
}

// Tables is a schema: table name to table.
type Tables map[string]TableInfo

// Names returns the table names sorted alphabetically.
func (ts Tables) Names() []string {
	return sortedKeys(ts)
}

// Clone returns a deep copy.
func (ts Tables) Clone() Tables {
	out := make(Tables, len(ts))
	for k, t := range ts {
		out[k] = t.Clone()
	}
	return out
}

// Equal reports whether both schemas contain equal tables.
func (ts Tables) Equal(other Tables) bool {
	if len(ts) != len(other) {
		return false
	}
	for name, t := range ts {
		o, ok := other[name]
		if !ok || !t.Equal(o) {
			return false
		}
	}
	return true
}

// Validate validates every table and checks that each foreign key references a declared table.
func (ts Tables) Validate() error {
	for _, name := range ts.Names() {
		t := ts[name]
		if t.Name != name {
			return fmt.Errorf("%w: schema maps %q to table %q", ErrInconsistentSchema, name, t.Name)
		}
		if err := t.Validate(); err != nil {
			return err
		}
		for _, fk := range t.AllForeignKeys() {
			ref, ok := ts[fk.ForeignTableName]
			if !ok {
				return fmt.Errorf("%w: table %q references unknown table %q", ErrInconsistentSchema, name, fk.ForeignTableName)
			}
			for _, col := range fk.ForeignColumns() {
				if _, ok := ref.Columns[col]; !ok {
					return fmt.Errorf("%w: table %q references unknown column %s.%s", ErrInconsistentSchema, name, ref.Name, col)
				}
			}
		}
	}
	return nil
}

func foreignKeyKeys(fks []TableForeignKeyInfo) []string {
	out := make([]string, len(fks))
	for i, fk := range fks {
		out[i] = fk.Key()
	}
	return out
}

func indexKeys(indices []IndexInfo) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = idx.Key()
	}
	return out
}

func sameKeySet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

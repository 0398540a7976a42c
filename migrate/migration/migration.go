// Package migration defines individual schema changes, their ordering and the
// versioned migration set they are persisted in.
package migration

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Type identifies the kind of schema change.
type Type string

// Migration types
const (
	CreateTable                 Type = "CREATE_TABLE"
	AlterTableAddColumn         Type = "ALTER_TABLE_ADD_COLUMN"
	AlterTableAddUnique         Type = "ALTER_TABLE_ADD_UNIQUE"
	AddForeignKeyReference      Type = "ADD_FOREIGN_KEY_REFERENCE"
	UpdateForeignKeys           Type = "UPDATE_FOREIGN_KEYS"
	AddUniqueIndex              Type = "ADD_UNIQUE_INDEX"
	AddIndex                    Type = "ADD_INDEX"
	MakeColumnUnique            Type = "MAKE_COLUMN_UNIQUE"
	ChangeDefaultValue          Type = "CHANGE_DEFAULT_VALUE"
	UpdatePrimaryKey            Type = "UPDATE_PRIMARY_KEY"
	CreateTempTableFromExisting Type = "CREATE_TEMP_TABLE_FROM_EXISTING"
	DropTable                   Type = "DROP_TABLE"
)

// unknownPriority places unrecognized types after every known type.
const unknownPriority = 1 << 16

var priorities = map[Type]int{
	CreateTable:                 0,
	AlterTableAddColumn:         1,
	AlterTableAddUnique:         1,
	AddForeignKeyReference:      2,
	UpdateForeignKeys:           2,
	AddUniqueIndex:              3,
	AddIndex:                    3,
	MakeColumnUnique:            3,
	ChangeDefaultValue:          3,
	UpdatePrimaryKey:            3,
	CreateTempTableFromExisting: 4,
	DropTable:                   5,
}

// Priority returns the ordering priority; lower applies first.
func (t Type) Priority() int {
	if p, ok := priorities[t]; ok {
		return p
	}
	return unknownPriority
}

// Known reports whether t is one of the defined migration types.
func (t Type) Known() bool {
	_, ok := priorities[t]
	return ok
}

// IsTableLevel reports whether the migration applies to a whole table rather than a column.
func (t Type) IsTableLevel() bool {
	switch t {
	case CreateTable, DropTable, CreateTempTableFromExisting:
		return true
	}
	return false
}

// Migration is one atomic, typed schema change.
type Migration struct {
	TableName  string
	ColumnName string
	Type       Type
	Payload    Payload
}

// New creates a migration without a payload.
func New(t Type, table, column string) Migration {
	return Migration{TableName: table, ColumnName: column, Type: t}
}

// String returns a short human readable form, e.g. "ALTER_TABLE_ADD_UNIQUE user.name".
func (m Migration) String() string {
	if m.ColumnName == "" {
		return fmt.Sprintf("%s %s", m.Type, m.TableName)
	}
	return fmt.Sprintf("%s %s.%s", m.Type, m.TableName, m.ColumnName)
}

// sortKey is the priority tie-break: table name for table-level types, column name otherwise.
func (m Migration) sortKey() string {
	if m.Type.IsTableLevel() {
		return m.TableName
	}
	return m.ColumnName
}

func (m Migration) detail() string {
	if idx, ok := m.Payload.(IndexOrder); ok {
		return strings.Join(idx.Columns, ",")
	}
	return ""
}

// Less orders migrations by priority, then by the tie-break name, then by table,
// type and payload so the order is total.
func Less(a, b Migration) bool {
	if pa, pb := a.Type.Priority(), b.Type.Priority(); pa != pb {
		return pa < pb
	}
	if ka, kb := a.sortKey(), b.sortKey(); ka != kb {
		return ka < kb
	}
	if a.TableName != b.TableName {
		return a.TableName < b.TableName
	}
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.detail() < b.detail()
}

// Sort orders migrations in place. The sort is stable so fully equal entries keep
// their emission order.
func Sort(ms []Migration) {
	sort.SliceStable(ms, func(i, j int) bool {
		return Less(ms[i], ms[j])
	})
}

// IsOrdered reports whether ms satisfies the ordering invariant.
func IsOrdered(ms []Migration) bool {
	for i := 1; i < len(ms); i++ {
		if Less(ms[i], ms[i-1]) {
			return false
		}
	}
	return true
}

// wireMigration is the persisted form of a Migration.
type wireMigration struct {
	TableName  string            `json:"table_name"`
	ColumnName *string           `json:"column_name"`
	Type       Type              `json:"migration_type"`
	Extras     map[string]string `json:"extras"`
}

// MarshalJSON encodes the migration with its payload flattened into extras.
func (m Migration) MarshalJSON() ([]byte, error) {
	w := wireMigration{TableName: m.TableName, Type: m.Type}
	if m.ColumnName != "" {
		col := m.ColumnName
		w.ColumnName = &col
	}
	if m.Payload != nil {
		extras, err := m.Payload.extras()
		if err != nil {
			return nil, fmt.Errorf("failed to encode extras for %s: %w", m, err)
		}
		if len(extras) > 0 {
			w.Extras = extras
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the persisted form, parsing extras into a typed payload.
func (m *Migration) UnmarshalJSON(data []byte) error {
	var w wireMigration
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type == "" {
		return fmt.Errorf("migration on table %q has no migration_type", w.TableName)
	}
	payload, err := decodePayload(w.Type, w.Extras)
	if err != nil {
		return fmt.Errorf("failed to decode extras for %s on %q: %w", w.Type, w.TableName, err)
	}
	*m = Migration{TableName: w.TableName, Type: w.Type, Payload: payload}
	if w.ColumnName != nil {
		m.ColumnName = *w.ColumnName
	}
	return nil
}

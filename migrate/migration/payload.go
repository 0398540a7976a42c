package migration

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// Extras keys used by the persisted format.
const (
	ExtraExistingColumnNames = "existing_column_names"
	ExtraCurrentForeignKeys  = "current_foreign_keys"
	ExtraOrder               = "order"
	ExtraRetainedColumns     = "retained_columns"
)

// Payload carries the context a migration needs that cannot be derived from the
// target schema alone. Implementations are PrimaryKeyChange, ForeignKeyChange,
// TableRebuild, IndexOrder and RawExtras.
type Payload interface {
	extras() (map[string]string, error)
}

// PrimaryKeyChange accompanies UPDATE_PRIMARY_KEY with the columns that existed
// before the change.
type PrimaryKeyChange struct {
	PriorColumns []string
	// Retained lists existing columns the target no longer declares.
	Retained []schema.ColumnInfo
}

func (p PrimaryKeyChange) extras() (map[string]string, error) {
	cols, err := json.Marshal(sortedCopy(p.PriorColumns))
	if err != nil {
		return nil, err
	}
	out := map[string]string{ExtraExistingColumnNames: string(cols)}
	return out, putRetained(out, p.Retained)
}

// ForeignKeyChange accompanies UPDATE_FOREIGN_KEYS with the columns and foreign
// keys that existed before the change.
type ForeignKeyChange struct {
	PriorColumns     []string
	PriorForeignKeys []schema.TableForeignKeyInfo
	Retained         []schema.ColumnInfo
}

func (p ForeignKeyChange) extras() (map[string]string, error) {
	cols, err := json.Marshal(sortedCopy(p.PriorColumns))
	if err != nil {
		return nil, err
	}
	fks := p.PriorForeignKeys
	if fks == nil {
		fks = []schema.TableForeignKeyInfo{}
	}
	encoded, err := json.Marshal(fks)
	if err != nil {
		return nil, err
	}
	out := map[string]string{
		ExtraExistingColumnNames: string(cols),
		ExtraCurrentForeignKeys:  string(encoded),
	}
	return out, putRetained(out, p.Retained)
}

// TableRebuild accompanies CHANGE_DEFAULT_VALUE and CREATE_TEMP_TABLE_FROM_EXISTING
// when the table holds columns the target no longer declares. A dialect that
// rebuilds the table keeps those columns and their data.
type TableRebuild struct {
	Retained []schema.ColumnInfo
}

func (p TableRebuild) extras() (map[string]string, error) {
	out := map[string]string{}
	return out, putRetained(out, p.Retained)
}

// RetainedColumns returns the undeclared columns a table rebuild must keep.
func (m Migration) RetainedColumns() []schema.ColumnInfo {
	var retained []schema.ColumnInfo
	switch p := m.Payload.(type) {
	case PrimaryKeyChange:
		retained = p.Retained
	case ForeignKeyChange:
		retained = p.Retained
	case TableRebuild:
		retained = p.Retained
	}
	out := make([]schema.ColumnInfo, len(retained))
	for i, c := range retained {
		out[i] = c.Clone()
	}
	return out
}

func putRetained(extras map[string]string, retained []schema.ColumnInfo) error {
	if len(retained) == 0 {
		return nil
	}
	sorted := append([]schema.ColumnInfo(nil), retained...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	encoded, err := json.Marshal(sorted)
	if err != nil {
		return err
	}
	extras[ExtraRetainedColumns] = string(encoded)
	return nil
}

func parseRetained(extras map[string]string) ([]schema.ColumnInfo, error) {
	raw, ok := extras[ExtraRetainedColumns]
	if !ok || raw == "" {
		return nil, nil
	}
	var cols []schema.ColumnInfo
	if err := json.Unmarshal([]byte(raw), &cols); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ExtraRetainedColumns, err)
	}
	return cols, nil
}

// IndexOrder accompanies ADD_INDEX / ADD_UNIQUE_INDEX for composite indices with
// the indexed columns in declared order.
type IndexOrder struct {
	Columns []string
}

func (p IndexOrder) extras() (map[string]string, error) {
	cols, err := json.Marshal(p.Columns)
	if err != nil {
		return nil, err
	}
	return map[string]string{ExtraOrder: string(cols)}, nil
}

// RawExtras preserves extras that do not belong to a known payload, so files
// written by other tool versions survive a read/write cycle unchanged.
type RawExtras map[string]string

func (p RawExtras) extras() (map[string]string, error) {
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out, nil
}

// IndexColumns returns the columns of a composite index migration, falling back
// to the single named column.
func (m Migration) IndexColumns() []string {
	switch p := m.Payload.(type) {
	case IndexOrder:
		return append([]string(nil), p.Columns...)
	case RawExtras:
		if raw, ok := p[ExtraOrder]; ok {
			if cols, err := parseColumnList(raw); err == nil && len(cols) > 0 {
				return cols
			}
		}
	}
	if m.ColumnName == "" {
		return nil
	}
	return []string{m.ColumnName}
}

func decodePayload(t Type, extras map[string]string) (Payload, error) {
	if len(extras) == 0 {
		return nil, nil
	}
	switch t {
	case UpdatePrimaryKey:
		if onlyKeys(extras, ExtraExistingColumnNames, ExtraRetainedColumns) {
			cols, err := parseColumnList(extras[ExtraExistingColumnNames])
			if err != nil {
				return nil, err
			}
			retained, err := parseRetained(extras)
			if err != nil {
				return nil, err
			}
			return PrimaryKeyChange{PriorColumns: cols, Retained: retained}, nil
		}
	case ChangeDefaultValue, CreateTempTableFromExisting:
		if onlyKeys(extras, ExtraRetainedColumns) {
			retained, err := parseRetained(extras)
			if err != nil {
				return nil, err
			}
			return TableRebuild{Retained: retained}, nil
		}
	case UpdateForeignKeys:
		if onlyKeys(extras, ExtraExistingColumnNames, ExtraCurrentForeignKeys, ExtraRetainedColumns) {
			cols, err := parseColumnList(extras[ExtraExistingColumnNames])
			if err != nil {
				return nil, err
			}
			retained, err := parseRetained(extras)
			if err != nil {
				return nil, err
			}
			var fks []schema.TableForeignKeyInfo
			if raw := extras[ExtraCurrentForeignKeys]; raw != "" {
				if err := json.Unmarshal([]byte(raw), &fks); err != nil {
					return nil, fmt.Errorf("invalid %s: %w", ExtraCurrentForeignKeys, err)
				}
			}
			return ForeignKeyChange{PriorColumns: cols, PriorForeignKeys: fks, Retained: retained}, nil
		}
	case AddIndex, AddUniqueIndex:
		if onlyKeys(extras, ExtraOrder) {
			cols, err := parseColumnList(extras[ExtraOrder])
			if err != nil {
				return nil, err
			}
			return IndexOrder{Columns: cols}, nil
		}
	}
	return RawExtras(extras).clone(), nil
}

func (p RawExtras) clone() RawExtras {
	out := make(RawExtras, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// parseColumnList accepts a JSON array or a comma separated list.
func parseColumnList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var cols []string
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return nil, fmt.Errorf("invalid column list %q: %w", raw, err)
		}
		return cols, nil
	}
	parts := strings.Split(raw, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	return cols, nil
}

// onlyKeys reports whether every key of extras is in allowed.
func onlyKeys(extras map[string]string, allowed ...string) bool {
	for k := range extras {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

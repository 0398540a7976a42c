package migration

import (
	"encoding/json"
	"fmt"

	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// InvalidVersion marks a set that could not be read.
const InvalidVersion = -1

// Set is a versioned, ordered bundle of migrations plus the schema they produce.
// A Set is never mutated after creation; accessors return copies.
type Set struct {
	migrations []Migration
	target     schema.Tables
	dbVersion  int
}

// NewSet creates a set. The migrations are kept in the given order.
func NewSet(migrations []Migration, target schema.Tables, dbVersion int) *Set {
	if target == nil {
		target = schema.Tables{}
	}
	return &Set{
		migrations: cloneMigrations(migrations),
		target:     target.Clone(),
		dbVersion:  dbVersion,
	}
}

// Invalid returns the sentinel set used when a persisted set cannot be read.
func Invalid() *Set {
	return &Set{target: schema.Tables{}, dbVersion: InvalidVersion}
}

// Migrations returns the ordered migrations.
func (s *Set) Migrations() []Migration {
	return cloneMigrations(s.migrations)
}

// Len returns the number of migrations.
func (s *Set) Len() int {
	return len(s.migrations)
}

// IsEmpty reports whether the set carries no migrations.
func (s *Set) IsEmpty() bool {
	return len(s.migrations) == 0
}

// TargetSchema returns the schema snapshot the set produces.
func (s *Set) TargetSchema() schema.Tables {
	return s.target.Clone()
}

// Table returns a table from the target snapshot.
func (s *Set) Table(name string) (schema.TableInfo, bool) {
	t, ok := s.target[name]
	if !ok {
		return schema.TableInfo{}, false
	}
	return t.Clone(), true
}

// DBVersion returns the database version reached after applying the set.
func (s *Set) DBVersion() int {
	return s.dbVersion
}

// IsValid reports whether the set is not the unreadable sentinel.
func (s *Set) IsValid() bool {
	return s.dbVersion != InvalidVersion
}

// HasDestructive reports whether any migration drops a table.
func (s *Set) HasDestructive() bool {
	for _, m := range s.migrations {
		if m.Type == DropTable {
			return true
		}
	}
	return false
}

type wireSet struct {
	OrderedMigrations []Migration   `json:"ordered_migrations"`
	TargetSchema      schema.Tables `json:"target_schema"`
	DBVersion         int           `json:"db_version"`
}

// MarshalJSON encodes the set in the persisted format.
func (s *Set) MarshalJSON() ([]byte, error) {
	ms := s.migrations
	if ms == nil {
		ms = []Migration{}
	}
	return json.Marshal(wireSet{OrderedMigrations: ms, TargetSchema: s.target, DBVersion: s.dbVersion})
}

// UnmarshalJSON decodes the persisted format.
func (s *Set) UnmarshalJSON(data []byte) error {
	var w wireSet
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	for name, t := range w.TargetSchema {
		if t.Name == "" {
			t.Name = name
		}
		for key, c := range t.Columns {
			if c.Name == "" {
				c.Name = key
				t.Columns[key] = c
			}
		}
		w.TargetSchema[name] = t
	}
	if w.DBVersion < 0 {
		return fmt.Errorf("invalid db_version %d", w.DBVersion)
	}
	if w.TargetSchema == nil {
		w.TargetSchema = schema.Tables{}
	}
	*s = Set{migrations: w.OrderedMigrations, target: w.TargetSchema, dbVersion: w.DBVersion}
	return nil
}

func cloneMigrations(in []Migration) []Migration {
	if in == nil {
		return nil
	}
	out := make([]Migration, len(in))
	copy(out, in)
	return out
}

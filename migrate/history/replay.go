// Package history reconstructs the current schema from persisted migration sets
// and tracks which versions were applied to a database.
package history

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

// Replayer folds migration sets, oldest first, into the schema they produce.
// The result is computed once on first use and is immutable afterwards.
type Replayer struct {
	sets   []*migration.Set
	logger *slog.Logger

	once     sync.Once
	result   schema.Tables
	version  int
	warnings []string
}

// NewReplayer creates a replayer over sets. A nil logger uses slog.Default().
func NewReplayer(sets []*migration.Set, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{
		sets:   append([]*migration.Set(nil), sets...),
		logger: logger,
	}
}

// Replay is a shorthand for NewReplayer(sets, logger).Schema().
func Replay(sets []*migration.Set, logger *slog.Logger) schema.Tables {
	return NewReplayer(sets, logger).Schema()
}

// Schema returns a copy of the reconstructed schema.
func (r *Replayer) Schema() schema.Tables {
	r.once.Do(r.run)
	return r.result.Clone()
}

// Version returns the highest db version among the replayed sets, or 0 when there are none.
func (r *Replayer) Version() int {
	r.once.Do(r.run)
	return r.version
}

// Warnings returns the problems met while replaying. A non-empty list means the
// reconstructed schema may not match the database.
func (r *Replayer) Warnings() []string {
	r.once.Do(r.run)
	return append([]string(nil), r.warnings...)
}

func (r *Replayer) run() {
	b := &builder{tables: schema.Tables{}, warn: r.warn}
	for _, set := range r.sets {
		if set == nil || !set.IsValid() {
			r.warn("skipping unreadable migration set")
			continue
		}
		snapshot := set.TargetSchema()
		for _, m := range set.Migrations() {
			b.apply(snapshot, m, set.DBVersion())
		}
		if set.DBVersion() > r.version {
			r.version = set.DBVersion()
		}
	}
	r.result = b.tables
}

func (r *Replayer) warn(msg string, args ...any) {
	r.logger.Warn(msg, args...)
	if len(args) > 0 {
		msg = fmt.Sprintf("%s %v", msg, args)
	}
	r.warnings = append(r.warnings, msg)
}

// builder is the mutable schema owned by a single replay run.
type builder struct {
	tables schema.Tables
	warn   func(msg string, args ...any)
}

func (b *builder) apply(snapshot schema.Tables, m migration.Migration, version int) {
	if m.Type == migration.DropTable {
		delete(b.tables, m.TableName)
		return
	}
	if !m.Type.Known() {
		b.warn("ignoring unrecognized migration type", "type", string(m.Type), "table", m.TableName, "version", version)
		return
	}
	target, ok := snapshot[m.TableName]
	if !ok {
		b.warn("migration table missing from its snapshot", "migration", m.String(), "version", version)
		return
	}
	if m.Type == migration.CreateTable {
		b.tables[m.TableName] = createdTable(target)
		return
	}
	current, ok := b.tables[m.TableName]
	if !ok {
		b.warn("migration applies to a table that does not exist", "migration", m.String(), "version", version)
		return
	}

	switch m.Type {
	case migration.UpdatePrimaryKey:
		current.PrimaryKey = append([]string(nil), target.PrimaryKey...)
		b.copyColumns(&current, target, target.PrimaryKey, m, version)
	case migration.AddForeignKeyReference:
		b.copyColumns(&current, target, []string{m.ColumnName}, m, version)
		current.ForeignKeys = target.Clone().ForeignKeys
	case migration.UpdateForeignKeys:
		affected := current.ForeignKeyColumns()
		for col := range target.ForeignKeyColumns() {
			affected[col] = true
		}
		for col := range affected {
			if _, ok := target.Columns[col]; ok {
				current.Columns[col] = target.Columns[col].Clone()
			}
		}
		current.ForeignKeys = target.Clone().ForeignKeys
	case migration.AlterTableAddColumn, migration.AlterTableAddUnique, migration.MakeColumnUnique, migration.ChangeDefaultValue:
		b.copyColumns(&current, target, []string{m.ColumnName}, m, version)
	case migration.AddIndex, migration.AddUniqueIndex:
		current.Indices = target.Clone().Indices
		b.copyColumns(&current, target, m.IndexColumns(), m, version)
	case migration.CreateTempTableFromExisting:
		// the rebuild keeps columns the target no longer declares
		rebuilt := target.Clone()
		for name, col := range current.Columns {
			if _, ok := rebuilt.Columns[name]; !ok {
				rebuilt.Columns[name] = col
			}
		}
		current = rebuilt
	}
	b.tables[m.TableName] = current
}

func (b *builder) copyColumns(current *schema.TableInfo, target schema.TableInfo, names []string, m migration.Migration, version int) {
	for _, name := range names {
		col, ok := target.Columns[name]
		if !ok {
			b.warn("migration column missing from its snapshot", "migration", m.String(), "column", name, "version", version)
			continue
		}
		current.Columns[name] = col.Clone()
	}
}

// createdTable is the part of a table that CREATE TABLE materializes: the default,
// primary-key and foreign-key columns, without indices.
func createdTable(target schema.TableInfo) schema.TableInfo {
	t := target.Clone()
	keep := target.ForeignKeyColumns()
	for _, pk := range target.PrimaryKey {
		keep[pk] = true
	}
	for name := range t.Columns {
		if !schema.IsDefaultColumn(name) && !keep[name] {
			delete(t.Columns, name)
		}
	}
	t.Indices = nil
	return t
}

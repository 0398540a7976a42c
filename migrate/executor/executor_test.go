package executor

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemamigrate/migrate/diff"
	"github.com/satishbabariya/schemamigrate/migrate/history"
	"github.com/satishbabariya/schemamigrate/migrate/migration"
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

func userTables(t *testing.T, name schema.ColumnInfo) schema.Tables {
	t.Helper()
	user, err := schema.NewTableInfo("user", "com.example.User", []schema.ColumnInfo{
		{Name: "id", Type: schema.TypeInt64},
		name,
	}, schema.WithPrimaryKey("id"))
	require.NoError(t, err)
	return schema.Tables{"user": user}
}

func twoVersions(t *testing.T) []*migration.Set {
	v1 := userTables(t, schema.ColumnInfo{Name: "name", Type: schema.TypeString, Unique: true})
	v2 := userTables(t, schema.ColumnInfo{Name: "name", Type: schema.TypeString, Unique: true}.WithDefault("'anon'"))

	first, err := diff.Compute(schema.Tables{}, v1, 0)
	require.NoError(t, err)
	second, err := diff.Compute(v1, v2, first.DBVersion())
	require.NoError(t, err)
	return []*migration.Set{first, second}
}

func TestApplyRunsPendingSetsOnce(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	exec, err := NewExecutor(db, sqlgen.SQLite)
	require.NoError(t, err)

	sets := twoVersions(t)
	pending, err := exec.Pending(ctx, sets)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	results, err := exec.Apply(ctx, sets)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].DBVersion)
	assert.Equal(t, 2, results[1].DBVersion)

	version, err := exec.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.Exec(`INSERT INTO "user" ("id") VALUES (1)`)
	require.NoError(t, err)
	var name string
	require.NoError(t, db.QueryRow(`SELECT "name" FROM "user" WHERE "id" = 1`).Scan(&name))
	assert.Equal(t, "anon", name)

	records, err := history.NewTracker(db, sqlgen.SQLite).All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].MigrationCount)
	assert.Len(t, records[0].Checksum, 64)

	snapshot, err := history.NewTracker(db, sqlgen.SQLite).Snapshot(ctx, 2)
	require.NoError(t, err)
	assert.True(t, snapshot.Equal(sets[1].TargetSchema()))

	results, err = exec.Apply(ctx, sets)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestApplyRollsBackFailedSet(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	exec, err := NewExecutor(db, sqlgen.SQLite)
	require.NoError(t, err)

	sets := twoVersions(t)[:1]
	_, err = exec.Apply(ctx, sets)
	require.NoError(t, err)

	// name already exists, so adding it again fails
	broken := migration.NewSet([]migration.Migration{
		migration.New(migration.AlterTableAddColumn, "user", "name"),
	}, sets[0].TargetSchema(), 2)

	results, err := exec.Apply(ctx, []*migration.Set{broken})
	require.Error(t, err)
	assert.Empty(t, results)

	version, err := exec.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestApplySkipsInvalidSets(t *testing.T) {
	ctx := context.Background()
	exec, err := NewExecutor(openMemory(t), sqlgen.SQLite)
	require.NoError(t, err)

	results, err := exec.Apply(ctx, []*migration.Set{migration.Invalid()})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewExecutorRejectsUnknownDialect(t *testing.T) {
	_, err := NewExecutor(nil, "oracle")
	assert.ErrorIs(t, err, sqlgen.ErrUnsupportedDialect)
}

type failingLock struct{}

func (failingLock) Acquire(context.Context, string) (func(), error) {
	return nil, assert.AnError
}

func TestApplyRequiresLock(t *testing.T) {
	exec, err := NewExecutor(openMemory(t), sqlgen.SQLite, WithLock(failingLock{}))
	require.NoError(t, err)

	_, err = exec.Apply(context.Background(), twoVersions(t))
	assert.ErrorIs(t, err, assert.AnError)
}

func declare(t *testing.T, cols ...schema.ColumnInfo) schema.Tables {
	t.Helper()
	user, err := schema.NewTableInfo("user", "com.example.User", cols)
	require.NoError(t, err)
	return schema.Tables{"user": user}
}

// plan computes one set per declaration, each against the replay of the sets before it.
func plan(t *testing.T, declared ...schema.Tables) []*migration.Set {
	t.Helper()
	var sets []*migration.Set
	for _, target := range declared {
		set, err := diff.Compute(history.Replay(sets, nil), target, len(sets))
		require.NoError(t, err)
		sets = append(sets, set)
	}
	return sets
}

func columnExists(t *testing.T, db *sql.DB, table, column string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n))
	return n > 0
}

func TestApplyKeepsUndeclaredColumnData(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	exec, err := NewExecutor(db, sqlgen.SQLite)
	require.NoError(t, err)

	sets := plan(t,
		declare(t, schema.ColumnInfo{Name: "a", Type: schema.TypeString}, schema.ColumnInfo{Name: "b", Type: schema.TypeString}),
		declare(t, schema.ColumnInfo{Name: "a", Type: schema.TypeString}.WithDefault("'x'")),
		declare(t, schema.ColumnInfo{Name: "a", Type: schema.TypeString}.WithDefault("'y'"), schema.ColumnInfo{Name: "b", Type: schema.TypeString}),
	)

	_, err = exec.Apply(ctx, sets[:1])
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO "user" ("a", "b") VALUES ('1', 'keep-me')`)
	require.NoError(t, err)

	_, err = exec.Apply(ctx, sets[:2])
	require.NoError(t, err)
	assert.True(t, columnExists(t, db, "user", "b"))

	results, err := exec.Apply(ctx, sets)
	require.NoError(t, err)
	require.Len(t, results, 1)

	var a, b string
	require.NoError(t, db.QueryRow(`SELECT "a", "b" FROM "user"`).Scan(&a, &b))
	assert.Equal(t, "1", a)
	assert.Equal(t, "keep-me", b)

	_, ok := history.Replay(sets, nil)["user"].Column("b")
	assert.True(t, ok)
}

func TestApplyRollsBackFailedRebuild(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	exec, err := NewExecutor(db, sqlgen.SQLite)
	require.NoError(t, err)

	sets := plan(t,
		declare(t, schema.ColumnInfo{Name: "name", Type: schema.TypeString}),
		declare(t,
			schema.ColumnInfo{Name: "age", Type: schema.TypeInt32},
			schema.ColumnInfo{Name: "name", Type: schema.TypeString, Unique: true}.WithDefault("'anon'"),
		),
	)
	_, err = exec.Apply(ctx, sets[:1])
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO "user" ("name") VALUES ('ada'), ('ada')`)
	require.NoError(t, err)

	// the rebuild recreates name's unique index, which the duplicates violate
	_, err = exec.Apply(ctx, sets)
	require.Error(t, err)

	version, err := exec.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.False(t, columnExists(t, db, "user", "age"), "statements before the rebuild must roll back")

	_, err = db.Exec(`DELETE FROM "user" WHERE "_id" = (SELECT MAX("_id") FROM "user")`)
	require.NoError(t, err)
	results, err := exec.Apply(ctx, sets)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, columnExists(t, db, "user", "age"))
}

func TestApplyRestoresForeignKeysAfterRebuild(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	_, err := db.Exec(`PRAGMA foreign_keys = ON`)
	require.NoError(t, err)
	exec, err := NewExecutor(db, sqlgen.SQLite)
	require.NoError(t, err)

	sets := plan(t,
		declare(t, schema.ColumnInfo{Name: "name", Type: schema.TypeString}),
		declare(t, schema.ColumnInfo{Name: "name", Type: schema.TypeString}.WithDefault("'anon'")),
	)
	_, err = exec.Apply(ctx, sets)
	require.NoError(t, err)

	var fk bool
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.True(t, fk)
}

func TestWithoutTransactionControl(t *testing.T) {
	in := []string{
		"PRAGMA foreign_keys = OFF",
		"BEGIN TRANSACTION",
		`CREATE TABLE "t_tmp" ("x" TEXT)`,
		`CREATE TRIGGER "t_modified" AFTER UPDATE ON "t" FOR EACH ROW BEGIN SELECT 1; END`,
		"COMMIT",
		"PRAGMA foreign_keys = ON",
	}
	assert.Equal(t, []string{in[2], in[3]}, withoutTransactionControl(in))
}

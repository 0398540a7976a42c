package migrate

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
	"github.com/satishbabariya/schemamigrate/migrate/store"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(Options{
		Store:   store.NewDir(afero.NewMemMapFs(), "migrations"),
		Dialect: sqlgen.SQLite,
	})
	require.NoError(t, err)
	return engine
}

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func userSchema(t *testing.T) schema.Tables {
	t.Helper()
	user, err := schema.NewTableInfo("user", "com.example.User", []schema.ColumnInfo{
		{Name: "email", Type: schema.TypeString, Unique: true},
	})
	require.NoError(t, err)
	return schema.Tables{"user": user}
}

func TestPlanSaveReplan(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)

	set, err := engine.Plan(ctx, userSchema(t))
	require.NoError(t, err)
	assert.Equal(t, 1, set.DBVersion())
	assert.False(t, set.IsEmpty())

	stmts, err := engine.SQL(set)
	require.NoError(t, err)
	assert.NotEmpty(t, stmts)

	name, err := engine.Save(ctx, set)
	require.NoError(t, err)
	assert.Contains(t, name, store.Extension)

	baseline, err := engine.Baseline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, baseline.Version())
	assert.True(t, baseline.Schema().Equal(userSchema(t)))

	again, err := engine.Plan(ctx, userSchema(t))
	require.NoError(t, err)
	assert.True(t, again.IsEmpty())

	_, err = engine.Save(ctx, again)
	assert.ErrorIs(t, err, ErrEmptyPlan)
}

func TestApplyAndStatus(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	db := openMemory(t)

	set, err := engine.Plan(ctx, userSchema(t))
	require.NoError(t, err)
	_, err = engine.Save(ctx, set)
	require.NoError(t, err)

	current, pending, err := engine.Status(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, current)
	assert.Len(t, pending, 1)

	results, err := engine.Apply(ctx, db, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	current, pending, err = engine.Status(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Empty(t, pending)
}

func TestApplyAsksBeforeDroppingTables(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)
	db := openMemory(t)

	set, err := engine.Plan(ctx, userSchema(t))
	require.NoError(t, err)
	_, err = engine.Save(ctx, set)
	require.NoError(t, err)
	_, err = engine.Apply(ctx, db, nil)
	require.NoError(t, err)

	drop, err := engine.Plan(ctx, schema.Tables{})
	require.NoError(t, err)
	require.True(t, drop.HasDestructive())
	_, err = engine.Save(ctx, drop)
	require.NoError(t, err)

	var asked []string
	_, err = engine.Apply(ctx, db, func(set *migration.Set, statements []string) bool {
		asked = statements
		return false
	})
	assert.ErrorIs(t, err, ErrAborted)
	assert.NotEmpty(t, asked)

	current, _, err := engine.Status(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, current)

	results, err := engine.Apply(ctx, db, func(*migration.Set, []string) bool { return true })
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].DBVersion)
}

func TestVerifyStoredHistory(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t)

	set, err := engine.Plan(ctx, userSchema(t))
	require.NoError(t, err)
	_, err = engine.Save(ctx, set)
	require.NoError(t, err)

	report, err := engine.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Differences)
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(Options{Dialect: sqlgen.SQLite})
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = NewEngine(Options{Store: store.NewDir(afero.NewMemMapFs(), "m"), Dialect: "oracle"})
	assert.ErrorIs(t, err, sqlgen.ErrUnsupportedDialect)
}

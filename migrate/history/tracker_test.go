package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemamigrate/migrate/schema"
	"github.com/satishbabariya/schemamigrate/migrate/sqlgen"
)

func openTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	tracker := NewTracker(db, sqlgen.SQLite)
	require.NoError(t, tracker.EnsureTable(context.Background()))
	return tracker
}

func TestTrackerRecordAndRead(t *testing.T) {
	ctx := context.Background()
	tracker := openTracker(t)

	version, err := tracker.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	user := mustTable(t, "user", []schema.ColumnInfo{{Name: "name", Type: schema.TypeString}})
	snapshot, err := SerializeSchema(schema.Tables{"user": user})
	require.NoError(t, err)

	applied := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, tracker.Record(ctx, Record{DBVersion: 1, Checksum: "aa", AppliedAt: applied, ExecutionTime: 12, MigrationCount: 2, Snapshot: snapshot}))
	require.NoError(t, tracker.Record(ctx, Record{DBVersion: 2, Checksum: "bb", MigrationCount: 1}))

	version, err = tracker.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	records, err := tracker.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].DBVersion)
	assert.Equal(t, "aa", records[0].Checksum)
	assert.Equal(t, int64(12), records[0].ExecutionTime)
	assert.Equal(t, 2, records[0].MigrationCount)
	assert.True(t, applied.Equal(records[0].AppliedAt))
	assert.False(t, records[1].AppliedAt.IsZero())

	tables, err := tracker.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.True(t, tables.Equal(schema.Tables{"user": user}))

	tables, err = tracker.Snapshot(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, tables)

	_, err = tracker.Snapshot(ctx, 9)
	assert.Error(t, err)
}

func TestTrackerRejectsDuplicateVersion(t *testing.T) {
	ctx := context.Background()
	tracker := openTracker(t)

	require.NoError(t, tracker.Record(ctx, Record{DBVersion: 1, Checksum: "aa"}))
	assert.Error(t, tracker.Record(ctx, Record{DBVersion: 1, Checksum: "bb"}))
}

func TestTrackerEnsureTableIsIdempotent(t *testing.T) {
	tracker := openTracker(t)
	assert.NoError(t, tracker.EnsureTable(context.Background()))
}

func TestTrackerUnsupportedDialect(t *testing.T) {
	tracker := NewTracker(nil, "oracle")
	err := tracker.EnsureTable(context.Background())
	assert.ErrorIs(t, err, sqlgen.ErrUnsupportedDialect)
}

func TestTrackerBindsPostgresPlaceholders(t *testing.T) {
	tracker := NewTracker(nil, sqlgen.Postgres)
	assert.Equal(t, "VALUES ($1, $2, $3)", tracker.bind("VALUES (?, ?, ?)"))

	tracker = NewTracker(nil, sqlgen.MySQL)
	assert.Equal(t, "VALUES (?, ?)", tracker.bind("VALUES (?, ?)"))
}

func TestCalculateChecksum(t *testing.T) {
	a := CalculateChecksum([]string{"CREATE TABLE a (x INTEGER)", "DROP TABLE b"})
	b := CalculateChecksum([]string{"CREATE TABLE a (x INTEGER)", "DROP TABLE b"})
	c := CalculateChecksum([]string{"CREATE TABLE a (x INTEGER)"})

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

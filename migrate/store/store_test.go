package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schemamigrate/migrate/diff"
	"github.com/satishbabariya/schemamigrate/migrate/migration"
	"github.com/satishbabariya/schemamigrate/migrate/schema"
)

func userSet(t *testing.T, version int) *migration.Set {
	t.Helper()
	user, err := schema.NewTableInfo("user", "com.example.User", []schema.ColumnInfo{
		{Name: "id", Type: schema.TypeInt64},
		{Name: "name", Type: schema.TypeString, Unique: true},
	}, schema.WithPrimaryKey("id"))
	require.NoError(t, err)
	set, err := diff.Compute(schema.Tables{}, schema.Tables{"user": user}, version-1)
	require.NoError(t, err)
	return set
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	set := userSet(t, 6)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, set))
	assert.Contains(t, buf.String(), `"ordered_migrations"`)
	assert.Contains(t, buf.String(), `"db_version": 6`)

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, set.Migrations(), decoded.Migrations())
	assert.Equal(t, 6, decoded.DBVersion())
	assert.True(t, set.TargetSchema().Equal(decoded.TargetSchema()))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "migrations!"},
		{name: "truncated", input: `{"ordered_migrations": [`},
		{name: "negative version", input: `{"ordered_migrations": [], "target_schema": {}, "db_version": -4}`},
		{name: "missing type", input: `{"ordered_migrations": [{"table_name": "user"}], "target_schema": {}, "db_version": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestReadStreamReturnsInvalidSet(t *testing.T) {
	set := ReadStream(strings.NewReader("{"), nil)
	require.NotNil(t, set)
	assert.False(t, set.IsValid())
	assert.Equal(t, migration.InvalidVersion, set.DBVersion())
}

func TestDirWriteAndLoad(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	clock := time.UnixMilli(1700000000000)
	dir := NewDir(fs, "migrations", WithClock(func() time.Time { return clock }))

	first, err := dir.Write(ctx, userSet(t, 1))
	require.NoError(t, err)
	assert.Equal(t, "1700000000000.migration.json", first)

	// same millisecond: the name is bumped instead of overwriting
	second, err := dir.Write(ctx, userSet(t, 2))
	require.NoError(t, err)
	assert.Equal(t, "1700000000001.migration.json", second)

	sets, err := dir.Load(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, 1, sets[0].DBVersion())
	assert.Equal(t, 2, sets[1].DBVersion())
}

func TestDirListOrdersNumerically(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	for _, name := range []string{"100.migration.json", "9.migration.json", "20.migration.json", "notes.txt", "draft.migration.json"} {
		require.NoError(t, afero.WriteFile(fs, "m/"+name, []byte("{}"), 0644))
	}

	names, err := NewDir(fs, "m").List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"9.migration.json", "20.migration.json", "100.migration.json"}, names)
}

func TestDirLoadSkipsBadFiles(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	dir := NewDir(fs, "m")

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, userSet(t, 1)))
	require.NoError(t, afero.WriteFile(fs, "m/1.migration.json", buf.Bytes(), 0644))
	require.NoError(t, afero.WriteFile(fs, "m/2.migration.json", []byte("corrupt"), 0644))

	sets, err := dir.Load(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, 1, sets[0].DBVersion())
}

func TestDirMissingDirectoryIsEmpty(t *testing.T) {
	sets, err := NewDir(afero.NewMemMapFs(), "nowhere").Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestDirHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDir(afero.NewMemMapFs(), "m").List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// faultyFs fails to open or write the files it names.
type faultyFs struct {
	afero.Fs
	broken map[string]bool
}

func (f faultyFs) Open(name string) (afero.File, error) {
	if f.broken[filepath.Base(name)] {
		return nil, os.ErrPermission
	}
	return f.Fs.Open(name)
}

func (f faultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || flag&os.O_WRONLY == 0 {
		return file, err
	}
	return failingWriter{File: file}, nil
}

type failingWriter struct {
	afero.File
}

func (failingWriter) Write([]byte) (int, error) {
	return 0, os.ErrPermission
}

func TestDirLoadSkipsFilesThatCannotBeOpened(t *testing.T) {
	ctx := context.Background()
	mem := afero.NewMemMapFs()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, userSet(t, 1)))
	require.NoError(t, afero.WriteFile(mem, "m/1.migration.json", buf.Bytes(), 0644))
	require.NoError(t, afero.WriteFile(mem, "m/2.migration.json", buf.Bytes(), 0644))

	fs := faultyFs{Fs: mem, broken: map[string]bool{"2.migration.json": true}}
	sets, err := NewDir(fs, "m").Load(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, 1, sets[0].DBVersion())
}

func TestDirWriteRemovesIncompleteFile(t *testing.T) {
	mem := afero.NewMemMapFs()
	fs := faultyFs{Fs: mem}
	clock := time.UnixMilli(1700000000000)
	dir := NewDir(fs, "m", WithClock(func() time.Time { return clock }))

	_, err := dir.Write(context.Background(), userSet(t, 1))
	require.ErrorIs(t, err, os.ErrPermission)

	exists, err := afero.Exists(mem, "m/1700000000000.migration.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

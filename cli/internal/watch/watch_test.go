package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.schema")
	require.NoError(t, os.WriteFile(file, []byte("table a { }"), 0644))

	var calls atomic.Int32
	w, err := NewWatcher(file, func() error {
		calls.Add(1)
		return nil
	}, WithDebounce(200*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(file, []byte("table a { b string }"), 0644))
	}
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 3*time.Second, 10*time.Millisecond)

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRunInitialCallbackError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.schema")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	w, err := NewWatcher(file, func() error { return assert.AnError })
	require.NoError(t, err)
	err = w.Run(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

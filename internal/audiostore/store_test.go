package audiostore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutWritesUniqueFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	a, err := store.Put([]byte("one"))
	require.NoError(t, err)
	b, err := store.Put([]byte("two"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Path(), b.Path())
	assert.Equal(t, dir, filepath.Dir(a.Path()))
	assert.True(t, strings.HasPrefix(filepath.Base(a.Path()), defaultPrefix))
	assert.Equal(t, ".wav", filepath.Ext(a.Path()))
	assert.Equal(t, int64(3), a.Size())
	assert.Equal(t, 2, store.Live())

	data, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestPutRejectsEmptyAudio(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Put(nil)
	assert.Error(t, err)
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	h, err := store.Put([]byte("clip"))
	require.NoError(t, err)

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())

	_, err = os.Stat(h.Path())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, store.Live())
}

func TestReleaseToleratesMissingFile(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	h, err := store.Put([]byte("clip"))
	require.NoError(t, err)

	require.NoError(t, os.Remove(h.Path()))
	assert.NoError(t, h.Release())
}

func TestReleaseConcurrentCallsDeleteOnce(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	h, err := store.Put([]byte("clip"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Release())
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, store.Live())
}

func TestSweepRemovesOnlyStaleFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now()
	clock := now
	store, err := New(dir, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	old, err := store.Put([]byte("old"))
	require.NoError(t, err)

	clock = now.Add(10 * time.Minute)
	fresh, err := store.Put([]byte("fresh"))
	require.NoError(t, err)

	// leftover from a previous process
	orphan := filepath.Join(dir, defaultPrefix+"orphan.wav")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	past := now.Add(-time.Hour)
	require.NoError(t, os.Chtimes(orphan, past, past))

	// not ours
	foreign := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(foreign, past, past))

	removed, err := store.Sweep(5 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.NoFileExists(t, old.Path())
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, fresh.Path())
	assert.FileExists(t, foreign)
	assert.Equal(t, 1, store.Live())

	// a swept handle still releases cleanly
	assert.NoError(t, old.Release())
}

func TestRunSweeperRemovesStaleClipsUntilCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	start := time.Now()
	var clock atomic.Int64
	clock.Store(start.Add(-time.Hour).UnixNano())
	store, err := New(dir, WithClock(func() time.Time { return time.Unix(0, clock.Load()) }))
	require.NoError(t, err)

	stale, err := store.Put([]byte("stale"))
	require.NoError(t, err)
	clock.Store(start.UnixNano())
	fresh, err := store.Put([]byte("fresh"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.RunSweeper(ctx, 10*time.Millisecond, 5*time.Minute) }()

	assert.Eventually(t, func() bool { return store.Live() == 1 }, time.Second, 5*time.Millisecond)
	assert.NoFileExists(t, stale.Path())
	assert.FileExists(t, fresh.Path())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestWithExtension(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir(), WithExtension("pcm"))
	require.NoError(t, err)
	h, err := store.Put([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, ".pcm", filepath.Ext(h.Path()))
}

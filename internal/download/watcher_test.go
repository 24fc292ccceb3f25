package download

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0o644))
	if !mod.IsZero() {
		require.NoError(t, os.Chtimes(path, mod, mod))
	}
}

func newTestWatcher(dir string) *Watcher {
	return NewWatcher(dir, WithInterval(5*time.Millisecond))
}

func TestSnapshot_OnlyArchives(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.zip"), time.Time{})
	touch(t, filepath.Join(dir, "b.ZIP"), time.Time{})
	touch(t, filepath.Join(dir, "c.xml"), time.Time{})
	touch(t, filepath.Join(dir, "d.zip.crdownload"), time.Time{})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.zip"), 0o755))

	b, err := newTestWatcher(dir).Snapshot()
	require.NoError(t, err)
	assert.Len(t, b, 2)
	assert.True(t, b.Contains(filepath.Join(dir, "a.zip")))
	assert.True(t, b.Contains(filepath.Join(dir, "b.ZIP")))
}

func TestSnapshot_MissingDir(t *testing.T) {
	_, err := newTestWatcher(filepath.Join(t.TempDir(), "nope")).Snapshot()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read dir")
}

func TestAwaitNewArchive_IgnoresBaseline(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.zip")
	touch(t, old, time.Time{})

	w := newTestWatcher(dir)
	baseline, err := w.Snapshot()
	require.NoError(t, err)

	_, err = w.AwaitNewArchive(context.Background(), 40*time.Millisecond, baseline)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTimeout))
}

func TestAwaitNewArchive_ReturnsNewFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.zip"), time.Time{})

	w := newTestWatcher(dir)
	baseline, err := w.Snapshot()
	require.NoError(t, err)

	fresh := filepath.Join(dir, "fresh.zip")
	touch(t, fresh, time.Time{})

	got, err := w.AwaitNewArchive(context.Background(), time.Second, baseline)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestAwaitNewArchive_WaitsForPartialMarker(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(dir)
	baseline, err := w.Snapshot()
	require.NoError(t, err)

	marker := filepath.Join(dir, "second.zip.crdownload")
	touch(t, filepath.Join(dir, "first.zip"), time.Time{})
	touch(t, marker, time.Time{})

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = os.Remove(marker)
	}()

	start := time.Now()
	got, err := w.AwaitNewArchive(context.Background(), 2*time.Second, baseline)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "first.zip"), got)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "watcher returned while a partial marker existed")
}

func TestAwaitNewArchive_PartialNeverClears(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(dir)
	baseline, err := w.Snapshot()
	require.NoError(t, err)

	touch(t, filepath.Join(dir, "done.zip"), time.Time{})
	touch(t, filepath.Join(dir, "other.part"), time.Time{})

	_, err = w.AwaitNewArchive(context.Background(), 40*time.Millisecond, baseline)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTimeout))
}

func TestAwaitNewArchive_NewestWins(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(dir)
	baseline, err := w.Snapshot()
	require.NoError(t, err)

	now := time.Now()
	touch(t, filepath.Join(dir, "older.zip"), now.Add(-time.Minute))
	touch(t, filepath.Join(dir, "newer.zip"), now)

	got, err := w.AwaitNewArchive(context.Background(), time.Second, baseline)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "newer.zip"), got)
}

func TestAwaitNewArchive_Cancelled(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.AwaitNewArchive(ctx, time.Second, Baseline{})
	require.Error(t, err)
	assert.False(t, eris.Is(err, ErrTimeout))
}

func TestSafeRename_FreeTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "download.zip")
	touch(t, src, time.Time{})

	got, err := SafeRename(src, filepath.Join(dir, "INV-1_Acme.zip"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "INV-1_Acme.zip"), got)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestSafeRename_Collisions(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "INV-1_Acme.zip")
	touch(t, dest, time.Time{})
	touch(t, filepath.Join(dir, "INV-1_Acme_1.zip"), time.Time{})

	src := filepath.Join(dir, "download.zip")
	touch(t, src, time.Time{})

	got, err := SafeRename(src, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "INV-1_Acme_2.zip"), got)
}

func TestSafeRename_FillsGap(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "X_Y.zip")
	touch(t, dest, time.Time{})
	touch(t, filepath.Join(dir, "X_Y_2.zip"), time.Time{})

	src := filepath.Join(dir, "download.zip")
	touch(t, src, time.Time{})

	got, err := SafeRename(src, dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "X_Y_1.zip"), got)
}

func TestSafeRename_SamePath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "same.zip")
	touch(t, p, time.Time{})

	got, err := SafeRename(p, p)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestSafeRename_MissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := SafeRename(filepath.Join(dir, "ghost.zip"), filepath.Join(dir, "dest.zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rename")
}

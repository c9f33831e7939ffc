package toolcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundlectl/internal/logx"
)

func makeExtracted(t *testing.T, parent, marker string) string {
	t.Helper()
	dir, err := os.MkdirTemp(parent, "extract-")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "codeql"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codeql", "codeql"), []byte(marker), 0o755))
	return dir
}

func TestStoreAndFindDistinctVersions(t *testing.T) {
	root := t.TempDir()
	tmp := t.TempDir()
	cache := New(root, logx.Nop())
	ctx := context.Background()

	first, err := cache.Store(ctx, makeExtracted(t, tmp, "one"), "CodeQL", "2.19.0")
	require.NoError(t, err)
	second, err := cache.Store(ctx, makeExtracted(t, tmp, "two"), "CodeQL", "0.0.0-20200601")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	got, ok := cache.Find("CodeQL", "2.19.0")
	require.True(t, ok)
	assert.Equal(t, first, got)
	data, err := os.ReadFile(filepath.Join(got, "codeql", "codeql"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	got, ok = cache.Find("CodeQL", "0.0.0-20200601")
	require.True(t, ok)
	assert.Equal(t, second, got)

	_, ok = cache.Find("CodeQL", "1.0.0")
	assert.False(t, ok)

	entries, err := cache.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.StoredAt.IsZero(), "manifest timestamp for %s", e.Semver)
	}
}

func TestFindIgnoresEntryWithoutMarker(t *testing.T) {
	root := t.TempDir()
	cache := New(root, logx.Nop())

	dir := cache.Dir("CodeQL", "2.19.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, ok := cache.Find("CodeQL", "2.19.0")
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(dir+markerSuffix, nil, 0o644))
	got, ok := cache.Find("CodeQL", "2.19.0")
	assert.True(t, ok)
	assert.Equal(t, dir, got)
}

func TestStoreKeepsExistingCompleteEntry(t *testing.T) {
	root := t.TempDir()
	tmp := t.TempDir()
	cache := New(root, logx.Nop())
	ctx := context.Background()

	first, err := cache.Store(ctx, makeExtracted(t, tmp, "original"), "CodeQL", "2.19.0")
	require.NoError(t, err)

	duplicate := makeExtracted(t, tmp, "duplicate")
	second, err := cache.Store(ctx, duplicate, "CodeQL", "2.19.0")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	data, err := os.ReadFile(filepath.Join(second, "codeql", "codeql"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	_, err = os.Stat(duplicate)
	assert.True(t, os.IsNotExist(err), "duplicate extraction should be discarded")
}

func TestStoreRejectsMissingDirectory(t *testing.T) {
	cache := New(t.TempDir(), logx.Nop())
	_, err := cache.Store(context.Background(), filepath.Join(t.TempDir(), "missing"), "CodeQL", "2.19.0")
	assert.Error(t, err)
}

func TestStoreHonoursContextWhileLocked(t *testing.T) {
	root := t.TempDir()
	cache := New(root, logx.Nop())

	unlock, err := acquireLock(context.Background(), root, "CodeQL")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	_, err = cache.Store(ctx, makeExtracted(t, t.TempDir(), "x"), "CodeQL", "2.19.0")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCopyTreeFallback(t *testing.T) {
	src := makeExtracted(t, t.TempDir(), "payload")
	require.NoError(t, os.Symlink("codeql", filepath.Join(src, "link")))
	dst := filepath.Join(t.TempDir(), "copy")

	require.NoError(t, copyTree(src, dst))

	data, err := os.ReadFile(filepath.Join(dst, "codeql", "codeql"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	target, err := os.Readlink(filepath.Join(dst, "link"))
	require.NoError(t, err)
	assert.Equal(t, "codeql", target)
}

func TestAcquireLockBreaksStaleLock(t *testing.T) {
	root := t.TempDir()
	lock := filepath.Join(root, "CodeQL.lock")
	require.NoError(t, os.WriteFile(lock, []byte("1"), 0o600))
	old := time.Now().Add(-2 * staleLockAge)
	require.NoError(t, os.Chtimes(lock, old, old))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock, err := acquireLock(ctx, root, "CodeQL")
	require.NoError(t, err)
	unlock()
	assert.NoFileExists(t, lock)
}

func TestManifestRecordsStoredEntries(t *testing.T) {
	root := t.TempDir()
	cache := New(root, logx.Nop())
	_, err := cache.Store(context.Background(), makeExtracted(t, t.TempDir(), "x"), "CodeQL", "2.19.0")
	require.NoError(t, err)

	m, err := cache.loadManifest()
	require.NoError(t, err)
	assert.Equal(t, manifestVersion, m.Version)
	require.Len(t, m.Entries, 1)
	for key, e := range m.Entries {
		assert.Equal(t, manifestKey(e), key)
		assert.Equal(t, "2.19.0", e.Semver)
	}
}

package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestNewRunDirIsUnique(t *testing.T) {
	base := t.TempDir()
	a, err := NewRunDir(base)
	require.NoError(t, err)
	b, err := NewRunDir(base)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.DirExists(t, a)
}

func TestCleanupImagesIgnoresMissingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.jpg")
	writeFile(t, existing)

	deleted := CleanupImages([]string{existing, filepath.Join(dir, "missing.png")})
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, existing)
}

func TestSweepOrphansRemovesOnlyStaleImages(t *testing.T) {
	base := t.TempDir()
	runDir, err := NewRunDir(base)
	require.NoError(t, err)

	stale := filepath.Join(runDir, "old.jpg")
	writeFile(t, stale)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(base, "fresh.png")
	writeFile(t, fresh)

	notImage := filepath.Join(base, "notes.txt")
	writeFile(t, notImage)
	require.NoError(t, os.Chtimes(notImage, old, old))

	deleted, err := SweepOrphans(base, OrphanMaxAge)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, stale)
	assert.NoDirExists(t, runDir, "empty run dir is removed")
	assert.FileExists(t, fresh)
	assert.FileExists(t, notImage)
}

func TestSweepOrphansMissingBase(t *testing.T) {
	deleted, err := SweepOrphans(filepath.Join(t.TempDir(), "nope"), OrphanMaxAge)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chronosync/internal/checkpoint"
	"chronosync/internal/model"
	"chronosync/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localEndpoint(path string) model.Endpoint {
	return model.Endpoint{Kind: model.EndpointLocal, Path: path}
}

func openStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestRunLocalToLocal(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()
	writeFile(t, srcRoot, "a.txt", "alpha")
	writeFile(t, srcRoot, "sub/b.txt", "beta")
	require.NoError(t, os.Mkdir(filepath.Join(srcRoot, "logs"), 0755))
	writeFile(t, tgtRoot, "stale.txt", "gone soon")

	task := model.SyncTask{
		Source:  localEndpoint(srcRoot),
		Target:  localEndpoint(tgtRoot),
		Mode:    model.ModeMirror,
		Compare: model.CompareSizeTime,
		Workers: 2,
	}

	result, err := New("task", task, openStore(t)).Run(context.Background())
	require.NoError(t, err)

	// Two files plus the two created directories.
	assert.Equal(t, 4, result.Copied)
	assert.Equal(t, 0, result.Failed)
	assert.GreaterOrEqual(t, result.Deleted, 1)

	data, err := os.ReadFile(filepath.Join(tgtRoot, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))
	assert.DirExists(t, filepath.Join(tgtRoot, "logs"))
	assert.NoFileExists(t, filepath.Join(tgtRoot, "stale.txt"))
}

// Running the same mirror twice converges: the second run moves nothing.
func TestRunConverges(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()
	writeFile(t, srcRoot, "a.txt", "alpha")
	writeFile(t, srcRoot, "b.txt", "beta")

	task := model.SyncTask{
		Source:  localEndpoint(srcRoot),
		Target:  localEndpoint(tgtRoot),
		Mode:    model.ModeMirror,
		Compare: model.CompareSizeTime,
		Workers: 1,
	}
	store := openStore(t)

	first, err := New("task", task, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Copied)

	second, err := New("task", task, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Copied+second.Updated+second.Deleted)
}

// Checksum compare catches content changes that size and mtime miss.
func TestRunChecksumCompare(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()
	writeFile(t, srcRoot, "f.txt", "AAAA")
	writeFile(t, tgtRoot, "f.txt", "BBBB")

	// Equalize mtimes so only the content differs.
	srcMod := modTime(t, filepath.Join(srcRoot, "f.txt"))
	require.NoError(t, os.Chtimes(filepath.Join(tgtRoot, "f.txt"), srcMod, srcMod))

	task := model.SyncTask{
		Source:  localEndpoint(srcRoot),
		Target:  localEndpoint(tgtRoot),
		Mode:    model.ModeIncremental,
		Compare: model.CompareChecksum,
		Workers: 1,
	}

	result, err := New("task", task, openStore(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	data, err := os.ReadFile(filepath.Join(tgtRoot, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(data))
}

func TestRunConnectionFailure(t *testing.T) {
	srcRoot := t.TempDir()

	// A path below a regular file can never become a directory.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	task := model.SyncTask{
		Source:  localEndpoint(srcRoot),
		Target:  localEndpoint(filepath.Join(blocker, "sub")),
		Mode:    model.ModeIncremental,
		Compare: model.CompareSizeTime,
		Workers: 1,
	}

	_, err := New("task", task, openStore(t)).Run(context.Background())
	require.Error(t, err)

	var connErr *transport.ConnError
	assert.ErrorAs(t, err, &connErr)
}

func modTime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}

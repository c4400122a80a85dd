package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"chronosync/internal/checkpoint"
	"chronosync/internal/model"
	"chronosync/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localClient(t *testing.T, root string) transport.Client {
	t.Helper()
	c, err := transport.New(context.Background(), model.Endpoint{Kind: model.EndpointLocal, Path: root})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
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

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestApplyPlan(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()
	writeFile(t, srcRoot, "new.txt", "fresh")
	writeFile(t, srcRoot, "changed.txt", "updated content")
	writeFile(t, tgtRoot, "changed.txt", "old")
	writeFile(t, tgtRoot, "stale.txt", "remove me")

	e := NewExecutor(localClient(t, srcRoot), localClient(t, tgtRoot), openStore(t), "task", 2)

	plan := model.DiffPlan{
		{Type: model.OpCopy, Path: "new.txt", Size: 5},
		{Type: model.OpUpdate, Path: "changed.txt", Size: 15},
		{Type: model.OpDelete, Path: "stale.txt"},
		{Type: model.OpSkip, Path: "same.txt", Reason: "unchanged"},
	}

	result := e.Apply(context.Background(), plan)

	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int64(20), result.Bytes)
	assert.NotEmpty(t, result.Summary)

	assert.Equal(t, "fresh", readFile(t, tgtRoot, "new.txt"))
	assert.Equal(t, "updated content", readFile(t, tgtRoot, "changed.txt"))
	assert.NoFileExists(t, filepath.Join(tgtRoot, "stale.txt"))
}

// One broken file must not stop the rest of the plan.
func TestApplyPartialFailure(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()

	plan := make(model.DiffPlan, 0, 10)
	for i := 0; i < 9; i++ {
		name := fmt.Sprintf("f%d.txt", i)
		writeFile(t, srcRoot, name, "data")
		plan = append(plan, model.FileOperation{Type: model.OpCopy, Path: name, Size: 4})
	}
	// Never written on the source side.
	plan = append(plan, model.FileOperation{Type: model.OpCopy, Path: "missing.txt", Size: 4})

	e := NewExecutor(localClient(t, srcRoot), localClient(t, tgtRoot), openStore(t), "task", 3)
	result := e.Apply(context.Background(), plan)

	assert.Equal(t, 9, result.Copied)
	assert.Equal(t, 1, result.Failed)

	var failed []model.FileResult
	for _, fr := range result.Files {
		if fr.State == model.FileFailed {
			failed = append(failed, fr)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, "missing.txt", failed[0].Path)
	assert.NotEmpty(t, failed[0].Error)
}

// A valid checkpoint resumes mid-file: only the remaining bytes move and
// the final content matches the source.
func TestApplyResume(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()
	content := "0123456789"
	writeFile(t, srcRoot, "big.bin", content)
	writeFile(t, tgtRoot, "big.bin", content[:4])

	store := openStore(t)
	require.NoError(t, store.Set(model.Checkpoint{
		TaskID:           "task",
		Path:             "big.bin",
		BytesTransferred: 4,
		TotalBytes:       10,
	}))

	e := NewExecutor(localClient(t, srcRoot), localClient(t, tgtRoot), store, "task", 1)
	e.chunkSize = 3

	plan := model.DiffPlan{{Type: model.OpUpdate, Path: "big.bin", Size: 10}}
	result := e.Apply(context.Background(), plan)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, int64(6), result.Bytes)
	assert.Equal(t, content, readFile(t, tgtRoot, "big.bin"))

	// The checkpoint is cleared after a completed transfer.
	_, err := store.Get("task", "big.bin")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

// A checkpoint that disagrees with the partial file on disk restarts the
// transfer from zero instead of producing a corrupt file.
func TestApplyResumeMismatchRestarts(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()
	content := "0123456789"
	writeFile(t, srcRoot, "big.bin", content)
	writeFile(t, tgtRoot, "big.bin", "012")

	store := openStore(t)
	require.NoError(t, store.Set(model.Checkpoint{
		TaskID:           "task",
		Path:             "big.bin",
		BytesTransferred: 4,
		TotalBytes:       10,
	}))

	e := NewExecutor(localClient(t, srcRoot), localClient(t, tgtRoot), store, "task", 1)

	plan := model.DiffPlan{{Type: model.OpUpdate, Path: "big.bin", Size: 10}}
	result := e.Apply(context.Background(), plan)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, int64(10), result.Bytes)
	assert.Equal(t, content, readFile(t, tgtRoot, "big.bin"))
}

func TestApplyCancelledContext(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()

	plan := make(model.DiffPlan, 0, 100)
	for i := 0; i < 100; i++ {
		name := fmt.Sprintf("f%d.txt", i)
		writeFile(t, srcRoot, name, "data")
		plan = append(plan, model.FileOperation{Type: model.OpCopy, Path: name, Size: 4})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExecutor(localClient(t, srcRoot), localClient(t, tgtRoot), openStore(t), "task", 1)
	result := e.Apply(ctx, plan)

	// Cancellation stops dispatch early; the bulk of the plan never runs.
	assert.Less(t, result.Copied+result.Failed, len(plan))
}

// cancelAfterClient cancels the given context once a set number of bytes
// has been read from any opened stream.
type cancelAfterClient struct {
	transport.Client
	cancel context.CancelFunc
	after  int64
}

func (c *cancelAfterClient) OpenRead(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	rc, err := c.Client.OpenRead(ctx, path, offset)
	if err != nil {
		return nil, err
	}
	return &cancelAfterReader{rc: rc, cancel: c.cancel, remaining: c.after}, nil
}

type cancelAfterReader struct {
	rc        io.ReadCloser
	cancel    context.CancelFunc
	remaining int64
}

func (r *cancelAfterReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.remaining -= int64(n)
	if r.remaining <= 0 {
		r.cancel()
	}
	return n, err
}

func (r *cancelAfterReader) Close() error { return r.rc.Close() }

// Cancelling mid-file stops the copy at a chunk boundary and leaves a
// checkpoint matching the bytes already on the target, so the next run
// resumes instead of restarting.
func TestApplyCancelMidFileKeepsCheckpoint(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()
	content := "0123456789AB"
	writeFile(t, srcRoot, "big.bin", content)

	ctx, cancel := context.WithCancel(context.Background())
	src := &cancelAfterClient{Client: localClient(t, srcRoot), cancel: cancel, after: 4}

	store := openStore(t)
	e := NewExecutor(src, localClient(t, tgtRoot), store, "task", 1)
	e.chunkSize = 4

	plan := model.DiffPlan{{Type: model.OpCopy, Path: "big.bin", Size: 12}}
	result := e.Apply(ctx, plan)

	assert.Equal(t, 1, result.Failed)

	cp, err := store.Get("task", "big.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(4), cp.BytesTransferred)
	assert.Equal(t, int64(12), cp.TotalBytes)
	assert.Equal(t, content[:4], readFile(t, tgtRoot, "big.bin"))
}

func TestApplyMkdir(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()

	e := NewExecutor(localClient(t, srcRoot), localClient(t, tgtRoot), openStore(t), "task", 1)
	plan := model.DiffPlan{{Type: model.OpMkdir, Path: "logs/archive", Reason: "missing on target"}}
	result := e.Apply(context.Background(), plan)

	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, 0, result.Failed)
	assert.DirExists(t, filepath.Join(tgtRoot, "logs", "archive"))
}

func TestApplyWithoutStore(t *testing.T) {
	srcRoot, tgtRoot := t.TempDir(), t.TempDir()
	writeFile(t, srcRoot, "f.txt", "data")

	e := NewExecutor(localClient(t, srcRoot), localClient(t, tgtRoot), nil, "task", 1)
	plan := model.DiffPlan{{Type: model.OpCopy, Path: "f.txt", Size: 4}}
	result := e.Apply(context.Background(), plan)

	assert.Equal(t, 1, result.Copied)
	assert.Equal(t, "data", readFile(t, tgtRoot, "f.txt"))
}

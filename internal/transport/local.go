package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chronosync/internal/model"
)

type localClient struct {
	root string
}

func newLocalClient(ep model.Endpoint) (*localClient, error) {
	root, err := filepath.Abs(ep.Path)
	if err != nil {
		return nil, &ConnError{Endpoint: ep.String(), Err: err}
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &ConnError{Endpoint: ep.String(), Err: err}
	}

	return &localClient{root: root}, nil
}

func (c *localClient) fullPath(path string) string {
	return filepath.Join(c.root, filepath.FromSlash(path))
}

func (c *localClient) List(ctx context.Context) ([]model.FileEntry, error) {
	var entries []model.FileEntry

	err := filepath.WalkDir(c.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == c.root {
			return nil
		}

		rel, err := filepath.Rel(c.root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		entry := model.FileEntry{
			Path:    filepath.ToSlash(rel),
			ModTime: info.ModTime(),
			Kind:    entryKind(info.Mode()),
		}
		if entry.Kind == model.KindFile {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)

		// Never descend into symlinked directories.
		if d.Type()&os.ModeSymlink != 0 && d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", c.root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (c *localClient) Stat(_ context.Context, path string) (model.FileEntry, error) {
	info, err := os.Lstat(c.fullPath(path))
	if err != nil {
		return model.FileEntry{}, err
	}

	entry := model.FileEntry{
		Path:    path,
		ModTime: info.ModTime(),
		Kind:    entryKind(info.Mode()),
	}
	if entry.Kind == model.KindFile {
		entry.Size = info.Size()
	}
	return entry, nil
}

func (c *localClient) OpenRead(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(c.fullPath(path))
	if err != nil {
		return nil, err
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to seek %s: %w", path, err)
		}
	}
	return f, nil
}

func (c *localClient) OpenWrite(_ context.Context, path string, offset int64) (io.WriteCloser, error) {
	full := c.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	// The partial file must end exactly at offset before appending.
	if err := f.Truncate(offset); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to truncate %s: %w", path, err)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to seek %s: %w", path, err)
	}
	return f, nil
}

func (c *localClient) Delete(_ context.Context, path string) error {
	full := c.fullPath(path)
	info, err := os.Lstat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.IsDir() {
		return os.RemoveAll(full)
	}
	return os.Remove(full)
}

func (c *localClient) Mkdir(_ context.Context, path string) error {
	return os.MkdirAll(c.fullPath(path), 0755)
}

func (c *localClient) Close() error {
	return nil
}

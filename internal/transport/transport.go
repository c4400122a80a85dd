// Package transport provides uniform file access over local disk, SFTP and
// FTP endpoints. Connection and IO errors are retried with a small bounded
// backoff; permission and not-found errors propagate immediately.
package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"chronosync/internal/model"
	"chronosync/internal/retry"
)

// Client is the capability set every endpoint kind implements. Paths are
// slash-separated and relative to the endpoint root.
type Client interface {
	// List returns a recursive snapshot of the endpoint, ordered by path.
	List(ctx context.Context) ([]model.FileEntry, error)
	Stat(ctx context.Context, path string) (model.FileEntry, error)
	// OpenRead opens a read stream positioned at offset.
	OpenRead(ctx context.Context, path string, offset int64) (io.ReadCloser, error)
	// OpenWrite opens a write stream positioned at offset, creating parent
	// directories as needed. An offset of zero truncates the file.
	OpenWrite(ctx context.Context, path string, offset int64) (io.WriteCloser, error)
	Delete(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error
	Close() error
}

// ConnError marks an endpoint as unreachable or rejecting authentication.
// A sync job aborts before transfer when either side reports it.
type ConnError struct {
	Endpoint string
	Err      error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// New dials the endpoint and returns a client for its kind.
func New(ctx context.Context, ep model.Endpoint) (Client, error) {
	switch ep.Kind {
	case model.EndpointLocal:
		return newLocalClient(ep)
	case model.EndpointSFTP:
		return newSFTPClient(ctx, ep)
	case model.EndpointFTP:
		return newFTPClient(ctx, ep)
	default:
		return nil, fmt.Errorf("unsupported endpoint kind: %s", ep.Kind)
	}
}

const (
	opAttempts = 3
	opBackoff  = 500 * time.Millisecond
)

// classify marks non-retryable failures as permanent for the retry
// combinator. Everything else is treated as a transient transport fault.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return retry.Permanent(err)
	}
	return err
}

// Checksum streams the file through SHA-256.
func Checksum(ctx context.Context, c Client, path string) (string, error) {
	r, err := c.OpenRead(ctx, path, 0)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = r.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func entryKind(mode fs.FileMode) model.FileKind {
	switch {
	case mode.IsRegular():
		return model.KindFile
	case mode.IsDir():
		return model.KindDir
	default:
		return model.KindOther
	}
}

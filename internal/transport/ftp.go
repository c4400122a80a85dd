package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"chronosync/internal/logger"
	"chronosync/internal/model"
	"chronosync/internal/retry"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"
)

// ftpClient serializes all operations on one control connection. Streams
// returned by OpenRead/OpenWrite hold the lock until closed, so concurrent
// workers against an FTP endpoint effectively take turns.
type ftpClient struct {
	ep   model.Endpoint
	root string

	mu   sync.Mutex
	conn *ftp.ServerConn
}

func newFTPClient(ctx context.Context, ep model.Endpoint) (*ftpClient, error) {
	c := &ftpClient{ep: ep, root: ep.Path}
	if c.root == "" {
		c.root = "/"
	}

	if err := c.dial(ctx); err != nil {
		return nil, &ConnError{Endpoint: ep.String(), Err: err}
	}
	return c, nil
}

func (c *ftpClient) dialOptions(ctx context.Context) []ftp.DialOption {
	timeout := c.ep.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	}
	// The client only speaks passive transfers. passive_mode pins classic
	// PASV for servers whose EPSV replies do not survive NAT.
	if c.ep.PassiveMode {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}
	return opts
}

func (c *ftpClient) dial(ctx context.Context) error {
	conn, err := ftp.Dial(c.ep.Addr(), c.dialOptions(ctx)...)
	if err != nil {
		return fmt.Errorf("ftp dial failed: %w", err)
	}

	if err := conn.Login(c.ep.Username, c.ep.Password); err != nil {
		_ = conn.Quit()
		return fmt.Errorf("ftp login failed: %w", err)
	}

	c.conn = conn
	return nil
}

func (c *ftpClient) drop() {
	if c.conn != nil {
		_ = c.conn.Quit()
		c.conn = nil
	}
}

// withConn runs fn while holding the connection lock, redialing a dropped
// session and retrying transient failures.
func (c *ftpClient) withConn(ctx context.Context, fn func(*ftp.ServerConn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.withConnLocked(ctx, fn)
}

func (c *ftpClient) withConnLocked(ctx context.Context, fn func(*ftp.ServerConn) error) error {
	return retry.Do(ctx, opAttempts, retry.Fixed(opBackoff), func() error {
		if c.conn == nil {
			logger.Log.Warn("ftp session lost, reconnecting",
				zap.String("endpoint", c.ep.Addr()))
			if err := c.dial(ctx); err != nil {
				return &ConnError{Endpoint: c.ep.String(), Err: err}
			}
		}

		if err := fn(c.conn); err != nil {
			err = classifyFTP(err)
			if !retry.IsPermanent(err) {
				c.drop()
			}
			return err
		}
		return nil
	})
}

func classifyFTP(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case ftp.StatusFileUnavailable, ftp.StatusNotLoggedIn:
			return retry.Permanent(err)
		}
	}
	return classify(err)
}

func (c *ftpClient) fullPath(rel string) string {
	return path.Join(c.root, rel)
}

func (c *ftpClient) List(ctx context.Context) ([]model.FileEntry, error) {
	var entries []model.FileEntry

	err := c.withConn(ctx, func(conn *ftp.ServerConn) error {
		entries = entries[:0]
		return c.listDir(ctx, conn, "", &entries)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.ep.Addr(), err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (c *ftpClient) listDir(ctx context.Context, conn *ftp.ServerConn, rel string, out *[]model.FileEntry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	items, err := conn.List(c.fullPath(rel))
	if err != nil {
		return err
	}

	for _, item := range items {
		if item.Name == "." || item.Name == ".." {
			continue
		}

		childRel := item.Name
		if rel != "" {
			childRel = rel + "/" + item.Name
		}

		entry := model.FileEntry{
			Path:    childRel,
			ModTime: item.Time,
		}
		switch item.Type {
		case ftp.EntryTypeFolder:
			entry.Kind = model.KindDir
		case ftp.EntryTypeFile:
			entry.Kind = model.KindFile
			entry.Size = int64(item.Size)
		default:
			entry.Kind = model.KindOther
		}
		*out = append(*out, entry)

		if entry.Kind == model.KindDir {
			if err := c.listDir(ctx, conn, childRel, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *ftpClient) Stat(ctx context.Context, rel string) (model.FileEntry, error) {
	var entry model.FileEntry

	err := c.withConn(ctx, func(conn *ftp.ServerConn) error {
		size, err := conn.FileSize(c.fullPath(rel))
		if err != nil {
			return err
		}
		entry = model.FileEntry{
			Path: rel,
			Size: size,
			Kind: model.KindFile,
		}
		return nil
	})
	return entry, err
}

// lockedStream keeps the connection lock held until the data transfer
// completes; the control connection cannot run other commands meanwhile.
type lockedReadCloser struct {
	rc     io.ReadCloser
	unlock func()
	once   sync.Once
}

func (l *lockedReadCloser) Read(p []byte) (int, error) { return l.rc.Read(p) }

func (l *lockedReadCloser) Close() error {
	err := l.rc.Close()
	l.once.Do(l.unlock)
	return err
}

func (c *ftpClient) OpenRead(ctx context.Context, rel string, offset int64) (io.ReadCloser, error) {
	c.mu.Lock()

	var rc io.ReadCloser
	err := c.withConnLocked(ctx, func(conn *ftp.ServerConn) error {
		resp, err := conn.RetrFrom(c.fullPath(rel), uint64(offset))
		if err != nil {
			return err
		}
		rc = resp
		return nil
	})
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	return &lockedReadCloser{rc: rc, unlock: c.mu.Unlock}, nil
}

// ftpWriter feeds a pipe into STOR; Close flushes and reports the transfer
// error before releasing the connection.
type ftpWriter struct {
	pw     *io.PipeWriter
	done   chan error
	unlock func()
	once   sync.Once
}

func (w *ftpWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *ftpWriter) Close() error {
	_ = w.pw.Close()
	err := <-w.done
	w.once.Do(w.unlock)
	return err
}

func (c *ftpClient) OpenWrite(ctx context.Context, rel string, offset int64) (io.WriteCloser, error) {
	c.mu.Lock()

	err := c.withConnLocked(ctx, func(conn *ftp.ServerConn) error {
		return c.ensureDir(conn, path.Dir(rel))
	})
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	if c.conn == nil {
		c.mu.Unlock()
		return nil, &ConnError{Endpoint: c.ep.String(), Err: errors.New("no ftp session")}
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	conn := c.conn

	go func() {
		err := conn.StorFrom(c.fullPath(rel), pr, uint64(offset))
		if err != nil {
			c.drop()
		}
		_ = pr.CloseWithError(err)
		done <- err
	}()

	return &ftpWriter{pw: pw, done: done, unlock: c.mu.Unlock}, nil
}

func (c *ftpClient) ensureDir(conn *ftp.ServerConn, rel string) error {
	if rel == "" || rel == "." || rel == "/" {
		return nil
	}

	current := c.root
	for _, part := range strings.Split(rel, "/") {
		if part == "" {
			continue
		}
		current = path.Join(current, part)
		// MakeDir fails when the directory already exists; that is fine.
		_ = conn.MakeDir(current)
	}
	return nil
}

func (c *ftpClient) Delete(ctx context.Context, rel string) error {
	return c.withConn(ctx, func(conn *ftp.ServerConn) error {
		full := c.fullPath(rel)
		if err := conn.Delete(full); err == nil {
			return nil
		}
		// Fall back to a recursive directory remove.
		return conn.RemoveDirRecur(full)
	})
}

func (c *ftpClient) Mkdir(ctx context.Context, rel string) error {
	return c.withConn(ctx, func(conn *ftp.ServerConn) error {
		return c.ensureDir(conn, rel)
	})
}

func (c *ftpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
	return nil
}

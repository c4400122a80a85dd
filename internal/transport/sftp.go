package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"chronosync/internal/logger"
	"chronosync/internal/model"
	"chronosync/internal/retry"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

type sftpClient struct {
	ep   model.Endpoint
	root string

	mu   sync.Mutex
	ssh  *ssh.Client
	sftp *sftp.Client
}

func newSFTPClient(ctx context.Context, ep model.Endpoint) (*sftpClient, error) {
	c := &sftpClient{ep: ep, root: ep.Path}
	if c.root == "" {
		c.root = "/"
	}

	if err := c.dial(ctx); err != nil {
		return nil, &ConnError{Endpoint: ep.String(), Err: err}
	}
	return c, nil
}

func (c *sftpClient) dial(_ context.Context) error {
	auth := []ssh.AuthMethod{}
	if c.ep.PrivateKeyPath != "" {
		keyData, err := os.ReadFile(c.ep.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.ep.Password != "" {
		auth = append(auth, ssh.Password(c.ep.Password))
	}

	sshConn, err := ssh.Dial("tcp", c.ep.Addr(), &ssh.ClientConfig{
		User:            c.ep.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.ep.Timeout,
	})
	if err != nil {
		return fmt.Errorf("ssh dial failed: %w", err)
	}

	sftpConn, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return fmt.Errorf("sftp session failed: %w", err)
	}

	c.mu.Lock()
	c.ssh = sshConn
	c.sftp = sftpConn
	c.mu.Unlock()
	return nil
}

// session returns the live sftp session, redialing a dropped one first.
func (c *sftpClient) session(ctx context.Context) (*sftp.Client, error) {
	c.mu.Lock()
	sess := c.sftp
	c.mu.Unlock()

	if sess != nil {
		return sess, nil
	}

	logger.Log.Warn("sftp session lost, reconnecting",
		zap.String("endpoint", c.ep.Addr()))

	if err := c.dial(ctx); err != nil {
		return nil, &ConnError{Endpoint: c.ep.String(), Err: err}
	}

	c.mu.Lock()
	sess = c.sftp
	c.mu.Unlock()
	return sess, nil
}

// drop discards the session so the next attempt reconnects.
func (c *sftpClient) drop() {
	c.mu.Lock()
	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
	if c.ssh != nil {
		_ = c.ssh.Close()
		c.ssh = nil
	}
	c.mu.Unlock()
}

func (c *sftpClient) withRetry(ctx context.Context, fn func(*sftp.Client) error) error {
	return retry.Do(ctx, opAttempts, retry.Fixed(opBackoff), func() error {
		sess, err := c.session(ctx)
		if err != nil {
			return err
		}

		if err := fn(sess); err != nil {
			err = classify(err)
			if !retry.IsPermanent(err) {
				c.drop()
			}
			return err
		}
		return nil
	})
}

func (c *sftpClient) fullPath(rel string) string {
	return path.Join(c.root, rel)
}

func (c *sftpClient) List(ctx context.Context) ([]model.FileEntry, error) {
	var entries []model.FileEntry

	err := c.withRetry(ctx, func(sess *sftp.Client) error {
		entries = entries[:0]

		walker := sess.Walk(c.root)
		for walker.Step() {
			if err := walker.Err(); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if walker.Path() == c.root {
				continue
			}

			rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), c.root), "/")
			info := walker.Stat()

			entry := model.FileEntry{
				Path:    rel,
				ModTime: info.ModTime(),
				Kind:    entryKind(info.Mode()),
			}
			if entry.Kind == model.KindFile {
				entry.Size = info.Size()
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.ep.Addr(), err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (c *sftpClient) Stat(ctx context.Context, rel string) (model.FileEntry, error) {
	var entry model.FileEntry

	err := c.withRetry(ctx, func(sess *sftp.Client) error {
		info, err := sess.Lstat(c.fullPath(rel))
		if err != nil {
			return err
		}

		entry = model.FileEntry{
			Path:    rel,
			ModTime: info.ModTime(),
			Kind:    entryKind(info.Mode()),
		}
		if entry.Kind == model.KindFile {
			entry.Size = info.Size()
		}
		return nil
	})
	return entry, err
}

func (c *sftpClient) OpenRead(ctx context.Context, rel string, offset int64) (io.ReadCloser, error) {
	var rc io.ReadCloser

	err := c.withRetry(ctx, func(sess *sftp.Client) error {
		f, err := sess.Open(c.fullPath(rel))
		if err != nil {
			return err
		}
		if offset > 0 {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				_ = f.Close()
				return err
			}
		}
		rc = f
		return nil
	})
	return rc, err
}

func (c *sftpClient) OpenWrite(ctx context.Context, rel string, offset int64) (io.WriteCloser, error) {
	var wc io.WriteCloser

	err := c.withRetry(ctx, func(sess *sftp.Client) error {
		full := c.fullPath(rel)
		if dir := path.Dir(full); dir != "" && dir != "/" {
			if err := sess.MkdirAll(dir); err != nil {
				return err
			}
		}

		f, err := sess.OpenFile(full, os.O_WRONLY|os.O_CREATE)
		if err != nil {
			return err
		}
		if err := f.Truncate(offset); err != nil {
			_ = f.Close()
			return err
		}
		if offset > 0 {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				_ = f.Close()
				return err
			}
		}
		wc = f
		return nil
	})
	return wc, err
}

func (c *sftpClient) Delete(ctx context.Context, rel string) error {
	return c.withRetry(ctx, func(sess *sftp.Client) error {
		full := c.fullPath(rel)
		info, err := sess.Lstat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if info.IsDir() {
			return sess.RemoveAll(full)
		}
		return sess.Remove(full)
	})
}

func (c *sftpClient) Mkdir(ctx context.Context, rel string) error {
	return c.withRetry(ctx, func(sess *sftp.Client) error {
		return sess.MkdirAll(c.fullPath(rel))
	})
}

func (c *sftpClient) Close() error {
	c.drop()
	return nil
}

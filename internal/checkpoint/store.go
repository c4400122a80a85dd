// Package checkpoint persists per-file transfer progress in a bbolt
// database so interrupted transfers resume after a restart.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chronosync/internal/model"

	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when no checkpoint exists for a key.
var ErrNotFound = errors.New("checkpoint not found")

var checkpointsBucket = []byte("checkpoints")

type Store struct {
	db *bbolt.DB
}

// Open creates or opens the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create checkpoints bucket: %w", err)
	}

	return &Store{db: db}, nil
}

func key(taskID, path string) []byte {
	return []byte(taskID + "\x00" + path)
}

func (s *Store) Get(taskID, path string) (model.Checkpoint, error) {
	var cp model.Checkpoint

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(checkpointsBucket).Get(key(taskID, path))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &cp); err != nil {
			return fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Checkpoint{}, err
	}

	return cp, nil
}

func (s *Store) Set(cp model.Checkpoint) error {
	if cp.BytesTransferred > cp.TotalBytes {
		return fmt.Errorf("checkpoint for %s exceeds total size: %d > %d",
			cp.Path, cp.BytesTransferred, cp.TotalBytes)
	}
	cp.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}
		return tx.Bucket(checkpointsBucket).Put(key(cp.TaskID, cp.Path), data)
	})
}

func (s *Store) Clear(taskID, path string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointsBucket).Delete(key(taskID, path))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Package transfer applies a diff plan through transport clients with a
// bounded worker pool and chunked, checkpointed, resumable copies.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"chronosync/internal/checkpoint"
	"chronosync/internal/logger"
	"chronosync/internal/model"
	"chronosync/internal/transport"

	"go.uber.org/zap"
)

// DefaultChunkSize balances checkpoint granularity against write overhead.
const DefaultChunkSize = 4 << 20

type Executor struct {
	source    transport.Client
	target    transport.Client
	store     *checkpoint.Store
	taskID    string
	workers   int
	chunkSize int64
}

func NewExecutor(source, target transport.Client, store *checkpoint.Store, taskID string, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{
		source:    source,
		target:    target,
		store:     store,
		taskID:    taskID,
		workers:   workers,
		chunkSize: DefaultChunkSize,
	}
}

// Apply runs the plan. A failing file is recorded and the remaining files
// keep transferring; only cancellation stops dispatch, and in-flight chunk
// writes finish before workers exit.
func (e *Executor) Apply(ctx context.Context, plan model.DiffPlan) *model.SyncResult {
	result := &model.SyncResult{}

	var mu sync.Mutex
	record := func(fr model.FileResult) {
		mu.Lock()
		defer mu.Unlock()

		result.Files = append(result.Files, fr)
		result.Bytes += fr.Bytes
		switch fr.State {
		case model.FileCopied:
			result.Copied++
		case model.FileUpdated:
			result.Updated++
		case model.FileDeleted:
			result.Deleted++
		case model.FileFailed:
			result.Failed++
		case model.FileUnchanged:
			result.Unchanged++
		}
	}

	ops := make(chan model.FileOperation)
	var wg sync.WaitGroup

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for op := range ops {
				record(e.run(ctx, op))
			}
		}()
	}

dispatch:
	for _, op := range plan {
		select {
		case <-ctx.Done():
			break dispatch
		case ops <- op:
		}
	}
	close(ops)
	wg.Wait()

	result.BuildSummary()
	return result
}

func (e *Executor) run(ctx context.Context, op model.FileOperation) model.FileResult {
	switch op.Type {
	case model.OpSkip:
		if op.Warning {
			logger.Log.Warn("skipping special file",
				zap.String("path", op.Path),
				zap.String("reason", op.Reason))
		}
		return model.FileResult{Path: op.Path, Op: op.Type, State: model.FileUnchanged}

	case model.OpMkdir:
		if err := e.target.Mkdir(ctx, op.Path); err != nil {
			logger.Log.Error("mkdir failed",
				zap.String("path", op.Path),
				zap.Error(err))
			return model.FileResult{Path: op.Path, Op: op.Type, State: model.FileFailed, Error: err.Error()}
		}
		return model.FileResult{Path: op.Path, Op: op.Type, State: model.FileCopied}

	case model.OpDelete:
		if err := e.target.Delete(ctx, op.Path); err != nil {
			logger.Log.Error("delete failed",
				zap.String("path", op.Path),
				zap.Error(err))
			return model.FileResult{Path: op.Path, Op: op.Type, State: model.FileFailed, Error: err.Error()}
		}
		return model.FileResult{Path: op.Path, Op: op.Type, State: model.FileDeleted}

	default:
		bytes, err := e.transfer(ctx, op)
		if err != nil {
			logger.Log.Error("transfer failed",
				zap.String("path", op.Path),
				zap.Error(err))
			return model.FileResult{Path: op.Path, Op: op.Type, State: model.FileFailed, Bytes: bytes, Error: err.Error()}
		}

		state := model.FileCopied
		if op.Type == model.OpUpdate {
			state = model.FileUpdated
		}
		return model.FileResult{Path: op.Path, Op: op.Type, State: state, Bytes: bytes}
	}
}

// transfer copies one file in fixed-size chunks, checkpointing after every
// chunk. It returns the bytes moved during this run.
func (e *Executor) transfer(ctx context.Context, op model.FileOperation) (int64, error) {
	offset := e.resumeOffset(ctx, op)

	src, err := e.source.OpenRead(ctx, op.Path, offset)
	if err != nil {
		return 0, fmt.Errorf("failed to open source %s: %w", op.Path, err)
	}
	defer func() {
		_ = src.Close()
	}()

	dst, err := e.target.OpenWrite(ctx, op.Path, offset)
	if err != nil {
		return 0, fmt.Errorf("failed to open target %s: %w", op.Path, err)
	}

	written := offset
	var moved int64
	buf := make([]byte, e.chunkSize)

	for {
		// Cancellation lands on a chunk boundary; the checkpoint already
		// records every finished chunk, so the next run resumes from here.
		if err := ctx.Err(); err != nil {
			_ = dst.Close()
			return moved, fmt.Errorf("transfer of %s interrupted at offset %d: %w", op.Path, written, err)
		}

		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			// A chunk write is all or nothing: any short write surfaces
			// as an error and the checkpoint stays at the last boundary.
			if _, err := dst.Write(buf[:n]); err != nil {
				_ = dst.Close()
				return moved, fmt.Errorf("failed to write %s at offset %d: %w", op.Path, written, err)
			}
			written += int64(n)
			moved += int64(n)
			e.checkpointProgress(op, written)
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			_ = dst.Close()
			return moved, fmt.Errorf("failed to read %s at offset %d: %w", op.Path, written, readErr)
		}
	}

	if err := dst.Close(); err != nil {
		return moved, fmt.Errorf("failed to finish %s: %w", op.Path, err)
	}

	if e.store != nil {
		if err := e.store.Clear(e.taskID, op.Path); err != nil {
			logger.Log.Warn("failed to clear checkpoint",
				zap.String("path", op.Path),
				zap.Error(err))
		}
	}
	return moved, nil
}

// resumeOffset validates a stored checkpoint against the actual partial
// file on the target. Any inconsistency silently restarts from zero.
func (e *Executor) resumeOffset(ctx context.Context, op model.FileOperation) int64 {
	if e.store == nil || op.Type != model.OpCopy && op.Type != model.OpUpdate {
		return 0
	}

	cp, err := e.store.Get(e.taskID, op.Path)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			logger.Log.Warn("failed to read checkpoint",
				zap.String("path", op.Path),
				zap.Error(err))
		}
		return 0
	}

	partial, err := e.target.Stat(ctx, op.Path)
	if err != nil ||
		partial.Size != cp.BytesTransferred ||
		cp.TotalBytes != op.Size ||
		cp.BytesTransferred > cp.TotalBytes {
		_ = e.store.Clear(e.taskID, op.Path)
		return 0
	}

	logger.Log.Info("resuming transfer",
		zap.String("path", op.Path),
		zap.Int64("offset", cp.BytesTransferred),
		zap.Int64("total", cp.TotalBytes))
	return cp.BytesTransferred
}

func (e *Executor) checkpointProgress(op model.FileOperation, written int64) {
	if e.store == nil {
		return
	}

	err := e.store.Set(model.Checkpoint{
		TaskID:           e.taskID,
		Path:             op.Path,
		BytesTransferred: written,
		TotalBytes:       op.Size,
	})
	if err != nil {
		logger.Log.Warn("failed to save checkpoint",
			zap.String("path", op.Path),
			zap.Error(err))
	}
}

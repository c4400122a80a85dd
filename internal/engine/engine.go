// Package engine orchestrates one sync run: list both endpoints, plan the
// diff, apply it, and assemble the result summary.
package engine

import (
	"context"
	"fmt"

	"chronosync/internal/checkpoint"
	"chronosync/internal/logger"
	"chronosync/internal/model"
	"chronosync/internal/planner"
	"chronosync/internal/transfer"
	"chronosync/internal/transport"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	taskID string
	task   model.SyncTask
	store  *checkpoint.Store
}

func New(taskID string, task model.SyncTask, store *checkpoint.Store) *Engine {
	return &Engine{taskID: taskID, task: task, store: store}
}

// Run executes the full sync. Connection and listing failures abort before
// any transfer and are returned as errors; per-file transfer failures are
// recorded inside the returned SyncResult instead.
func (e *Engine) Run(ctx context.Context) (*model.SyncResult, error) {
	source, err := transport.New(ctx, e.task.Source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer func() {
		_ = source.Close()
	}()

	target, err := transport.New(ctx, e.task.Target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	defer func() {
		_ = target.Close()
	}()

	var srcEntries, tgtEntries []model.FileEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if srcEntries, err = source.List(gctx); err != nil {
			return &transport.ConnError{Endpoint: e.task.Source.String(), Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if tgtEntries, err = target.List(gctx); err != nil {
			return &transport.ConnError{Endpoint: e.task.Target.String(), Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.task.Compare == model.CompareChecksum {
		if err := e.fillChecksums(ctx, source, target, srcEntries, tgtEntries); err != nil {
			return nil, err
		}
	}

	plan, err := planner.Plan(srcEntries, tgtEntries, e.task.Mode, e.task.Compare, e.task.Filter)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("sync plan ready",
		zap.String("task", e.taskID),
		zap.Int("source_entries", len(srcEntries)),
		zap.Int("target_entries", len(tgtEntries)),
		zap.Int("pending", plan.Pending()))

	executor := transfer.NewExecutor(source, target, e.store, e.taskID, e.task.Workers)
	result := executor.Apply(ctx, plan)

	logger.Log.Info("sync finished",
		zap.String("task", e.taskID),
		zap.Int("copied", result.Copied),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
		zap.Int("failed", result.Failed),
		zap.Int64("bytes", result.Bytes))

	return result, nil
}

// fillChecksums hashes files present on both sides with matching sizes so
// the planner can compare content. Differing sizes already force an update.
func (e *Engine) fillChecksums(ctx context.Context, source, target transport.Client,
	srcEntries, tgtEntries []model.FileEntry) error {

	tgtByPath := make(map[string]int, len(tgtEntries))
	for i, entry := range tgtEntries {
		tgtByPath[entry.Path] = i
	}

	for i := range srcEntries {
		src := &srcEntries[i]
		if src.Kind != model.KindFile {
			continue
		}
		j, ok := tgtByPath[src.Path]
		if !ok || tgtEntries[j].Kind != model.KindFile || tgtEntries[j].Size != src.Size {
			continue
		}

		var err error
		if src.Checksum, err = transport.Checksum(ctx, source, src.Path); err != nil {
			return &planner.PlanError{Reason: fmt.Sprintf("failed to hash source %s", src.Path), Err: err}
		}
		if tgtEntries[j].Checksum, err = transport.Checksum(ctx, target, src.Path); err != nil {
			return &planner.PlanError{Reason: fmt.Sprintf("failed to hash target %s", src.Path), Err: err}
		}
	}
	return nil
}

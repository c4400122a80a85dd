package scheduler

import (
	"context"
	"time"

	"chronosync/internal/checkpoint"
	"chronosync/internal/engine"
	"chronosync/internal/model"
	"chronosync/internal/runner"
)

// Task is the single capability behind the job type dispatch.
type Task interface {
	Run(ctx context.Context) model.ExecutionResult
}

// NewTask builds the concrete task variant for a job.
func NewTask(job model.Job, store *checkpoint.Store) Task {
	if job.Type == model.TaskSync && job.Sync != nil {
		return &syncTask{job: job, store: store}
	}
	return &commandTask{job: job, runner: runner.NewCommandRunner()}
}

type commandTask struct {
	job    model.Job
	runner *runner.CommandRunner
}

func (t *commandTask) Run(ctx context.Context) model.ExecutionResult {
	return t.runner.Run(ctx, t.job)
}

type syncTask struct {
	job   model.Job
	store *checkpoint.Store
}

func (t *syncTask) Run(ctx context.Context) model.ExecutionResult {
	result := model.ExecutionResult{
		JobID:     t.job.ID,
		JobName:   t.job.Name,
		StartedAt: time.Now(),
	}

	eng := engine.New(t.job.ID, *t.job.Sync, t.store)
	syncResult, err := eng.Run(ctx)

	result.FinishedAt = time.Now()
	switch {
	case err != nil:
		result.Status = model.StatusFailed
		result.ExitCode = 1
		result.Stderr = err.Error()
	case syncResult.Failed > 0:
		result.Status = model.StatusWithErrors
		result.ExitCode = 1
		result.Sync = syncResult
		result.Stdout = syncResult.Summary
	default:
		result.Status = model.StatusSuccess
		result.ExitCode = 0
		result.Sync = syncResult
		result.Stdout = syncResult.Summary
	}
	return result
}

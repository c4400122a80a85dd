package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chronosync/internal/logger"
	"chronosync/internal/model"
	"chronosync/internal/retry"

	"go.uber.org/zap"
)

const defaultRetryBackoff = 30 * time.Second

// Coordinator owns the execution lifecycle of one job. It guarantees that
// at most one run of the job is in flight and applies the job's concurrency
// policy when a trigger fires during an active run.
type Coordinator struct {
	job      model.Job
	task     Task
	onResult func(model.ExecutionResult)

	mu        sync.Mutex
	running   bool
	pending   bool
	cancelRun context.CancelFunc
}

func NewCoordinator(job model.Job, task Task, onResult func(model.ExecutionResult)) *Coordinator {
	if onResult == nil {
		onResult = func(model.ExecutionResult) {}
	}
	return &Coordinator{job: job, task: task, onResult: onResult}
}

// FireOutcome reports how a fire request was handled.
type FireOutcome int

const (
	// FireStarted means a new run began immediately.
	FireStarted FireOutcome = iota
	// FireQueued means the request waits behind the active run.
	FireQueued
	// FireReplaced means the active run is being cancelled for a fresh one.
	FireReplaced
	// FireSkipped means the request was dropped.
	FireSkipped
)

// Fire requests a run. When the job is idle the run starts on its own
// goroutine. When a run is already active the policy decides: skip drops
// the fire, queue_one remembers at most one follow-up, replace cancels the
// active run and reruns.
func (c *Coordinator) Fire(ctx context.Context) FireOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		switch c.job.Policy {
		case model.PolicyQueueOne:
			if c.pending {
				logger.Log.Debug("trigger fire skipped, a run is already queued", zap.String("job", c.job.Name))
				return FireSkipped
			}
			c.pending = true
			logger.Log.Debug("run queued behind active run", zap.String("job", c.job.Name))
			return FireQueued
		case model.PolicyReplace:
			if c.cancelRun != nil {
				c.cancelRun()
			}
			c.pending = true
			logger.Log.Info("cancelling active run for a fresh one", zap.String("job", c.job.Name))
			return FireReplaced
		default:
			logger.Log.Debug("trigger fire skipped, job already running", zap.String("job", c.job.Name))
			return FireSkipped
		}
	}

	c.running = true
	go c.loop(ctx)
	return FireStarted
}

// Update swaps the job definition, keeping run state intact across a
// configuration reload.
func (c *Coordinator) Update(job model.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.job = job
}

// Busy reports whether a run is currently in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// loop drains the current run plus any queued follow-up, then returns the
// coordinator to idle.
func (c *Coordinator) loop(ctx context.Context) {
	for {
		runCtx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.cancelRun = cancel
		c.mu.Unlock()

		result := c.runOnce(runCtx)
		cancel()
		c.onResult(result)

		c.mu.Lock()
		c.cancelRun = nil
		if c.pending && ctx.Err() == nil {
			c.pending = false
			c.mu.Unlock()
			continue
		}
		c.pending = false
		c.running = false
		c.mu.Unlock()
		return
	}
}

// runOnce executes the task, reattempting failed runs per the job's retry
// settings. The result of the final attempt wins.
func (c *Coordinator) runOnce(ctx context.Context) (result model.ExecutionResult) {
	c.mu.Lock()
	job := c.job
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("job run panicked",
				zap.String("job", job.Name),
				zap.Any("panic", r))
			result = model.ExecutionResult{
				JobID:      job.ID,
				JobName:    job.Name,
				Status:     model.StatusFailed,
				ExitCode:   -1,
				Stderr:     fmt.Sprintf("run panicked: %v", r),
				StartedAt:  time.Now(),
				FinishedAt: time.Now(),
			}
		}
	}()

	backoff := job.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	attempt := 0
	_ = retry.Do(ctx, job.Retries+1, retry.Fixed(backoff), func() error {
		attempt++
		result = c.task.Run(ctx)
		if result.Status == model.StatusFailed {
			logger.Log.Warn("job run failed",
				zap.String("job", job.Name),
				zap.Int("attempt", attempt),
				zap.Int("exit_code", result.ExitCode))
			return errors.New(result.Stderr)
		}
		return nil
	})
	return result
}

// Package scheduler maintains the job registry and fires due jobs. One
// control loop sleeps until the earliest next fire time, bounded by the
// poll interval, and dispatches runs to per-job coordinators.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"chronosync/internal/checkpoint"
	"chronosync/internal/logger"
	"chronosync/internal/model"
	"chronosync/internal/trigger"

	"go.uber.org/zap"
)

// ErrUnknownJob marks a lookup for a job ID that is not registered.
var ErrUnknownJob = errors.New("unknown job")

// JobSnapshot is a read-only view of one registered job for the status API.
type JobSnapshot struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     model.TaskType `json:"type"`
	Trigger  string         `json:"trigger"`
	Enabled  bool           `json:"enabled"`
	Running  bool           `json:"running"`
	Disabled string         `json:"disabled_reason,omitempty"`
	LastRun  time.Time      `json:"last_run,omitzero"`
	NextRun  time.Time      `json:"next_run,omitzero"`
}

type entry struct {
	job      model.Job
	schedule *trigger.Schedule
	coord    *Coordinator

	disabledReason string
	lastRun        time.Time
	nextRun        time.Time
}

type Scheduler struct {
	store        *checkpoint.Store
	pollInterval time.Duration
	onResult     func(model.ExecutionResult)

	mu     sync.RWMutex
	jobs   map[string]*entry
	runCtx context.Context

	wake    chan struct{}
	cancel  context.CancelFunc
	stopped chan struct{}
	started bool
}

func New(store *checkpoint.Store, pollInterval time.Duration, onResult func(model.ExecutionResult)) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Scheduler{
		store:        store,
		pollInterval: pollInterval,
		onResult:     onResult,
		jobs:         make(map[string]*entry),
		runCtx:       context.Background(),
		wake:         make(chan struct{}, 1),
	}
}

// Register adds a job to the registry. A malformed trigger expression keeps
// the job registered but disabled, and the parse error is returned so the
// caller can surface it.
func (s *Scheduler) Register(job model.Job) error {
	e := &entry{
		job:   job,
		coord: NewCoordinator(job, NewTask(job, s.store), s.onResult),
	}

	schedule, err := trigger.Parse(job.Trigger)
	if err != nil {
		e.disabledReason = err.Error()
		logger.Log.Warn("job disabled, trigger did not parse",
			zap.String("job", job.Name),
			zap.Error(err))
	} else {
		e.schedule = schedule
		if job.Enabled {
			e.nextRun = schedule.Next(time.Now())
		}
	}

	s.mu.Lock()
	s.jobs[job.ID] = e
	s.mu.Unlock()
	s.poke()

	return err
}

// Reload replaces the registry with a fresh job list. Coordinators of jobs
// that survive the reload are kept so active runs stay tracked.
func (s *Scheduler) Reload(jobs []model.Job) {
	s.mu.Lock()
	old := s.jobs
	s.jobs = make(map[string]*entry, len(jobs))
	s.mu.Unlock()

	for _, job := range jobs {
		if prev, ok := old[job.ID]; ok && prev.job.Trigger == job.Trigger {
			prev.job = job
			prev.coord.Update(job)
			s.mu.Lock()
			s.jobs[job.ID] = prev
			s.mu.Unlock()
			continue
		}
		_ = s.Register(job)
	}

	logger.Log.Info("job registry reloaded", zap.Int("jobs", len(jobs)))
	s.poke()
}

// Start launches the control loop. Calling Start twice is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.runCtx = ctx
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.loop(ctx)

	logger.Log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop ends the control loop. In-flight runs observe the cancelled context
// and finish on their own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.runCtx = context.Background()
	cancel, stopped := s.cancel, s.stopped
	s.mu.Unlock()

	cancel()
	<-stopped
	logger.Log.Info("scheduler stopped")
}

// RunNow fires a job immediately, outside its schedule. The usual
// concurrency policy still applies. The run executes on the scheduler's own
// lifetime context, never on the caller's, so a short-lived caller (such as
// an HTTP request handler) does not cancel the run it triggered.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	e, ok := s.jobs[id]
	ctx := s.runCtx
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	outcome := e.coord.Fire(ctx)
	if outcome == FireSkipped {
		return fmt.Errorf("job %s is already running", e.job.Name)
	}

	if outcome == FireStarted {
		s.mu.Lock()
		e.lastRun = time.Now()
		s.mu.Unlock()
	}
	return nil
}

// Snapshots lists all registered jobs sorted by name.
func (s *Scheduler) Snapshots() []JobSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobSnapshot, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, JobSnapshot{
			ID:       e.job.ID,
			Name:     e.job.Name,
			Type:     e.job.Type,
			Trigger:  e.job.Trigger,
			Enabled:  e.job.Enabled && e.disabledReason == "",
			Running:  e.coord.Busy(),
			Disabled: e.disabledReason,
			LastRun:  e.lastRun,
			NextRun:  e.nextRun,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.stopped)

	for {
		wait := s.untilNextFire(time.Now())

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-time.After(wait):
			s.dispatchDue(ctx, time.Now())
		}
	}
}

// untilNextFire bounds the sleep by the poll interval so registry changes
// through Reload never stall the loop for long.
func (s *Scheduler) untilNextFire(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wait := s.pollInterval
	for _, e := range s.jobs {
		if e.nextRun.IsZero() {
			continue
		}
		if d := e.nextRun.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.jobs {
		if e.nextRun.IsZero() || e.nextRun.After(now) {
			continue
		}

		e.lastRun = e.nextRun
		e.nextRun = e.schedule.Next(now)

		logger.Log.Debug("trigger fired",
			zap.String("job", e.job.Name),
			zap.Time("next_run", e.nextRun))
		e.coord.Fire(ctx)
	}
}

// poke wakes the control loop so it recomputes the next fire time.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"chronosync/internal/checkpoint"
	"chronosync/internal/model"
	"chronosync/internal/trigger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func commandJob(id, name, expr, command string) model.Job {
	return model.Job{
		ID:      id,
		Name:    name,
		Trigger: expr,
		Type:    model.TaskCommand,
		Enabled: true,
		Policy:  model.PolicySkip,
		Command: &model.CommandTask{Command: command},
	}
}

func TestRegisterInvalidTriggerDisablesJob(t *testing.T) {
	s := New(openStore(t), time.Second, nil)

	err := s.Register(commandJob("j1", "broken", "not a cron", "true"))
	require.Error(t, err)

	var parseErr *trigger.ParseError
	assert.ErrorAs(t, err, &parseErr)

	snaps := s.Snapshots()
	require.Len(t, snaps, 1)
	assert.False(t, snaps[0].Enabled)
	assert.NotEmpty(t, snaps[0].Disabled)
	assert.True(t, snaps[0].NextRun.IsZero())
}

func TestRegisterComputesNextRun(t *testing.T) {
	s := New(openStore(t), time.Second, nil)

	require.NoError(t, s.Register(commandJob("j1", "nightly", "0 0 * * *", "true")))

	snaps := s.Snapshots()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Enabled)
	assert.False(t, snaps[0].NextRun.IsZero())
	assert.True(t, snaps[0].NextRun.After(time.Now()))
}

func TestRegisterDisabledJobNeverScheduled(t *testing.T) {
	s := New(openStore(t), time.Second, nil)

	job := commandJob("j1", "off", "* * * * *", "true")
	job.Enabled = false
	require.NoError(t, s.Register(job))

	snaps := s.Snapshots()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].NextRun.IsZero())
}

func TestRunNow(t *testing.T) {
	results := make(chan model.ExecutionResult, 1)
	s := New(openStore(t), time.Second, func(r model.ExecutionResult) { results <- r })

	require.NoError(t, s.Register(commandJob("j1", "manual", "0 0 1 1 *", "echo VERSION=1.2.3")))
	require.NoError(t, s.RunNow("j1"))

	select {
	case r := <-results:
		assert.Equal(t, model.StatusSuccess, r.Status)
		assert.Equal(t, "1.2.3", r.CustomVars["VERSION"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for run-now result")
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	s := New(openStore(t), time.Second, nil)

	err := s.RunNow("nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

// A manual run keeps going after the caller moves on: even across a
// stop-free scheduler the run finishes on the scheduler's lifetime context.
func TestRunNowFinishesAfterCallerReturns(t *testing.T) {
	results := make(chan model.ExecutionResult, 1)
	s := New(openStore(t), time.Second, func(r model.ExecutionResult) { results <- r })

	require.NoError(t, s.Register(commandJob("j1", "slowish", "0 0 1 1 *", "sleep 0.2; echo VERSION=done")))
	require.NoError(t, s.RunNow("j1"))

	select {
	case r := <-results:
		assert.Equal(t, model.StatusSuccess, r.Status)
		assert.Equal(t, "done", r.CustomVars["VERSION"])
	case <-time.After(10 * time.Second):
		t.Fatal("run never finished")
	}
}

func TestRunNowQueuesBehindActiveRun(t *testing.T) {
	results := make(chan model.ExecutionResult, 2)
	s := New(openStore(t), time.Second, func(r model.ExecutionResult) { results <- r })

	job := commandJob("j1", "busy", "0 0 1 1 *", "sleep 0.3")
	job.Policy = model.PolicyQueueOne
	require.NoError(t, s.Register(job))

	require.NoError(t, s.RunNow("j1"))
	// The second request queues behind the active run instead of erroring.
	require.NoError(t, s.RunNow("j1"))

	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			assert.Equal(t, model.StatusSuccess, r.Status)
		case <-time.After(10 * time.Second):
			t.Fatal("queued run never happened")
		}
	}
}

func TestRunNowRejectsWhileRunning(t *testing.T) {
	results := make(chan model.ExecutionResult, 1)
	s := New(openStore(t), time.Second, func(r model.ExecutionResult) { results <- r })

	require.NoError(t, s.Register(commandJob("j1", "busy", "0 0 1 1 *", "sleep 0.3")))

	require.NoError(t, s.RunNow("j1"))
	assert.Error(t, s.RunNow("j1"))

	select {
	case <-results:
	case <-time.After(10 * time.Second):
		t.Fatal("run never finished")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(openStore(t), 50*time.Millisecond, nil)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	s.Stop()

	// Stop is idempotent.
	s.Stop()
}

func TestSchedulerDispatchesDueJob(t *testing.T) {
	results := make(chan model.ExecutionResult, 4)
	s := New(openStore(t), 50*time.Millisecond, func(r model.ExecutionResult) { results <- r })

	// Six-field expression firing every second.
	require.NoError(t, s.Register(commandJob("j1", "ticker", "* * * * * *", "true")))
	require.NoError(t, s.Start())
	defer s.Stop()

	select {
	case r := <-results:
		assert.Equal(t, model.StatusSuccess, r.Status)
		assert.Equal(t, "j1", r.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}

	snaps := s.Snapshots()
	require.Len(t, snaps, 1)
	assert.False(t, snaps[0].LastRun.IsZero())
}

func TestReloadReplacesRegistry(t *testing.T) {
	s := New(openStore(t), time.Second, nil)

	require.NoError(t, s.Register(commandJob("j1", "old", "0 0 * * *", "true")))
	require.NoError(t, s.Register(commandJob("j2", "kept", "0 6 * * *", "true")))

	s.Reload([]model.Job{
		commandJob("j2", "kept", "0 6 * * *", "true"),
		commandJob("j3", "new", "0 12 * * *", "true"),
	})

	snaps := s.Snapshots()
	require.Len(t, snaps, 2)

	ids := map[string]bool{}
	for _, snap := range snaps {
		ids[snap.ID] = true
	}
	assert.False(t, ids["j1"])
	assert.True(t, ids["j2"])
	assert.True(t, ids["j3"])
}

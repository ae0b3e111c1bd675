package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/logger"
)

// fakeRunner counts invocations and lets tests inject hook and run failures
type fakeRunner struct {
	mu         sync.Mutex
	runs       int
	runErr     error
	startErr   error
	stopErr    error
	runStarted chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if f.runStarted != nil {
		select {
		case f.runStarted <- struct{}{}:
		default:
		}
	}
	return f.runErr
}

func (f *fakeRunner) OnStart() error { return f.startErr }
func (f *fakeRunner) OnStop() error  { return f.stopErr }

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func waitRun(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task run")
	}
}

func TestTask(t *testing.T) {
	newManager := func() *Manager {
		return NewManager(logger.NewNoOpLogger())
	}

	t.Run("runs on interval and rearms", func(t *testing.T) {
		runner := &fakeRunner{runStarted: make(chan struct{}, 8)}
		m := newManager()
		task, err := m.Register("ticker", 10*time.Millisecond, runner)
		require.NoError(t, err)

		require.NoError(t, task.Start(t.Context()))
		defer task.Stop() // nolint:errcheck

		waitRun(t, runner.runStarted)
		waitRun(t, runner.runStarted)

		require.GreaterOrEqual(t, runner.runCount(), 2, "task should keep rearming after each run")
	})

	t.Run("run error does not stop schedule", func(t *testing.T) {
		runner := &fakeRunner{runStarted: make(chan struct{}, 8), runErr: errors.New("boom")}
		m := newManager()
		task, err := m.Register("flaky", 10*time.Millisecond, runner)
		require.NoError(t, err)

		require.NoError(t, task.Start(t.Context()))
		defer task.Stop() // nolint:errcheck

		waitRun(t, runner.runStarted)
		waitRun(t, runner.runStarted)

		require.False(t, task.Status().Stopped, "failing runs must not stop the task")
	})

	t.Run("stopped task does not run", func(t *testing.T) {
		runner := &fakeRunner{}
		m := newManager()
		task, err := m.Register("idle", 10*time.Millisecond, runner)
		require.NoError(t, err)

		require.NoError(t, task.Start(t.Context()))
		require.NoError(t, task.Stop())

		time.Sleep(50 * time.Millisecond)
		require.Zero(t, runner.runCount(), "no run should happen after stop")
		require.True(t, task.Status().Stopped)
	})

	t.Run("force run on stopped task", func(t *testing.T) {
		runner := &fakeRunner{}
		m := newManager()
		task, err := m.Register("manual", time.Hour, runner)
		require.NoError(t, err)

		task.ForceRun(t.Context())

		require.Equal(t, 1, runner.runCount(), "force run should execute the work function once")
		require.True(t, task.Status().Stopped, "force run must not change the stopped state")
		require.True(t, task.Status().NextRun.IsZero(), "stopped task should not be rearmed")
	})

	t.Run("force run reschedules a running task", func(t *testing.T) {
		runner := &fakeRunner{}
		m := newManager()
		task, err := m.Register("resched", time.Hour, runner)
		require.NoError(t, err)

		require.NoError(t, task.Start(t.Context()))
		defer task.Stop() // nolint:errcheck

		before := task.Status().NextRun
		time.Sleep(5 * time.Millisecond)
		task.ForceRun(t.Context())

		require.Equal(t, 1, runner.runCount())
		require.True(t, task.Status().NextRun.After(before), "next run should be a full interval from the forced run")
	})

	t.Run("start hook failure aborts start", func(t *testing.T) {
		runner := &fakeRunner{startErr: errors.New("not ready")}
		m := newManager()
		task, err := m.Register("guarded", time.Hour, runner)
		require.NoError(t, err)

		err = task.Start(t.Context())

		require.Error(t, err, "start hook error should abort the start")
		require.True(t, task.Status().Stopped, "task state should be unchanged after aborted start")
	})

	t.Run("stop hook failure aborts stop", func(t *testing.T) {
		runner := &fakeRunner{stopErr: errors.New("busy")}
		m := newManager()
		task, err := m.Register("sticky", time.Hour, runner)
		require.NoError(t, err)
		require.NoError(t, task.Start(t.Context()))

		err = task.Stop()

		require.Error(t, err, "stop hook error should abort the stop")
		require.False(t, task.Status().Stopped, "task should still be running after aborted stop")

		runner.stopErr = nil
		require.NoError(t, task.Stop())
	})
}

func TestManager(t *testing.T) {
	t.Run("register duplicate name", func(t *testing.T) {
		m := NewManager(logger.NewNoOpLogger())
		_, err := m.Register("dup", time.Hour, &fakeRunner{})
		require.NoError(t, err)

		_, err = m.Register("dup", time.Minute, &fakeRunner{})

		require.ErrorIs(t, err, apperrors.ErrTaskAlreadyExists)
	})

	t.Run("get by name", func(t *testing.T) {
		m := NewManager(logger.NewNoOpLogger())
		registered, err := m.Register("named", time.Hour, &fakeRunner{})
		require.NoError(t, err)

		got, err := m.Get("named")
		require.NoError(t, err)
		require.Same(t, registered, got)

		_, err = m.Get("missing")
		require.ErrorIs(t, err, apperrors.ErrTaskNotFound)
	})

	t.Run("list and start stop all", func(t *testing.T) {
		m := NewManager(logger.NewNoOpLogger())
		_, err := m.Register("one", time.Hour, &fakeRunner{})
		require.NoError(t, err)
		_, err = m.Register("two", time.Hour, &fakeRunner{})
		require.NoError(t, err)

		m.StartAll(t.Context())
		for _, s := range m.List() {
			require.False(t, s.Stopped, "task %q should be running after StartAll", s.Name)
			require.False(t, s.NextRun.IsZero(), "task %q should have a scheduled run", s.Name)
		}

		m.StopAll()
		for _, s := range m.List() {
			require.True(t, s.Stopped, "task %q should be stopped after StopAll", s.Name)
		}
	})
}

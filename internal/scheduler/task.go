package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jac4e/serveit/internal/logger"
)

// Runner is the unit of work a Task drives. Run is invoked once per interval;
// its error is logged and never stops the schedule. OnStart and OnStop guard
// the requested state change: returning an error aborts Start or Stop.
type Runner interface {
	Run(ctx context.Context) error
	OnStart() error
	OnStop() error
}

// Task runs a Runner repeatedly with a fixed delay: the next run is armed
// for 'interval' after the previous run completed, so runs never overlap
// and a slow run pushes the schedule back instead of stacking.
type Task struct {
	name     string
	interval time.Duration
	runner   Runner
	logger   logger.Logger

	mu      sync.Mutex
	stopped bool
	timer   *time.Timer
	lastRun time.Time
	nextRun time.Time
	runCtx  context.Context
}

// Status is a point in time snapshot of a task for the management surface
type Status struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Stopped  bool          `json:"stopped"`
	LastRun  time.Time     `json:"last_run"`
	NextRun  time.Time     `json:"next_run"`
}

func newTask(name string, interval time.Duration, runner Runner, l logger.Logger) *Task {
	return &Task{
		name:     name,
		interval: interval,
		runner:   runner,
		logger:   l.With("task", name),
		stopped:  true,
	}
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Status{
		Name:     t.name,
		Interval: t.interval,
		Stopped:  t.stopped,
		LastRun:  t.lastRun,
		NextRun:  t.nextRun,
	}
}

// Start marks the task active and arms the first run for one interval from
// now. The runner's OnStart hook runs first; its error aborts the start and
// leaves the task state untouched.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.stopped {
		return nil
	}

	if err := t.runner.OnStart(); err != nil {
		return fmt.Errorf("task %q start hook: %w", t.name, err)
	}

	t.stopped = false
	t.runCtx = ctx
	t.arm(t.interval)
	t.logger.Info("Task started", "interval", t.interval)

	return nil
}

// Stop prevents future runs. A run already in flight is not interrupted.
func (t *Task) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil
	}

	if err := t.runner.OnStop(); err != nil {
		return fmt.Errorf("task %q stop hook: %w", t.name, err)
	}

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.nextRun = time.Time{}
	t.logger.Info("Task stopped")

	return nil
}

// ForceRun executes the work function once, out of band, then re-arms the
// timer for a full interval from now. It works on a stopped task too and
// does not change the stopped flag.
func (t *Task) ForceRun(ctx context.Context) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.logger.Info("Task force run")
	t.invoke(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.arm(t.interval)
	}
}

// arm schedules the next firing. Caller must hold t.mu.
func (t *Task) arm(d time.Duration) {
	t.nextRun = time.Now().Add(d)
	t.timer = time.AfterFunc(d, t.fire)
}

func (t *Task) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	ctx := t.runCtx
	t.mu.Unlock()

	t.invoke(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		t.arm(t.interval)
	}
}

// invoke runs the work function and isolates its failures: errors and panics
// are logged and the schedule carries on.
func (t *Task) invoke(ctx context.Context) {
	t.mu.Lock()
	t.lastRun = time.Now()
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Task run panicked", "panic", r)
		}
	}()

	if err := t.runner.Run(ctx); err != nil {
		t.logger.Error("Task run failed", "error", err)
	}
}

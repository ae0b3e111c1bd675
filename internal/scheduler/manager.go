package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/logger"
)

// Manager owns every background task in the process. It is constructed once
// at startup and handed to whatever needs to enumerate or control tasks, so
// there is no package level registry.
type Manager struct {
	logger logger.Logger

	mu    sync.Mutex
	tasks []*Task
}

func NewManager(l logger.Logger) *Manager {
	return &Manager{logger: l}
}

// Register creates a task and adds it to the registry.
func (m *Manager) Register(name string, interval time.Duration, runner Runner) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tasks {
		if t.name == name {
			return nil, fmt.Errorf("register %q: %w", name, apperrors.ErrTaskAlreadyExists)
		}
	}

	task := newTask(name, interval, runner, m.logger)
	m.tasks = append(m.tasks, task)

	return task, nil
}

func (m *Manager) Get(name string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tasks {
		if t.name == name {
			return t, nil
		}
	}

	return nil, fmt.Errorf("task %q: %w", name, apperrors.ErrTaskNotFound)
}

// List reports a snapshot of every registered task, in registration order
func (m *Manager) List() []Status {
	m.mu.Lock()
	tasks := make([]*Task, len(m.tasks))
	copy(tasks, m.tasks)
	m.mu.Unlock()

	statuses := make([]Status, 0, len(tasks))
	for _, t := range tasks {
		statuses = append(statuses, t.Status())
	}

	return statuses
}

// StartAll starts every registered task. A task whose start hook fails is
// logged and skipped; the rest still start.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	tasks := make([]*Task, len(m.tasks))
	copy(tasks, m.tasks)
	m.mu.Unlock()

	for _, t := range tasks {
		if err := t.Start(ctx); err != nil {
			m.logger.Error("Failed to start task", "task", t.name, "error", err)
		}
	}
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	tasks := make([]*Task, len(m.tasks))
	copy(tasks, m.tasks)
	m.mu.Unlock()

	for _, t := range tasks {
		if err := t.Stop(); err != nil {
			m.logger.Error("Failed to stop task", "task", t.name, "error", err)
		}
	}
}

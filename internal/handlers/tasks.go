package handlers

import (
	"errors"
	"net/http"

	"github.com/jac4e/serveit/internal/apperrors"
	"github.com/jac4e/serveit/internal/handlers/render"
	"github.com/jac4e/serveit/internal/logger"
)

func handleListTasks(taskManager taskManager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, taskManager.List())
	})
}

func handleStartTask(taskManager taskManager, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		task, err := taskManager.Get(r.PathValue("name"))
		if err != nil {
			taskError(w, err)
			return
		}

		if err := task.Start(r.Context()); err != nil {
			l.Error("Failed to start task", "task", task.Name(), "error", err)
			render.ServiceError(w, "Failed to start task", http.StatusInternalServerError)
			return
		}

		render.JSON(w, task.Status())
	})
}

func handleStopTask(taskManager taskManager, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		task, err := taskManager.Get(r.PathValue("name"))
		if err != nil {
			taskError(w, err)
			return
		}

		if err := task.Stop(); err != nil {
			l.Error("Failed to stop task", "task", task.Name(), "error", err)
			render.ServiceError(w, "Failed to stop task", http.StatusInternalServerError)
			return
		}

		render.JSON(w, task.Status())
	})
}

// handleRunTask triggers one immediate run, whether or not the schedule is
// active, and reports the status after the run finished
func handleRunTask(taskManager taskManager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		task, err := taskManager.Get(r.PathValue("name"))
		if err != nil {
			taskError(w, err)
			return
		}

		task.ForceRun(r.Context())
		render.JSON(w, task.Status())
	})
}

func taskError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrTaskNotFound) {
		render.ServiceError(w, "Task not found", http.StatusNotFound)
		return
	}
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}

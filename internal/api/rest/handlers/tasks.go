package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mediakeep/sweeper/internal/api/rest/dto"
	"github.com/mediakeep/sweeper/internal/executor"
	"github.com/mediakeep/sweeper/internal/models"
	"github.com/mediakeep/sweeper/internal/taskman"
)

type TaskHandler struct {
	exec    *executor.Executor
	manager *taskman.Manager
}

func NewTaskHandler(exec *executor.Executor, manager *taskman.Manager) *TaskHandler {
	return &TaskHandler{exec: exec, manager: manager}
}

func taskTypeFromURL(r *http.Request) (models.TaskType, bool) {
	taskType := models.TaskType(chi.URLParam(r, "type"))
	return taskType, taskType.Valid()
}

func (h *TaskHandler) HandleExecuteTask(w http.ResponseWriter, r *http.Request) {
	taskType, ok := taskTypeFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}

	var req dto.ExecuteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Options.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.exec.ExecuteTask(r.Context(), taskType, req.Options.ToOptions())
	switch {
	case errors.Is(err, executor.ErrTaskDisabled):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, executor.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		slog.Error("task execution rejected", "task_type", taskType, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to execute task")
		return
	}

	writeJSON(w, http.StatusOK, dto.ResultToResponse(result))
}

func (h *TaskHandler) HandleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req dto.ExecuteBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskTypes := make([]models.TaskType, 0, len(req.TaskTypes))
	for _, t := range req.TaskTypes {
		taskTypes = append(taskTypes, models.TaskType(t))
	}

	results := h.exec.ExecuteBatch(r.Context(), taskTypes)
	writeJSON(w, http.StatusOK, dto.ResultsToResponse(results))
}

func (h *TaskHandler) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskType, ok := taskTypeFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}
	writeJSON(w, http.StatusOK, dto.CancelResponse{
		Cancelled: h.exec.CancelTask(taskType),
	})
}

func (h *TaskHandler) HandleRunningTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.exec.RunningTasks()
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, string(t))
	}
	writeJSON(w, http.StatusOK, dto.RunningTasksResponse{
		Tasks:    names,
		Progress: h.manager.AllProgress(),
	})
}

func (h *TaskHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	taskType, ok := taskTypeFromURL(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown task type")
		return
	}

	estimate, err := h.exec.EstimateImpact(r.Context(), taskType, nil)
	if err != nil {
		slog.Error("impact estimate failed", "task_type", taskType, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to estimate impact")
		return
	}

	writeJSON(w, http.StatusOK, dto.EstimateResponse{
		Items:              estimate.Items,
		Bytes:              estimate.Bytes,
		DurationEstimateMs: estimate.DurationEstimate.Milliseconds(),
	})
}

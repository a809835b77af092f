package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/converse-api/internal/api/shared"
	"github.com/phrazzld/converse-api/internal/domain"
	"github.com/phrazzld/converse-api/internal/service"
)

// AdvanceTaskRequest represents the request body for advancing a task.
// TaskID is optional: when absent, a new task is created with a generated
// identifier.
type AdvanceTaskRequest struct {
	TaskID  string `json:"task_id,omitempty"`
	Message string `json:"message" validate:"required,min=1"`
}

// MessageResponse represents one conversation turn in a response.
type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TaskResponse represents the response data for a task.
type TaskResponse struct {
	ID        string            `json:"id"`
	Messages  []MessageResponse `json:"messages"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	taskService service.TaskService
	validator   *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		validator:   validator.New(),
	}
}

// AdvanceTask handles POST /api/tasks requests. It runs one conversation
// turn: the message is appended to the identified task (or seeds a new
// one) and the assistant reply, when generation succeeds, is included in
// the returned history. A generation failure is reported through the
// task's status, not as an HTTP error.
func (h *TaskHandler) AdvanceTask(w http.ResponseWriter, r *http.Request) {
	var req AdvanceTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	task, err := h.taskService.AdvanceTask(r.Context(), domain.NewTask(req.TaskID, req.Message))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest,
				"Invalid request", err)
		case errors.Is(err, service.ErrTaskNotFound):
			shared.RespondWithErrorAndLog(w, r, http.StatusNotFound,
				"Task not found", err)
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to advance task", err)
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		case errors.Is(err, service.ErrTaskNotFound):
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to fetch task", err)
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// DeleteTask handles DELETE /api/tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.taskService.DeleteTask(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		case errors.Is(err, service.ErrTaskNotFound):
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to delete task", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// taskToResponse converts a domain.Task to a TaskResponse.
func taskToResponse(task *domain.Task) TaskResponse {
	messages := make([]MessageResponse, len(task.Messages))
	for i, m := range task.Messages {
		messages[i] = MessageResponse{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return TaskResponse{
		ID:        task.ID,
		Messages:  messages,
		Status:    string(task.Status),
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/converse-api/internal/domain"
	"github.com/phrazzld/converse-api/internal/events"
	"github.com/phrazzld/converse-api/internal/generation"
	"github.com/phrazzld/converse-api/internal/store"
)

// TaskService provides task orchestration operations.
type TaskService interface {
	// AdvanceTask runs one conversation turn. The request carries either
	// a fresh task (no identifier, one seed message) or a continuation
	// (existing identifier plus exactly one new trailing message).
	//
	// The turn creates or extends the stored task, invokes the generation
	// backend with the task identifier as session key, and persists the
	// result. A generation failure is a business-level outcome, not an
	// operation error: the task is returned with status ERROR and no
	// assistant message. Only store anomalies and invalid input are
	// returned as errors.
	AdvanceTask(ctx context.Context, request *domain.Task) (*domain.Task, error)

	// GetTask retrieves a task by its identifier.
	GetTask(ctx context.Context, id string) (*domain.Task, error)

	// DeleteTask removes a task and its conversation history.
	DeleteTask(ctx context.Context, id string) error
}

// taskServiceImpl implements the TaskService interface.
type taskServiceImpl struct {
	taskStore    store.TaskStore
	generator    generation.Generator
	eventEmitter events.EventEmitter
	logger       *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if the store or generator is nil. A nil event
// emitter falls back to a no-op emitter, a nil logger to the default.
func NewTaskService(
	taskStore store.TaskStore,
	generator generation.Generator,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "taskStore cannot be nil",
		}
	}
	if generator == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "generator cannot be nil",
		}
	}
	if eventEmitter == nil {
		eventEmitter = events.NoopEventEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		taskStore:    taskStore,
		generator:    generator,
		eventEmitter: eventEmitter,
		logger:       logger.With(slog.String("component", "task_service")),
	}, nil
}

// AdvanceTask implements TaskService.AdvanceTask.
func (s *taskServiceImpl) AdvanceTask(
	ctx context.Context,
	request *domain.Task,
) (*domain.Task, error) {
	// Reject empty requests before any store access so an invalid
	// request never mutates persistent state.
	if request == nil || len(request.Messages) == 0 {
		return nil, ErrInvalidRequest
	}

	work := request.Clone()
	if work.ID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, NewTaskServiceError(
				"advance_task", "failed to generate task identifier", err)
		}
		work.ID = id.String()
	}
	if work.CreatedAt.IsZero() {
		now := time.Now().UTC()
		work.CreatedAt = now
		work.UpdatedAt = now
	}

	task, created, err := s.createOrAppend(ctx, work, request)
	if err != nil {
		return nil, err
	}

	// Server-side invariant guard: generation must never run against an
	// empty history.
	last, ok := task.LastMessage()
	if !ok {
		return nil, ErrInvalidRequest
	}

	// Generation runs outside any store-held lock and is the only step
	// expected to block on network I/O. A cancelled context is handled
	// the same way as a backend failure.
	reply, genErr := s.generator.GenerateReply(ctx, task.ID, last.Content)
	if genErr != nil {
		s.logger.WarnContext(ctx, "generation failed, recording ERROR status",
			slog.String("task_id", task.ID),
			slog.String("error", genErr.Error()))
		s.emit(ctx, events.TypeGenerationFailed, task.ID, map[string]string{
			"error": genErr.Error(),
		})
	}

	// applyOutcome records the turn's result on a task: the assistant
	// reply plus OK on success, ERROR with no assistant message on a
	// failed or aborted generation.
	applyOutcome := func(t *domain.Task) {
		if genErr != nil {
			_ = t.SetStatus(domain.TaskStatusError)
			return
		}
		t.AppendMessage(domain.MessageRoleAssistant, reply)
		_ = t.SetStatus(domain.TaskStatusOK)
	}
	applyOutcome(task)

	// Persist the final state. The outcome must be recorded even when the
	// caller has gone away mid-generation, so the write runs on a context
	// that survives cancellation.
	//
	// Stores with the atomic primitive merge the outcome into the current
	// stored value: a concurrent turn that committed between the initial
	// merge and this point keeps its messages instead of being overwritten.
	// The plain-Update fallback writes the local state as a whole and
	// propagates a vanished identifier as an operation error.
	pctx := context.WithoutCancel(ctx)
	if merger, ok := s.taskStore.(store.TaskMerger); ok {
		persisted, err := merger.CreateOrMerge(pctx, task, func(existing *domain.Task) (*domain.Task, error) {
			applyOutcome(existing)
			return existing, nil
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to persist task after generation",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()))
			return nil, NewTaskServiceError("advance_task", "failed to persist task state", err)
		}
		task = persisted
	} else if err := s.taskStore.Update(pctx, task); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist task after generation",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()))
		return nil, NewTaskServiceError("advance_task", "failed to persist task state", err)
	}

	if created {
		s.emit(pctx, events.TypeTaskCreated, task.ID, nil)
	}
	s.emit(pctx, events.TypeTaskAdvanced, task.ID, map[string]interface{}{
		"status":        task.Status,
		"message_count": len(task.Messages),
	})

	s.logger.InfoContext(ctx, "task advanced",
		slog.String("task_id", task.ID),
		slog.String("status", string(task.Status)),
		slog.Int("message_count", len(task.Messages)),
		slog.Bool("created", created))
	return task, nil
}

// createOrAppend stores a fresh task or appends the request's trailing
// message to the existing one. It prefers the store's atomic
// create-or-merge primitive; stores without it fall back to the original
// create, fetch-on-conflict, local-append sequence, whose window between
// fetch and the final update can drop a concurrent append on the same
// identifier.
func (s *taskServiceImpl) createOrAppend(
	ctx context.Context,
	work *domain.Task,
	request *domain.Task,
) (*domain.Task, bool, error) {
	newest := request.Messages[len(request.Messages)-1]

	if merger, ok := s.taskStore.(store.TaskMerger); ok {
		created := true
		task, err := merger.CreateOrMerge(ctx, work, func(existing *domain.Task) (*domain.Task, error) {
			created = false
			existing.AppendMessage(domain.MessageRoleUser, newest.Content)
			return existing, nil
		})
		if err != nil {
			return nil, false, NewTaskServiceError(
				"advance_task", "failed to create or merge task", err)
		}
		return task, created, nil
	}

	err := s.taskStore.Create(ctx, work)
	if err == nil {
		return work, true, nil
	}
	if !store.IsDuplicateError(err) {
		return nil, false, NewTaskServiceError("advance_task", "failed to create task", err)
	}

	// Conflict is the expected path for a continuation (or a race on a
	// fresh identifier): fetch the existing task and append the new user
	// message locally. A not-found here is a genuine anomaly, e.g. a
	// concurrent delete.
	existing, err := s.taskStore.Get(ctx, work.ID)
	if err != nil {
		return nil, false, NewTaskServiceError(
			"advance_task", "failed to fetch existing task after conflict", err)
	}
	existing.AppendMessage(domain.MessageRoleUser, newest.Content)
	return existing, false, nil
}

// GetTask implements TaskService.GetTask.
func (s *taskServiceImpl) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if id == "" {
		return nil, ErrInvalidRequest
	}
	task, err := s.taskStore.Get(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get_task", "failed to fetch task", err)
	}
	return task, nil
}

// sessionForgetter is implemented by generation backends that cache
// per-session state keyed by the task identifier.
type sessionForgetter interface {
	ForgetSession(sessionKey string)
}

// DeleteTask implements TaskService.DeleteTask.
func (s *taskServiceImpl) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidRequest
	}
	if err := s.taskStore.Delete(ctx, id); err != nil {
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}
	// Drop any cached backend context so a reused identifier starts a
	// fresh conversation.
	if f, ok := s.generator.(sessionForgetter); ok {
		f.ForgetSession(id)
	}
	s.logger.InfoContext(ctx, "task deleted", slog.String("task_id", id))
	return nil
}

// emit publishes a task event, logging instead of failing the operation
// when a handler errors.
func (s *taskServiceImpl) emit(ctx context.Context, eventType, taskID string, payload interface{}) {
	event, err := events.NewTaskEvent(eventType, taskID, payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build task event",
			slog.String("event_type", eventType),
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
		return
	}
	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "event handler reported error",
			slog.String("event_type", eventType),
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
	}
}

package memstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/phrazzld/converse-api/internal/domain"
	"github.com/phrazzld/converse-api/internal/store"
)

// TaskStore implements store.TaskStore backed by a map guarded by a
// single reader/writer lock. The map is never exposed; every task that
// crosses the boundary is cloned in both directions, so callers cannot
// alias canonical state. The lock is held only for the duration of the
// map access, never across generation calls.
type TaskStore struct {
	mu     sync.RWMutex
	tasks  map[string]*domain.Task
	logger *slog.Logger
}

// NewTaskStore creates an empty in-memory task store.
// If logger is nil, the default logger is used.
func NewTaskStore(logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		tasks:  make(map[string]*domain.Task),
		logger: logger.With(slog.String("component", "memstore")),
	}
}

// Ensure TaskStore implements the store interfaces.
var (
	_ store.TaskStore  = (*TaskStore)(nil)
	_ store.TaskMerger = (*TaskStore)(nil)
)

// Create implements store.TaskStore.Create.
// Returns store.ErrTaskExists if the identifier is already in use.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return store.ErrTaskExists
	}
	s.tasks[task.ID] = task.Clone()

	s.logger.Debug("task created",
		slog.String("task_id", task.ID),
		slog.Int("message_count", len(task.Messages)))
	return nil
}

// Get implements store.TaskStore.Get.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Update implements store.TaskStore.Update.
// Returns store.ErrTaskNotFound if the identifier is absent.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "update", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	s.tasks[task.ID] = task.Clone()

	s.logger.Debug("task updated",
		slog.String("task_id", task.ID),
		slog.Int("message_count", len(task.Messages)),
		slog.String("status", string(task.Status)))
	return nil
}

// Delete implements store.TaskStore.Delete.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)

	s.logger.Debug("task deleted", slog.String("task_id", id))
	return nil
}

// CreateOrMerge implements store.TaskMerger. The insert-or-merge decision
// and the write happen under one critical section, so two concurrent
// calls on the same identifier serialize and neither append is lost.
func (s *TaskStore) CreateOrMerge(
	ctx context.Context,
	task *domain.Task,
	merge store.MergeFunc,
) (*domain.Task, error) {
	if err := task.Validate(); err != nil {
		return nil, store.NewStoreError("task", "create_or_merge", "validation failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tasks[task.ID]
	if !ok {
		s.tasks[task.ID] = task.Clone()
		s.logger.Debug("task created",
			slog.String("task_id", task.ID),
			slog.Int("message_count", len(task.Messages)))
		return task.Clone(), nil
	}

	merged, err := merge(existing.Clone())
	if err != nil {
		return nil, store.NewStoreError("task", "create_or_merge", "merge failed", err)
	}
	if err := merged.Validate(); err != nil {
		return nil, store.NewStoreError("task", "create_or_merge", "merged task invalid", err)
	}
	s.tasks[task.ID] = merged.Clone()

	s.logger.Debug("task merged",
		slog.String("task_id", task.ID),
		slog.Int("message_count", len(merged.Messages)))
	return merged.Clone(), nil
}

// Len returns the number of stored tasks. Intended for tests and metrics.
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

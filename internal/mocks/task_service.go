package mocks

import (
	"context"

	"github.com/phrazzld/converse-api/internal/domain"
	"github.com/phrazzld/converse-api/internal/service"
)

// MockTaskService implements service.TaskService for handler tests.
type MockTaskService struct {
	AdvanceTaskFn func(ctx context.Context, request *domain.Task) (*domain.Task, error)
	GetTaskFn     func(ctx context.Context, id string) (*domain.Task, error)
	DeleteTaskFn  func(ctx context.Context, id string) error
}

// Ensure MockTaskService implements the service.TaskService interface.
var _ service.TaskService = (*MockTaskService)(nil)

// AdvanceTask implements service.TaskService.AdvanceTask.
func (m *MockTaskService) AdvanceTask(ctx context.Context, request *domain.Task) (*domain.Task, error) {
	if m.AdvanceTaskFn != nil {
		return m.AdvanceTaskFn(ctx, request)
	}
	return request, nil
}

// GetTask implements service.TaskService.GetTask.
func (m *MockTaskService) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, id)
	}
	return nil, service.ErrTaskNotFound
}

// DeleteTask implements service.TaskService.DeleteTask.
func (m *MockTaskService) DeleteTask(ctx context.Context, id string) error {
	if m.DeleteTaskFn != nil {
		return m.DeleteTaskFn(ctx, id)
	}
	return nil
}

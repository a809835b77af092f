package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/converse-api/internal/domain"
	"github.com/phrazzld/converse-api/internal/store"
)

// MockTaskStore implements store.TaskStore for testing. It deliberately
// does NOT implement store.TaskMerger, so service tests can exercise the
// create, fetch-on-conflict, append fallback path.
type MockTaskStore struct {
	// Function fields allow test cases to mock individual operations
	CreateFn func(ctx context.Context, task *domain.Task) error
	GetFn    func(ctx context.Context, id string) (*domain.Task, error)
	UpdateFn func(ctx context.Context, task *domain.Task) error
	DeleteFn func(ctx context.Context, id string) error

	// Call tracking for verification
	mu          sync.Mutex
	CreateCalls []*domain.Task
	GetCalls    []string
	UpdateCalls []*domain.Task
	DeleteCalls []string
}

// Ensure MockTaskStore implements the store.TaskStore interface.
var _ store.TaskStore = (*MockTaskStore)(nil)

// Create implements store.TaskStore.Create.
func (m *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, task.Clone())
	m.mu.Unlock()

	if m.CreateFn != nil {
		return m.CreateFn(ctx, task)
	}
	return nil
}

// Get implements store.TaskStore.Get.
func (m *MockTaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, id)
	m.mu.Unlock()

	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	return nil, store.ErrTaskNotFound
}

// Update implements store.TaskStore.Update.
func (m *MockTaskStore) Update(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, task.Clone())
	m.mu.Unlock()

	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, task)
	}
	return nil
}

// Delete implements store.TaskStore.Delete.
func (m *MockTaskStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, id)
	m.mu.Unlock()

	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	return nil
}

// MutationCount returns the total number of Create, Update and Delete
// calls recorded. Useful to assert that an invalid request left the
// store untouched.
func (m *MockTaskStore) MutationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CreateCalls) + len(m.UpdateCalls) + len(m.DeleteCalls)
}

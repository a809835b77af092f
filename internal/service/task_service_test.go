package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/converse-api/internal/domain"
	"github.com/phrazzld/converse-api/internal/events"
	"github.com/phrazzld/converse-api/internal/mocks"
	"github.com/phrazzld/converse-api/internal/platform/memstore"
	"github.com/phrazzld/converse-api/internal/service"
	"github.com/phrazzld/converse-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, gen *mocks.MockGenerator) (service.TaskService, *memstore.TaskStore) {
	t.Helper()
	taskStore := memstore.NewTaskStore(testLogger())
	svc, err := service.NewTaskService(taskStore, gen, nil, testLogger())
	require.NoError(t, err)
	return svc, taskStore
}

func TestNewTaskService(t *testing.T) {
	gen := &mocks.MockGenerator{Reply: "hi"}
	taskStore := memstore.NewTaskStore(testLogger())

	t.Run("nil_store", func(t *testing.T) {
		_, err := service.NewTaskService(nil, gen, nil, testLogger())
		assert.Error(t, err)
	})

	t.Run("nil_generator", func(t *testing.T) {
		_, err := service.NewTaskService(taskStore, nil, nil, testLogger())
		assert.Error(t, err)
	})

	t.Run("nil_emitter_and_logger_allowed", func(t *testing.T) {
		svc, err := service.NewTaskService(taskStore, gen, nil, nil)
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestAdvanceTaskFreshTask(t *testing.T) {
	gen := &mocks.MockGenerator{Reply: "hi there"}
	svc, _ := newTestService(t, gen)

	task, err := svc.AdvanceTask(context.Background(), domain.NewTask("", "hello"))
	require.NoError(t, err)

	// A generated identifier must be a valid UUID.
	_, parseErr := uuid.Parse(task.ID)
	assert.NoError(t, parseErr)

	require.Len(t, task.Messages, 2)
	assert.Equal(t, domain.MessageRoleUser, task.Messages[0].Role)
	assert.Equal(t, "hello", task.Messages[0].Content)
	assert.Equal(t, domain.MessageRoleAssistant, task.Messages[1].Role)
	assert.Equal(t, "hi there", task.Messages[1].Content)
	assert.Equal(t, domain.TaskStatusOK, task.Status)

	// The session key handed to the backend is the task identifier.
	assert.Equal(t, []string{task.ID}, gen.GenerateReplyCalls.SessionKeys)
	assert.Equal(t, []string{"hello"}, gen.GenerateReplyCalls.Messages)
}

func TestAdvanceTaskContinuation(t *testing.T) {
	gen := &mocks.MockGenerator{Reply: "first reply"}
	svc, taskStore := newTestService(t, gen)
	ctx := context.Background()

	first, err := svc.AdvanceTask(ctx, domain.NewTask("t1", "hello"))
	require.NoError(t, err)
	require.Len(t, first.Messages, 2)

	t.Run("success_appends_two_messages", func(t *testing.T) {
		gen.Reply = "second reply"
		second, err := svc.AdvanceTask(ctx, domain.NewTask("t1", "what's next?"))
		require.NoError(t, err)

		require.Len(t, second.Messages, 4)
		assert.Equal(t, "what's next?", second.Messages[2].Content)
		assert.Equal(t, domain.MessageRoleUser, second.Messages[2].Role)
		assert.Equal(t, "second reply", second.Messages[3].Content)
		assert.Equal(t, domain.TaskStatusOK, second.Status)
	})

	t.Run("generation_failure_appends_one_message", func(t *testing.T) {
		gen.GenerateReplyFn = func(ctx context.Context, sessionKey, message string) (string, error) {
			return "", errors.New("backend unreachable")
		}

		third, err := svc.AdvanceTask(ctx, domain.NewTask("t1", "still there?"))
		require.NoError(t, err, "generation failure is not an operation error")

		require.Len(t, third.Messages, 5)
		last, ok := third.LastMessage()
		require.True(t, ok)
		assert.Equal(t, domain.MessageRoleUser, last.Role)
		assert.Equal(t, "still there?", last.Content)
		assert.Equal(t, domain.TaskStatusError, third.Status)

		// The degraded task is persisted.
		stored, err := taskStore.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, stored.Messages, 5)
		assert.Equal(t, domain.TaskStatusError, stored.Status)
	})

	t.Run("status_recovers_on_next_success", func(t *testing.T) {
		gen.GenerateReplyFn = nil
		gen.Reply = "back again"

		fourth, err := svc.AdvanceTask(ctx, domain.NewTask("t1", "welcome back"))
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusOK, fourth.Status)
		assert.Len(t, fourth.Messages, 7)
	})
}

func TestAdvanceTaskInvalidRequest(t *testing.T) {
	gen := &mocks.MockGenerator{Reply: "hi"}
	mockStore := &mocks.MockTaskStore{}
	svc, err := service.NewTaskService(mockStore, gen, nil, testLogger())
	require.NoError(t, err)

	tests := []struct {
		name    string
		request *domain.Task
	}{
		{name: "nil_request", request: nil},
		{name: "zero_messages", request: &domain.Task{ID: "t1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AdvanceTask(context.Background(), tt.request)
			assert.ErrorIs(t, err, service.ErrInvalidRequest)
		})
	}

	// An invalid request performs no store mutation.
	assert.Equal(t, 0, mockStore.MutationCount())
	assert.Equal(t, 0, gen.CallCount())
}

// The fallback path for stores without the atomic create-or-merge
// primitive: create, conflict, fetch, local append.
func TestAdvanceTaskFallbackCreateConflict(t *testing.T) {
	existing := domain.NewTask("t1", "hello")
	existing.AppendMessage(domain.MessageRoleAssistant, "hi there")
	require.NoError(t, existing.SetStatus(domain.TaskStatusOK))

	mockStore := &mocks.MockTaskStore{
		CreateFn: func(ctx context.Context, task *domain.Task) error {
			return store.ErrTaskExists
		},
		GetFn: func(ctx context.Context, id string) (*domain.Task, error) {
			return existing.Clone(), nil
		},
	}
	gen := &mocks.MockGenerator{Reply: "of course"}
	svc, err := service.NewTaskService(mockStore, gen, nil, testLogger())
	require.NoError(t, err)

	task, err := svc.AdvanceTask(context.Background(), domain.NewTask("t1", "what's next?"))
	require.NoError(t, err)

	require.Len(t, task.Messages, 4)
	assert.Equal(t, "what's next?", task.Messages[2].Content)
	assert.Equal(t, "of course", task.Messages[3].Content)

	// The merged state was written back through Update.
	require.Len(t, mockStore.UpdateCalls, 1)
	assert.Len(t, mockStore.UpdateCalls[0].Messages, 4)
}

// A not-found during the fallback fetch is a genuine anomaly (e.g. a
// concurrent delete between the conflicting create and the fetch) and
// must surface.
func TestAdvanceTaskFallbackFetchNotFound(t *testing.T) {
	mockStore := &mocks.MockTaskStore{
		CreateFn: func(ctx context.Context, task *domain.Task) error {
			return store.ErrTaskExists
		},
		GetFn: func(ctx context.Context, id string) (*domain.Task, error) {
			return nil, store.ErrTaskNotFound
		},
	}
	gen := &mocks.MockGenerator{Reply: "hi"}
	svc, err := service.NewTaskService(mockStore, gen, nil, testLogger())
	require.NoError(t, err)

	_, err = svc.AdvanceTask(context.Background(), domain.NewTask("t1", "hello"))
	assert.ErrorIs(t, err, service.ErrTaskNotFound)
	assert.Equal(t, 0, gen.CallCount())
}

// For stores without the atomic primitive, the final persist failing
// (identifier vanished between the merge and the update) is the one case
// where the whole operation reports failure.
func TestAdvanceTaskFinalUpdateFailure(t *testing.T) {
	mockStore := &mocks.MockTaskStore{
		UpdateFn: func(ctx context.Context, task *domain.Task) error {
			return store.ErrTaskNotFound
		},
	}
	gen := &mocks.MockGenerator{Reply: "hi"}
	svc, err := service.NewTaskService(mockStore, gen, nil, testLogger())
	require.NoError(t, err)

	_, err = svc.AdvanceTask(context.Background(), domain.NewTask("t1", "hello"))
	assert.ErrorIs(t, err, service.ErrTaskNotFound)
}

// An aborted generation is treated identically to a generation failure:
// status ERROR, no assistant message, no operation error.
func TestAdvanceTaskCancelledGeneration(t *testing.T) {
	gen := &mocks.MockGenerator{
		GenerateReplyFn: func(ctx context.Context, sessionKey, message string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	svc, _ := newTestService(t, gen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task, err := svc.AdvanceTask(ctx, domain.NewTask("t1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusError, task.Status)
	require.Len(t, task.Messages, 1)
	assert.Equal(t, domain.MessageRoleUser, task.Messages[0].Role)
}

// A caller that disconnects mid-generation must still leave the ERROR
// status behind: the final persist runs on a context that survives the
// cancellation, even against a store that honors context deadlines.
func TestAdvanceTaskPersistsAfterMidTurnCancellation(t *testing.T) {
	mockStore := &mocks.MockTaskStore{
		CreateFn: func(ctx context.Context, task *domain.Task) error {
			return ctx.Err()
		},
		UpdateFn: func(ctx context.Context, task *domain.Task) error {
			return ctx.Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	gen := &mocks.MockGenerator{
		GenerateReplyFn: func(ctx context.Context, sessionKey, message string) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	svc, err := service.NewTaskService(mockStore, gen, nil, testLogger())
	require.NoError(t, err)

	task, err := svc.AdvanceTask(ctx, domain.NewTask("t1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusError, task.Status)

	require.Len(t, mockStore.UpdateCalls, 1)
	assert.Equal(t, domain.TaskStatusError, mockStore.UpdateCalls[0].Status)
}

// Two turns held in-flight on the same identifier never lose a message.
// The barrier keeps both turns inside generation until each has passed
// the initial create-or-merge, so both final persists see the other
// turn's user message; the merge-based persist must keep it.
func TestAdvanceTaskConcurrentSameIdentifier(t *testing.T) {
	const turns = 2

	var barrier sync.WaitGroup
	barrier.Add(turns)
	gen := &mocks.MockGenerator{
		GenerateReplyFn: func(ctx context.Context, sessionKey, message string) (string, error) {
			barrier.Done()
			barrier.Wait()
			return "ack", nil
		},
	}
	svc, taskStore := newTestService(t, gen)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AdvanceTask(ctx, domain.NewTask("t1", fmt.Sprintf("turn-%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := taskStore.Get(ctx, "t1")
	require.NoError(t, err)

	var userMessages, assistantMessages int
	for _, m := range final.Messages {
		switch m.Role {
		case domain.MessageRoleUser:
			userMessages++
		case domain.MessageRoleAssistant:
			assistantMessages++
		}
	}
	assert.Equal(t, turns, userMessages, "no user message may be lost")
	assert.Equal(t, turns, assistantMessages, "no assistant reply may be lost")
}

func TestAdvanceTaskEmitsEvents(t *testing.T) {
	gen := &mocks.MockGenerator{Reply: "hi there"}
	taskStore := memstore.NewTaskStore(testLogger())

	var mu sync.Mutex
	var seen []string
	emitter := events.NewInMemoryEventEmitter(testLogger())
	emitter.RegisterHandler(eventHandlerFunc(func(ctx context.Context, e *events.TaskEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.Type)
		return nil
	}))

	svc, err := service.NewTaskService(taskStore, gen, emitter, testLogger())
	require.NoError(t, err)

	_, err = svc.AdvanceTask(context.Background(), domain.NewTask("t1", "hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{events.TypeTaskCreated, events.TypeTaskAdvanced}, seen)

	gen.GenerateReplyFn = func(ctx context.Context, sessionKey, message string) (string, error) {
		return "", errors.New("backend unreachable")
	}
	seen = nil
	_, err = svc.AdvanceTask(context.Background(), domain.NewTask("t1", "again"))
	require.NoError(t, err)
	assert.Equal(t, []string{events.TypeGenerationFailed, events.TypeTaskAdvanced}, seen)
}

// eventHandlerFunc adapts a function to the events.EventHandler interface.
type eventHandlerFunc func(ctx context.Context, event *events.TaskEvent) error

func (f eventHandlerFunc) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	return f(ctx, event)
}

func TestGetTask(t *testing.T) {
	gen := &mocks.MockGenerator{Reply: "hi there"}
	svc, _ := newTestService(t, gen)
	ctx := context.Background()

	created, err := svc.AdvanceTask(ctx, domain.NewTask("t1", "hello"))
	require.NoError(t, err)

	got, err := svc.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, created.Messages, got.Messages)

	_, err = svc.GetTask(ctx, "absent")
	assert.ErrorIs(t, err, service.ErrTaskNotFound)

	_, err = svc.GetTask(ctx, "")
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
}

// forgettingGenerator records ForgetSession calls on top of MockGenerator.
type forgettingGenerator struct {
	mocks.MockGenerator
	forgotten []string
}

func (g *forgettingGenerator) ForgetSession(sessionKey string) {
	g.forgotten = append(g.forgotten, sessionKey)
}

func TestDeleteTaskForgetsBackendSession(t *testing.T) {
	gen := &forgettingGenerator{MockGenerator: mocks.MockGenerator{Reply: "hi"}}
	taskStore := memstore.NewTaskStore(testLogger())
	svc, err := service.NewTaskService(taskStore, gen, nil, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.AdvanceTask(ctx, domain.NewTask("t1", "hello"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, "t1"))
	assert.Equal(t, []string{"t1"}, gen.forgotten)

	// A failed delete leaves the backend session alone.
	assert.Error(t, svc.DeleteTask(ctx, "t1"))
	assert.Len(t, gen.forgotten, 1)
}

func TestDeleteTask(t *testing.T) {
	gen := &mocks.MockGenerator{Reply: "hi there"}
	svc, _ := newTestService(t, gen)
	ctx := context.Background()

	_, err := svc.AdvanceTask(ctx, domain.NewTask("t1", "hello"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, "t1"))
	_, err = svc.GetTask(ctx, "t1")
	assert.ErrorIs(t, err, service.ErrTaskNotFound)

	assert.ErrorIs(t, svc.DeleteTask(ctx, "t1"), service.ErrTaskNotFound)
	assert.ErrorIs(t, svc.DeleteTask(ctx, ""), service.ErrInvalidRequest)
}

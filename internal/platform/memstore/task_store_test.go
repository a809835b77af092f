package memstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/converse-api/internal/domain"
	"github.com/phrazzld/converse-api/internal/store"
)

func newTestStore() *TaskStore {
	return NewTaskStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTaskStoreCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	task := domain.NewTask("t1", "hello")
	require.NoError(t, s.Create(ctx, task))

	t.Run("duplicate_create_conflicts", func(t *testing.T) {
		err := s.Create(ctx, domain.NewTask("t1", "something else"))
		assert.ErrorIs(t, err, store.ErrTaskExists)
		assert.True(t, store.IsDuplicateError(err))
	})

	t.Run("invalid_task_rejected", func(t *testing.T) {
		err := s.Create(ctx, &domain.Task{ID: "t2"})
		assert.ErrorIs(t, err, domain.ErrEmptyMessages)
		assert.Equal(t, 1, s.Len())
	})
}

func TestTaskStoreGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Create(ctx, domain.NewTask("t1", "hello")))

	t.Run("existing", func(t *testing.T) {
		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "t1", got.ID)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "hello", got.Messages[0].Content)
	})

	t.Run("absent", func(t *testing.T) {
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("returned_task_is_a_copy", func(t *testing.T) {
		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)

		got.AppendMessage(domain.MessageRoleUser, "mutated")
		got.Messages[0].Content = "rewritten"

		fresh, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		require.Len(t, fresh.Messages, 1)
		assert.Equal(t, "hello", fresh.Messages[0].Content)
	})
}

func TestTaskStoreUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	task := domain.NewTask("t1", "hello")
	require.NoError(t, s.Create(ctx, task))

	t.Run("existing", func(t *testing.T) {
		task.AppendMessage(domain.MessageRoleAssistant, "hi there")
		require.NoError(t, task.SetStatus(domain.TaskStatusOK))
		require.NoError(t, s.Update(ctx, task))

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, got.Messages, 2)
		assert.Equal(t, domain.TaskStatusOK, got.Status)
	})

	t.Run("absent", func(t *testing.T) {
		err := s.Update(ctx, domain.NewTask("nope", "hello"))
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestTaskStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Create(ctx, domain.NewTask("t1", "hello")))

	require.NoError(t, s.Delete(ctx, "t1"))
	_, err := s.Get(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "t1"), store.ErrTaskNotFound)
}

func TestTaskStoreCreateOrMerge(t *testing.T) {
	ctx := context.Background()

	t.Run("creates_when_absent", func(t *testing.T) {
		s := newTestStore()
		task := domain.NewTask("t1", "hello")

		got, err := s.CreateOrMerge(ctx, task, func(existing *domain.Task) (*domain.Task, error) {
			t.Fatal("merge must not run on create")
			return existing, nil
		})
		require.NoError(t, err)
		assert.Len(t, got.Messages, 1)
	})

	t.Run("merges_when_present", func(t *testing.T) {
		s := newTestStore()
		require.NoError(t, s.Create(ctx, domain.NewTask("t1", "hello")))

		got, err := s.CreateOrMerge(ctx, domain.NewTask("t1", "again"),
			func(existing *domain.Task) (*domain.Task, error) {
				existing.AppendMessage(domain.MessageRoleUser, "again")
				return existing, nil
			})
		require.NoError(t, err)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, "hello", got.Messages[0].Content)
		assert.Equal(t, "again", got.Messages[1].Content)
	})

	t.Run("merge_error_leaves_store_unchanged", func(t *testing.T) {
		s := newTestStore()
		require.NoError(t, s.Create(ctx, domain.NewTask("t1", "hello")))

		_, err := s.CreateOrMerge(ctx, domain.NewTask("t1", "again"),
			func(existing *domain.Task) (*domain.Task, error) {
				return nil, fmt.Errorf("merge exploded")
			})
		require.Error(t, err)

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, got.Messages, 1)
	})
}

// Two concurrent create-or-merge calls on the same fresh identifier must
// both land: one creates, the other merges, and no append is lost. This
// is the scenario the plain create/fetch/update sequence gets wrong.
func TestTaskStoreCreateOrMergeConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := fmt.Sprintf("turn-%d", i)
			_, err := s.CreateOrMerge(ctx, domain.NewTask("t1", content),
				func(existing *domain.Task) (*domain.Task, error) {
					existing.AppendMessage(domain.MessageRoleUser, content)
					return existing, nil
				})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, callers)
}

func TestTaskStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("task-%d", i)
			require.NoError(t, s.Create(ctx, domain.NewTask(id, "hello")))

			got, err := s.Get(ctx, id)
			require.NoError(t, err)

			got.AppendMessage(domain.MessageRoleAssistant, "hi there")
			require.NoError(t, got.SetStatus(domain.TaskStatusOK))
			require.NoError(t, s.Update(ctx, got))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, s.Len())
	for i := 0; i < workers; i++ {
		got, err := s.Get(ctx, fmt.Sprintf("task-%d", i))
		require.NoError(t, err)
		assert.Len(t, got.Messages, 2)
		assert.Equal(t, domain.TaskStatusOK, got.Status)
	}
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/converse-api/internal/domain"
	"github.com/phrazzld/converse-api/internal/platform/logger"
	"github.com/phrazzld/converse-api/internal/store"
)

// PostgreSQL error codes
const pgUniqueViolationCode = "23505"

// TaskStore implements the store.TaskStore interface using a PostgreSQL
// database. The message history is stored as a JSONB column, so a task
// row is always written and read as a whole.
type TaskStore struct {
	db     store.DBTX
	sqlDB  *sql.DB // non-nil only when bound to a connection, not a transaction
	logger *slog.Logger
}

// NewTaskStore creates a new PostgreSQL implementation of the task store.
// If logger is nil, a default logger will be used.
func NewTaskStore(db *sql.DB, logger *slog.Logger) *TaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		sqlDB:  db,
		logger: logger.With(slog.String("component", "postgres_task_store")),
	}
}

// WithTx returns a new TaskStore instance bound to the provided
// transaction. The transaction is created and managed by the caller.
func (s *TaskStore) WithTx(tx *sql.Tx) *TaskStore {
	return &TaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// Ensure TaskStore implements the store interfaces.
var (
	_ store.TaskStore  = (*TaskStore)(nil)
	_ store.TaskMerger = (*TaskStore)(nil)
)

// Create implements store.TaskStore.Create.
// Returns store.ErrTaskExists on a unique violation.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", err)
	}

	messages, err := json.Marshal(task.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal task messages: %w", err)
	}

	query := `
		INSERT INTO tasks (id, messages, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		messages,
		string(task.Status),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			return store.ErrTaskExists
		}
		log.Error("failed to create task",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()))
		return err
	}

	log.Debug("task created", slog.String("task_id", task.ID))
	return nil
}

// Get implements store.TaskStore.Get.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	query := `
		SELECT id, messages, status, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`
	return s.scanTask(ctx, s.db.QueryRowContext(ctx, query, id))
}

// Update implements store.TaskStore.Update.
// Returns store.ErrTaskNotFound if the identifier is absent.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "update", "validation failed", err)
	}

	messages, err := json.Marshal(task.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal task messages: %w", err)
	}

	query := `
		UPDATE tasks
		SET messages = $2, status = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		task.ID,
		messages,
		string(task.Status),
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to update task",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}

	log.Debug("task updated",
		slog.String("task_id", task.ID),
		slog.String("status", string(task.Status)))
	return nil
}

// Delete implements store.TaskStore.Delete.
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("task_id", id),
			slog.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrTaskNotFound
	}

	log.Debug("task deleted", slog.String("task_id", id))
	return nil
}

// CreateOrMerge implements store.TaskMerger. The whole insert-or-merge
// runs in one transaction; the existing row is locked with FOR UPDATE so
// concurrent merges on the same identifier serialize.
func (s *TaskStore) CreateOrMerge(
	ctx context.Context,
	task *domain.Task,
	merge store.MergeFunc,
) (*domain.Task, error) {
	if s.sqlDB == nil {
		return nil, store.NewStoreError("task", "create_or_merge",
			"store is transaction-bound", errors.New("CreateOrMerge requires a connection-bound store"))
	}
	if err := task.Validate(); err != nil {
		return nil, store.NewStoreError("task", "create_or_merge", "validation failed", err)
	}

	var result *domain.Task
	err := store.RunInTransaction(ctx, s.sqlDB, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.WithTx(tx)

		messages, err := json.Marshal(task.Messages)
		if err != nil {
			return fmt.Errorf("failed to marshal task messages: %w", err)
		}

		insert := `
			INSERT INTO tasks (id, messages, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`
		res, err := tx.ExecContext(ctx, insert,
			task.ID,
			messages,
			string(task.Status),
			task.CreatedAt,
			task.UpdatedAt,
		)
		if err != nil {
			return err
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if inserted == 1 {
			result = task.Clone()
			return nil
		}

		lock := `
			SELECT id, messages, status, created_at, updated_at
			FROM tasks
			WHERE id = $1
			FOR UPDATE
		`
		existing, err := s.scanTask(ctx, tx.QueryRowContext(ctx, lock, task.ID))
		if err != nil {
			return err
		}

		merged, err := merge(existing)
		if err != nil {
			return store.NewStoreError("task", "create_or_merge", "merge failed", err)
		}
		if err := merged.Validate(); err != nil {
			return store.NewStoreError("task", "create_or_merge", "merged task invalid", err)
		}
		if err := txStore.Update(ctx, merged); err != nil {
			return err
		}
		result = merged.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scanTask reads one task row, decoding the JSONB message history.
func (s *TaskStore) scanTask(ctx context.Context, row *sql.Row) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var task domain.Task
	var messages []byte
	var status string

	err := row.Scan(&task.ID, &messages, &status, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to scan task row", slog.String("error", err.Error()))
		return nil, err
	}

	if err := json.Unmarshal(messages, &task.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task messages: %w", err)
	}
	task.Status = domain.TaskStatus(status)
	return &task, nil
}

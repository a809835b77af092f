package store

import (
	"context"

	"github.com/phrazzld/converse-api/internal/domain"
)

// TaskStore defines the interface for task persistence.
//
// All four operations must be linearizable with respect to each other on
// the same identifier: no caller may observe a partial write. Implementations
// must return defensive copies; mutating a returned task must never change
// the stored value until it is written back through Update.
type TaskStore interface {
	// Create saves a new task to the store.
	// The task must be valid according to domain validation rules.
	// Returns ErrTaskExists if a task with the same identifier is
	// already present.
	Create(ctx context.Context, task *domain.Task) error

	// Get retrieves a task by its unique identifier.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// Update replaces the stored task atomically with respect to other
	// store operations. Returns ErrTaskNotFound if the identifier is
	// absent.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes a task from the store by its identifier.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id string) error
}

// MergeFunc reconciles an incoming task with the task already stored
// under the same identifier. It receives a copy of the existing task,
// mutates or replaces it, and returns the value to persist. Returning
// an error aborts the upsert without modifying the store.
type MergeFunc func(existing *domain.Task) (*domain.Task, error)

// TaskMerger is an optional TaskStore capability: a single atomic
// create-or-merge primitive. Without it, callers are forced into a
// create, fetch-on-conflict, update sequence whose window between
// steps loses concurrent appends. Implementations must run the whole
// operation under the same exclusion that guards Create and Update on
// the identifier.
type TaskMerger interface {
	// CreateOrMerge inserts the task if its identifier is absent.
	// Otherwise it applies merge to the current stored value and
	// persists the result. The returned task is a copy of whatever
	// was persisted.
	CreateOrMerge(ctx context.Context, task *domain.Task, merge MergeFunc) (*domain.Task, error)
}

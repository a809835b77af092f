package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task lifecycle event types emitted by the orchestration service.
const (
	// TypeTaskCreated is emitted when a task identifier is stored for the
	// first time.
	TypeTaskCreated = "task.created"

	// TypeTaskAdvanced is emitted after a conversation turn completes and
	// the final task state has been persisted.
	TypeTaskAdvanced = "task.advanced"

	// TypeGenerationFailed is emitted when the generation backend fails
	// for a turn. The turn itself still completes with status ERROR.
	TypeGenerationFailed = "generation.failed"
)

// TaskEvent describes something that happened to a task. It carries the
// task identifier and a type-specific JSON payload so handlers have no
// direct dependency on the service layer.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants above
	Type string `json:"type"`

	// TaskID identifies the task the event refers to
	TaskID string `json:"task_id"`

	// Payload contains event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskEvent creates a new TaskEvent with the specified type, task
// identifier and payload. A nil payload is allowed.
func NewTaskEvent(eventType, taskID string, payload interface{}) (*TaskEvent, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = b
	}

	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    taskID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}

package domain

import (
	"errors"
	"time"
)

// MessageRole identifies which side of the conversation produced a message.
type MessageRole string

// Possible message roles.
const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// TaskStatus reflects the outcome of the most recent generation attempt
// for a task. A task starts with an unset status and oscillates between
// OK and ERROR across turns; there is no terminal state.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusUnset TaskStatus = ""
	TaskStatusOK    TaskStatus = "OK"
	TaskStatusError TaskStatus = "ERROR"
)

// Common validation errors for Task and Message.
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyMessages     = errors.New("task must have at least one message")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidRole       = errors.New("invalid message role")
	ErrEmptyContent      = errors.New("message content cannot be empty")
)

// Message is one turn in a conversation. Messages are immutable once
// appended to a task.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Validate checks if the Message has valid data.
func (m Message) Validate() error {
	if m.Role != MessageRoleUser && m.Role != MessageRoleAssistant {
		return ErrInvalidRole
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// Task is a persistent conversation thread identified by a unique key.
// Its message history is append-only: messages are never removed or
// rewritten except through deletion of the whole task.
type Task struct {
	ID        string     `json:"id"`
	Messages  []Message  `json:"messages"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewTask creates a new Task with the given identifier and a single seed
// message from the user. The identifier may be empty; the orchestration
// layer assigns one before the task reaches a store.
func NewTask(id string, content string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID: id,
		Messages: []Message{
			{Role: MessageRoleUser, Content: content},
		},
		Status:    TaskStatusUnset,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks if the Task has valid data. A task is only valid for
// persistence once it carries a non-empty identifier and at least one
// well-formed message.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrEmptyTaskID
	}
	if len(t.Messages) == 0 {
		return ErrEmptyMessages
	}
	for _, m := range t.Messages {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	return nil
}

// AppendMessage adds a message to the end of the task's history and
// updates the UpdatedAt timestamp. The existing history is never
// reordered or truncated.
func (t *Task) AppendMessage(role MessageRole, content string) {
	t.Messages = append(t.Messages, Message{Role: role, Content: content})
	t.UpdatedAt = time.Now().UTC()
}

// LastMessage returns the most recent message in the task's history,
// or the zero Message and false if the history is empty.
func (t *Task) LastMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// SetStatus updates the task's status and the UpdatedAt timestamp.
func (t *Task) SetStatus(status TaskStatus) error {
	if !isValidTaskStatus(status) {
		return ErrInvalidTaskStatus
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy of the task. Stores hand out clones so that
// callers can never mutate canonical state through a returned reference.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Messages = make([]Message, len(t.Messages))
	copy(c.Messages, t.Messages)
	return &c
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusUnset, TaskStatusOK, TaskStatusError:
		return true
	default:
		return false
	}
}

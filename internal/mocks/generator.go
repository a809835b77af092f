package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/converse-api/internal/generation"
)

// MockGenerator implements generation.Generator for testing.
type MockGenerator struct {
	// GenerateReplyFn allows test cases to mock the GenerateReply behavior
	GenerateReplyFn func(ctx context.Context, sessionKey, message string) (string, error)

	// Default response values used when GenerateReplyFn is nil
	Reply string
	Err   error

	// Call tracking for verification
	GenerateReplyCalls struct {
		// mu protects the call tracking state for concurrent test cases
		mu sync.Mutex

		// Count tracks how many times GenerateReply was called
		Count int

		// SessionKeys contains all session keys passed to GenerateReply calls
		SessionKeys []string

		// Messages contains all messages passed to GenerateReply calls
		Messages []string
	}
}

// Ensure MockGenerator implements the generation.Generator interface.
var _ generation.Generator = (*MockGenerator)(nil)

// GenerateReply implements the generation.Generator interface.
func (m *MockGenerator) GenerateReply(ctx context.Context, sessionKey, message string) (string, error) {
	m.GenerateReplyCalls.mu.Lock()
	m.GenerateReplyCalls.Count++
	m.GenerateReplyCalls.SessionKeys = append(m.GenerateReplyCalls.SessionKeys, sessionKey)
	m.GenerateReplyCalls.Messages = append(m.GenerateReplyCalls.Messages, message)
	m.GenerateReplyCalls.mu.Unlock()

	if m.GenerateReplyFn != nil {
		return m.GenerateReplyFn(ctx, sessionKey, message)
	}
	return m.Reply, m.Err
}

// CallCount returns the number of GenerateReply calls recorded so far.
func (m *MockGenerator) CallCount() int {
	m.GenerateReplyCalls.mu.Lock()
	defer m.GenerateReplyCalls.mu.Unlock()
	return m.GenerateReplyCalls.Count
}

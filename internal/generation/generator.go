package generation

import "context"

// Generator defines the interface for producing assistant replies.
// This interface serves as a boundary between the application core and
// external AI/LLM services, following the hexagonal architecture pattern.
//
// Implementations perform no retries; retry policy, if any, belongs to
// the caller. Beyond the returned reply they must not mutate state
// observable by the orchestration service.
type Generator interface {
	// GenerateReply sends the latest user message to the backend and
	// returns the generated reply text.
	//
	// The session key is the task identifier; backends use it to
	// maintain their own per-session conversation context. The context
	// can be used for cancellation, which must abort the call promptly.
	GenerateReply(ctx context.Context, sessionKey string, message string) (string, error)
}

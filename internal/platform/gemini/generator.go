package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/converse-api/internal/config"
	"github.com/phrazzld/converse-api/internal/generation"
	"google.golang.org/genai"
)

// Generator implements generation.Generator using Google's Gemini API.
//
// It keeps one chat per session key so the backend sees the full
// multi-turn context of a task. The chat map is internal bookkeeping
// only; callers observe nothing beyond the returned reply.
type Generator struct {
	logger *slog.Logger
	client *genai.Client
	model  string

	mu    sync.Mutex
	chats map[string]*genai.Chat
}

// NewGenerator creates a Gemini-backed generator with the provided
// dependencies. It validates the LLM configuration and initializes the
// genai client.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger: logger.With(slog.String("component", "gemini_generator")),
		client: client,
		model:  cfg.ModelName,
		chats:  make(map[string]*genai.Chat),
	}, nil
}

// Ensure Generator implements the generation.Generator interface.
var _ generation.Generator = (*Generator)(nil)

// GenerateReply implements generation.Generator.
//
// No retries are performed here; a failed call is reported to the caller,
// which decides how to absorb or surface it.
func (g *Generator) GenerateReply(ctx context.Context, sessionKey string, message string) (string, error) {
	if message == "" {
		return "", generation.ErrEmptyMessage
	}

	chat, err := g.sessionChat(ctx, sessionKey)
	if err != nil {
		return "", err
	}

	g.logger.DebugContext(ctx, "calling Gemini API",
		slog.String("session_key", sessionKey),
		slog.Int("message_length", len(message)))

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty reply text", generation.ErrInvalidResponse)
	}

	g.logger.DebugContext(ctx, "Gemini API call successful",
		slog.String("session_key", sessionKey),
		slog.Int("reply_length", len(text)))
	return text, nil
}

// sessionChat returns the chat associated with the session key, creating
// it on first use. The SDK chat object accumulates the conversation
// history that gives the backend its per-session context.
func (g *Generator) sessionChat(ctx context.Context, sessionKey string) (*genai.Chat, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if chat, ok := g.chats[sessionKey]; ok {
		return chat, nil
	}

	chat, err := g.client.Chats.Create(ctx, g.model, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create chat session: %v",
			generation.ErrGenerationFailed, err)
	}
	g.chats[sessionKey] = chat
	return chat, nil
}

// ForgetSession drops the cached chat for a session key. Called when the
// corresponding task is deleted so a reused identifier starts a fresh
// backend context.
func (g *Generator) ForgetSession(sessionKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.chats, sessionKey)
}

package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/phrazzld/converse-api/internal/config"
	"github.com/phrazzld/converse-api/internal/generation"
)

// defaultMaxTokens caps the length of a single generated reply.
const defaultMaxTokens = 4096

// Generator implements generation.Generator using the Anthropic Messages
// API. The API is stateless, so the generator keeps a per-session message
// history keyed by session key and replays it on every call.
type Generator struct {
	logger *slog.Logger
	client anthropic.Client
	model  anthropic.Model

	mu       sync.Mutex
	sessions map[string][]anthropic.MessageParam
}

// NewGenerator creates an Anthropic-backed generator with the provided
// dependencies. It validates the LLM configuration.
func NewGenerator(logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	return &Generator{
		logger:   logger.With(slog.String("component", "anthropic_generator")),
		client:   client,
		model:    anthropic.Model(cfg.ModelName),
		sessions: make(map[string][]anthropic.MessageParam),
	}, nil
}

// Ensure Generator implements the generation.Generator interface.
var _ generation.Generator = (*Generator)(nil)

// GenerateReply implements generation.Generator. No retries are performed.
func (g *Generator) GenerateReply(ctx context.Context, sessionKey string, message string) (string, error) {
	if message == "" {
		return "", generation.ErrEmptyMessage
	}

	history := g.sessionHistory(sessionKey)
	messages := append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))

	g.logger.DebugContext(ctx, "calling Anthropic API",
		slog.String("session_key", sessionKey),
		slog.Int("history_length", len(history)))

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: defaultMaxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply.WriteString(variant.Text)
		}
	}
	if reply.Len() == 0 {
		return "", fmt.Errorf("%w: no text content in response", generation.ErrInvalidResponse)
	}

	text := reply.String()
	g.rememberExchange(sessionKey, message, text)

	g.logger.DebugContext(ctx, "Anthropic API call successful",
		slog.String("session_key", sessionKey),
		slog.Int("reply_length", len(text)))
	return text, nil
}

// sessionHistory returns a copy of the recorded history for the session.
func (g *Generator) sessionHistory(sessionKey string) []anthropic.MessageParam {
	g.mu.Lock()
	defer g.mu.Unlock()

	history := g.sessions[sessionKey]
	out := make([]anthropic.MessageParam, len(history))
	copy(out, history)
	return out
}

// rememberExchange records a completed user/assistant exchange. Failed
// calls are not recorded, so a retry by the caller replays the same
// context the failed attempt saw.
func (g *Generator) rememberExchange(sessionKey, userMessage, assistantReply string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessions[sessionKey] = append(g.sessions[sessionKey],
		anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		anthropic.NewAssistantMessage(anthropic.NewTextBlock(assistantReply)),
	)
}

// ForgetSession drops the recorded history for a session key.
func (g *Generator) ForgetSession(sessionKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sessionKey)
}

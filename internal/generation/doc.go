// Package generation provides interfaces and error types for interacting
// with external AI/LLM services. It abstracts the details of backend API
// integration (Gemini, Anthropic), allowing the orchestration service to
// produce assistant replies without coupling to a specific provider.
package generation

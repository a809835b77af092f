// Package anthropic implements the generation.Generator interface using
// the Anthropic Messages API.
package anthropic

// Package gemini implements the generation.Generator interface using
// Google's Gemini API via the google.golang.org/genai SDK.
package gemini

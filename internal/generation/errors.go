package generation

import "errors"

// Common errors returned by generation backends.
var (
	// ErrGenerationFailed is returned when reply generation fails for any general reason.
	ErrGenerationFailed = errors.New("failed to generate reply")

	// ErrInvalidResponse is returned when the backend response cannot be parsed or is malformed.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the backend blocks the content due to safety filters.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrInvalidConfig is returned when the generator configuration is invalid.
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrEmptyMessage is returned when the caller provides an empty message.
	ErrEmptyMessage = errors.New("message cannot be empty")
)

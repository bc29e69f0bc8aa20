package errors

import "fmt"

// ErrorType represents different classes of fetch failures
type ErrorType string

const (
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeProtected ErrorType = "protected"
	ErrorTypeEmpty     ErrorType = "empty_response"
	ErrorTypeParsing   ErrorType = "parsing"
	ErrorTypeLocalIO   ErrorType = "local_io"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified extraction failure. Message always carries the
// original diagnostic text from the extractor; Hint is the user-facing
// suggestion derived from it.
type Error struct {
	Type    ErrorType
	Message string
	Hint    string
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s [Hint: %s]", e.Message, e.Hint)
	}
	return e.Message
}

// New creates a classified error.
func New(t ErrorType, message, hint string) *Error {
	return &Error{Type: t, Message: message, Hint: hint}
}

// IsRetryable checks if an error type is transient and worth retrying
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsAuthClass reports whether the error invalidates the credential.
// Partially fetched data under a bad token is treated as unreliable,
// so auth failures force a task to failed regardless of item count.
func IsAuthClass(errorType ErrorType) bool {
	return errorType == ErrorTypeAuth
}

// IsTerminal reports error types that retrying with the same
// parameters cannot fix.
func IsTerminal(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeProtected:
		return true
	default:
		return false
	}
}

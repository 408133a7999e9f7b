package domain

import "errors"

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrNoActiveTodo = errors.New("job has no current todo")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownTool  = errors.New("unknown tool")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

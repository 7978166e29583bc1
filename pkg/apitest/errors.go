package apitest

import (
	"errors"
	"fmt"
)

// ValidationError represents a validation failure on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Errors returned while loading suite files.
var (
	ErrFileNotFound = errors.New("suite file not found")
	ErrEmptyFile    = errors.New("suite file is empty")
	ErrInvalidJSON  = errors.New("invalid JSON syntax")
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
	ErrNoFiles      = errors.New("no suite files matched")
)

func fieldError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

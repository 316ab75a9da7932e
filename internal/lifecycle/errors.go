package lifecycle

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound            = errors.New("assessment session not found")
	ErrInvalidTransition   = errors.New("invalid session transition")
	ErrConcurrencyConflict = errors.New("session was modified concurrently")
	ErrResultsNotReady     = errors.New("results are available once the session has ended")
	ErrAlreadyExists       = errors.New("a session already exists for this application")
)

// ValidationError reports malformed input, keyed by field path.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a message for field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

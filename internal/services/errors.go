package services

import (
	"errors"
	"fmt"
	"strings"
)

// Service errors. Handlers map them to HTTP status codes with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrEntityNotFound     = fmt.Errorf("entity %w", ErrNotFound)
	ErrVersionNotFound    = fmt.Errorf("version %w", ErrNotFound)
	ErrNotPublished       = fmt.Errorf("published version %w", ErrNotFound)
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrOperationFailed    = errors.New("operation failed")
	ErrPublishingDisabled = errors.New("publishing is not configured")
)

// OperationError wraps an unexpected failure with the operation context, so a log line
// or response is diagnosable without a stack trace.
// It matches both ErrOperationFailed and the underlying cause.
type OperationError struct {
	Op            string
	Kind          string
	EntityID      int64
	VersionNumber int
	Err           error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed for ")
	b.WriteString(e.Kind)
	if e.EntityID > 0 {
		fmt.Fprintf(&b, " %d", e.EntityID)
	}
	if e.VersionNumber > 0 {
		fmt.Fprintf(&b, " version %d", e.VersionNumber)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap exposes ErrOperationFailed and the cause to errors.Is / errors.As.
func (e *OperationError) Unwrap() []error {
	return []error{ErrOperationFailed, e.Err}
}

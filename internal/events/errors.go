package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for missing events and for events the caller may not see.
	ErrNotFound = errors.New("event not found")
	// ErrLocked is returned when another user holds a live editing lock.
	ErrLocked = errors.New("event is locked by another user")
)

// LockedError carries the current holder of a lock that blocked an edit.
type LockedError struct {
	Holder     uuid.UUID
	AcquiredAt time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("event is locked by %s", e.Holder)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// ValidationError reports an input that violates an event invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

package journal

import (
	"errors"
	"fmt"
)

// UsageError reports a call the journal refused because the caller broke its
// protocol: appending with no open action, undoing while an action is open,
// passing a nil target. The history is left untouched.
type UsageError struct {
	// Code identifies the error category.
	Code UsageErrorCode

	// Op is the journal method that refused the call.
	Op string

	// Message is a human-readable description.
	Message string
}

// UsageErrorCode categorizes usage errors.
type UsageErrorCode string

const (
	// ErrCodeNoOpenAction indicates an append or commit with depth == 0.
	ErrCodeNoOpenAction UsageErrorCode = "NO_OPEN_ACTION"

	// ErrCodeActionOpen indicates undo, redo, clear or a query that requires
	// depth == 0 was called while an action is open.
	ErrCodeActionOpen UsageErrorCode = "ACTION_OPEN"

	// ErrCodeNilTarget indicates a nil target object.
	ErrCodeNilTarget UsageErrorCode = "NIL_TARGET"

	// ErrCodeNilCallable indicates a nil lambda or composite.
	ErrCodeNilCallable UsageErrorCode = "NIL_CALLABLE"

	// ErrCodeNoActionSlot indicates the open action is missing from the
	// history at cursor+1.
	ErrCodeNoActionSlot UsageErrorCode = "NO_ACTION_SLOT"

	// ErrCodeTooManyArgs indicates more than MaxMethodArgs method arguments.
	ErrCodeTooManyArgs UsageErrorCode = "TOO_MANY_ARGS"

	// ErrCodeDispatching indicates a call that opens an action or moves the
	// cursor, made from code running inside dispatch.
	ErrCodeDispatching UsageErrorCode = "DISPATCHING"
)

// Sentinels for errors.Is. A UsageError matches the sentinel with the same code.
var (
	ErrNoOpenAction = &UsageError{Code: ErrCodeNoOpenAction}
	ErrActionOpen   = &UsageError{Code: ErrCodeActionOpen}
	ErrNilTarget    = &UsageError{Code: ErrCodeNilTarget}
	ErrNilCallable  = &UsageError{Code: ErrCodeNilCallable}
	ErrNoActionSlot = &UsageError{Code: ErrCodeNoActionSlot}
	ErrTooManyArgs  = &UsageError{Code: ErrCodeTooManyArgs}
	ErrDispatching  = &UsageError{Code: ErrCodeDispatching}
)

// Error implements the error interface.
func (e *UsageError) Error() string {
	if e.Op == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Message)
}

// Is reports whether target is a UsageError with the same code.
func (e *UsageError) Is(target error) bool {
	t, ok := target.(*UsageError)
	return ok && t.Code == e.Code
}

// IsUsageError returns true if err is or wraps a UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// CodeOf returns the usage error code carried by err.
func CodeOf(err error) (UsageErrorCode, bool) {
	var ue *UsageError
	if errors.As(err, &ue) {
		return ue.Code, true
	}
	return "", false
}

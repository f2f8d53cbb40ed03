package connectivity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when a relationship side is already occupied.
	ErrInvalidState = errors.New("invalid relationship state")
	// ErrNotFound is returned by stores for unknown objects.
	ErrNotFound = errors.New("object not found")
)

// Validation error codes reported to the user.
const (
	CodePortConnected     = "port_connected"
	CodePortMirrored      = "port_mirrored"
	CodeFiberConnected    = "fiber_connected"
	CodeFiberNotConnected = "fiber_not_connected"
	CodeLeftoverFiber     = "leftover_fiber"
	CodeNoParent          = "no_parent"
	CodeNotContinuous     = "path_not_continuous"
	CodeNoCommonParent    = "no_common_parent"
	CodeEmptySelection    = "empty_selection"
	CodeInvalidGesture    = "invalid_gesture"
	CodeWrongClass        = "wrong_class"
	CodeNotInLocation     = "not_in_location"
)

// ValidationError aborts a user gesture without changing state.
type ValidationError struct {
	Code    string
	Message string
	Subject *Ref
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Invalid(code string, subject *Ref, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...), Subject: subject}
}

// PersistenceError wraps a failure reported by the store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persist wraps err as a PersistenceError unless it already is one or is a
// ValidationError.
func Persist(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

package room

import "errors"

var (
	// ErrNotFound means the room (or the user) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller is not bound to the room or the room state
	// disallows the operation.
	ErrForbidden = errors.New("operation not allowed")

	// ErrConflict means an optimistic transaction lost a race. Callers may retry.
	ErrConflict = errors.New("conflict")
)

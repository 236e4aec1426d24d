package driver

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoSuchElement = errors.New("no such element")
	// ErrStaleElement is returned when a handle outlived the document it came from.
	ErrStaleElement  = errors.New("stale element reference")
	ErrNoSuchFrame   = errors.New("no such frame")
	ErrSessionClosed = errors.New("session closed")
)

// SessionError marks a failure of the browser transport itself: a dead
// process, a broken protocol connection or a navigation that never committed.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// WrapSession wraps err as a SessionError unless it is nil, already a
// SessionError, or a plain context expiry of the caller.
func WrapSession(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SessionError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &SessionError{Op: op, Err: err}
}

// IsSessionFailure reports whether err originated in the browser transport.
func IsSessionFailure(err error) bool {
	var se *SessionError
	return errors.As(err, &se) || errors.Is(err, ErrSessionClosed)
}

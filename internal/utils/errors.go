package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can map them onto transport codes.
type ErrorKind string

const (
	KindInvalidEvent       ErrorKind = "InvalidEvent"
	KindInvariantViolation ErrorKind = "InvariantViolation"
	KindNotFound           ErrorKind = "NotFound"
	KindUnavailable        ErrorKind = "Unavailable"
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Kind ErrorKind
	Op   string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(kind ErrorKind, op, msg string, err error) error {
	return &AppError{Kind: kind, Op: op, Msg: msg, Err: err}
}

// IsKind reports whether any AppError in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Kind == kind {
			return true
		}
		err = appErr.Err
	}
	return false
}

package action

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed dispatch
type ErrorKind string

const (
	ErrNoActiveTab         ErrorKind = "NoActiveTab"
	ErrInaccessiblePage    ErrorKind = "InaccessiblePage"
	ErrInjectionFailed     ErrorKind = "InjectionFailed"
	ErrExecutorUnreachable ErrorKind = "ExecutorUnreachable"
	ErrElementNotFound     ErrorKind = "ElementNotFound"
	ErrInvalidTarget       ErrorKind = "InvalidTarget"
	ErrCaptureError        ErrorKind = "CaptureError"
	ErrUnknownActionKind   ErrorKind = "UnknownActionKind"

	// ErrTaskStopped refuses actions that arrive after the task was stopped
	ErrTaskStopped ErrorKind = "TaskStopped"
)

// Error is a classified failure carrying a human readable message
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds a classified error
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or "" if err is not classified
func KindOf(err error) ErrorKind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

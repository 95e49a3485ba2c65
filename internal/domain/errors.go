package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures for partial-success reports and transport mapping
type ErrorCode string

const (
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	CodeConcurrentConflict ErrorCode = "CONCURRENT_CONFLICT"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

var (
	// ErrNotFound is returned when a symbol or position is absent
	ErrNotFound = errors.New("not found")
	// ErrPersistence is returned when the store rejects a read or write
	ErrPersistence = errors.New("persistence failure")
	// ErrConcurrentConflict is returned when two writers raced on one position
	ErrConcurrentConflict = errors.New("concurrent conflict")
	// ErrInvalidInput is returned by validating entry points (manual edits, transport)
	ErrInvalidInput = errors.New("invalid input")
)

// Error is a classified error carrying a code and a message
type Error struct {
	Err     error
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As support
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error that corresponds to the code
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Code)
}

// NewError creates a classified error with no cause
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError classifies an existing error
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the classification of err.
// Classified errors report their own code, sentinel errors map to theirs and
// anything else is an internal error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConcurrentConflict):
		return CodeConcurrentConflict
	case errors.Is(err, ErrPersistence):
		return CodePersistenceFailure
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	}
	return CodeInternal
}

func sentinelFor(code ErrorCode) error {
	switch code {
	case CodeNotFound:
		return ErrNotFound
	case CodePersistenceFailure:
		return ErrPersistence
	case CodeConcurrentConflict:
		return ErrConcurrentConflict
	case CodeInvalidInput:
		return ErrInvalidInput
	}
	return nil
}

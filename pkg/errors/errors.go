// Package errors holds the sentinel errors shared by the indexing pipeline
// and a small wrapper that attaches context to them.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
	ErrPostingExists    = errors.New("posting already exists for document and word")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCorruptSegment   = errors.New("corrupt segment")
)

// AppError wraps a sentinel with a human-readable message.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Is reports whether any error in err's chain matches target. It is a
// re-export so callers importing this package under the errors name keep
// access to the standard helper.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is the standard errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

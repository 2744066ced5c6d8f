// internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeUnreadable       ErrorType = "UNREADABLE"
	ErrorTypeNoSuchRepository ErrorType = "NO_SUCH_REPOSITORY"
	ErrorTypeNoSuchDirectory  ErrorType = "NO_SUCH_DIRECTORY"
	ErrorTypeCorruptIndex     ErrorType = "CORRUPT_INDEX"
	ErrorTypeWriteFailed      ErrorType = "WRITE_FAILED"
	ErrorTypeDeletionConflict ErrorType = "DELETION_CONFLICT"
	ErrorTypeNoSuchEntry      ErrorType = "NO_SUCH_ENTRY"
	ErrorTypeInvalidPath      ErrorType = "INVALID_PATH"
)

// Error is the typed error returned by every package of the engine.
// The type survives wrapping with fmt.Errorf("...: %w", err).
type Error struct {
	Type    ErrorType `json:"type"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// TypeOf returns the ErrorType carried by err, or "" when err holds none.
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ""
}

func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

func NotFound(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: "path not found",
		Path:    path,
		Err:     err,
	}
}

func Unreadable(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeUnreadable,
		Message: "cannot read content",
		Path:    path,
		Err:     err,
	}
}

func NoSuchRepository(path string) *Error {
	return &Error{
		Type:    ErrorTypeNoSuchRepository,
		Message: "not a repository (or any of the parent directories)",
		Path:    path,
	}
}

func NoSuchDirectory(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeNoSuchDirectory,
		Message: "no such directory",
		Path:    path,
		Err:     err,
	}
}

func CorruptIndex(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeCorruptIndex,
		Message: "cannot parse persisted state",
		Path:    path,
		Err:     err,
	}
}

func WriteFailed(path string, err error) *Error {
	return &Error{
		Type:    ErrorTypeWriteFailed,
		Message: "cannot persist state",
		Path:    path,
		Err:     err,
	}
}

// DeletionConflict carries both deletion sets in Details.
func DeletionConflict(ours, theirs []string) *Error {
	return &Error{
		Type:    ErrorTypeDeletionConflict,
		Message: "branches deleted different entries",
		Details: map[string][]string{
			"ours":   ours,
			"theirs": theirs,
		},
	}
}

func NoSuchEntry(path string) *Error {
	return &Error{
		Type:    ErrorTypeNoSuchEntry,
		Message: "no such entry",
		Path:    path,
	}
}

func InvalidPath(path, reason string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidPath,
		Message: reason,
		Path:    path,
	}
}

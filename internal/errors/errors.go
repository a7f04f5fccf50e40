package errors

import (
	"errors"
	"strings"
)

// Codes classify failures. The command layer copies them into the
// envelope's code field and the API maps them to HTTP statuses.
const (
	ErrConfig     = "CONFIG"
	ErrValidation = "VALIDATION"
	ErrNotFound   = "NOT_FOUND"
	ErrState      = "STATE"
	ErrSSH        = "SSH"
	ErrExec       = "EXEC"
	ErrStore      = "STORE"
)

// Error is a failure a person has to act on. It prints as
//
//	✗ <what failed>
//
//	  <the underlying cause>
//
//	  <what to do about it>
//
// with the last two blocks left out when empty.
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New returns an Error with no cause.
func New(code, message, suggestion string) *Error {
	return &Error{Code: code, Message: message, Suggestion: suggestion}
}

// WrapWithCode returns an Error explaining err.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{Code: code, Message: message, Suggestion: suggestion, Cause: err}
}

// Validation reports bad input.
func Validation(message string) *Error {
	return New(ErrValidation, message, "")
}

func (e *Error) Error() string {
	blocks := []string{"✗ " + e.Message}
	if e.Cause != nil {
		blocks = append(blocks, "  "+e.Cause.Error())
	}
	if e.Suggestion != "" {
		blocks = append(blocks, "  "+e.Suggestion)
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

func (e *Error) Unwrap() error { return e.Cause }

// CodeOf returns the code of the outermost Error in err's chain, or ""
// when there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether the outermost Error in err's chain has code.
func IsCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Summary flattens err to one line for an envelope's error field:
// messages joined by ": " down the chain, suggestions dropped.
func Summary(err error) string {
	var parts []string
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			parts = append(parts, strings.TrimSpace(err.Error()))
			break
		}
		if len(parts) == 0 || parts[len(parts)-1] != e.Message {
			parts = append(parts, e.Message)
		}
		err = e.Cause
	}
	return strings.Join(parts, ": ")
}

// Is and As forward to the standard library so callers need one import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// Package errs holds the error taxonomy shared by the translation layer and
// the dispatch layer. The public core package re-exports everything here.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownField        = errors.New("unknown field")
	ErrNotDeclaredField    = fmt.Errorf("%w: not declared", ErrUnknownField)
	ErrInvalidValue        = errors.New("invalid value")
	ErrInvalidArity        = errors.New("invalid arity")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidArgsParams   = errors.New("invalid args params")
	ErrNoFieldsToUpdate    = errors.New("no fields to update")
	ErrIndexAlreadyExists  = errors.New("index already exists")
	ErrInvalidIndexName    = errors.New("invalid index name")
	ErrConnectionExhausted = errors.New("connection exhausted")
	ErrDoesNotExist        = errors.New("does not exist")
)

// Error is a usage or data error. Kind is one of the sentinel errors above
// and is what errors.Is matches against.
type Error struct {
	Kind   error
	Field  string
	Fields []string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())

	if e.Field != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Field)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if len(e.Fields) != 0 {
		sb.WriteString(" (valid fields: ")
		sb.WriteString(strings.Join(e.Fields, ", "))
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an *Error of the given kind for field.
func New(kind error, field, format string, args ...any) *Error {
	return &Error{Kind: kind, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind carrying err as its cause.
func Wrap(kind error, field string, err error) *Error {
	return &Error{Kind: kind, Field: field, Err: err}
}

// NotDeclared reports a field missing from the schema along with the names
// that would have been accepted.
func NotDeclared(field string, valid []string) *Error {
	return &Error{Kind: ErrNotDeclaredField, Field: field, Fields: valid}
}

// TransientError marks a failure as retryable. Collection handles that are
// not backed by the mongo driver use it to opt into the retry path.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a *TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err was explicitly marked transient.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

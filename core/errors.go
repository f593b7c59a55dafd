package core

import (
	"github.com/dosco/mongodoc/core/internal/errs"
)

// Error is returned for every usage and data error. Use errors.Is with one
// of the Err* values below to tell them apart, errors.As to get the field.
type Error = errs.Error

// TransientError marks a retryable failure. See Transient.
type TransientError = errs.TransientError

var (
	ErrUnknownField        = errs.ErrUnknownField
	ErrNotDeclaredField    = errs.ErrNotDeclaredField
	ErrInvalidValue        = errs.ErrInvalidValue
	ErrInvalidArity        = errs.ErrInvalidArity
	ErrValidation          = errs.ErrValidation
	ErrInvalidArgsParams   = errs.ErrInvalidArgsParams
	ErrNoFieldsToUpdate    = errs.ErrNoFieldsToUpdate
	ErrIndexAlreadyExists  = errs.ErrIndexAlreadyExists
	ErrInvalidIndexName    = errs.ErrInvalidIndexName
	ErrConnectionExhausted = errs.ErrConnectionExhausted
	ErrDoesNotExist        = errs.ErrDoesNotExist
)

// Transient marks err as retryable. Collection implementations that are not
// backed by the mongo driver use it so failed calls go through the retry
// and reconnect path.
func Transient(err error) error {
	return errs.Transient(err)
}

package services

import (
	"errors"
	"fmt"

	"github.com/sourcemarket/sourcemarket-api/workflow"
	"gorm.io/gorm"
)

// Kind classifies a service failure so handlers can pick a status code
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindAuthorization
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindStore:
		return "store"
	default:
		return "unknown"
	}
}

// Error is returned by every service operation that fails
type Error struct {
	Kind    Kind
	Code    string // machine readable, e.g. ORDER_NOT_FOUND
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ValidationError(code, message string, details any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Details: details}
}

func NotFoundError(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func AuthorizationError(message string) *Error {
	return &Error{Kind: KindAuthorization, Code: "FORBIDDEN", Message: message}
}

// StoreError wraps a persistence failure. The cause is logged by the
// handler, never shown to clients.
func StoreError(message string, err error) *Error {
	return &Error{Kind: KindStore, Code: "DATABASE_ERROR", Message: message, Err: err}
}

// KindOf returns the kind of err, or 0 when err is not a service error
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return 0
}

// storeOrNotFound maps gorm's not-found to NotFound and everything else to Store
func storeOrNotFound(err error, notFoundCode, notFoundMessage, storeMessage string) *Error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFoundError(notFoundCode, notFoundMessage)
	}
	return StoreError(storeMessage, err)
}

// transitionError turns a rejected workflow change into a validation error
func transitionError(err error) *Error {
	code := "INVALID_TRANSITION"
	switch {
	case errors.Is(err, workflow.ErrUnknownStatus):
		code = "INVALID_STATUS"
	case errors.Is(err, workflow.ErrInvariant):
		code = "INVALID_STATE"
	}
	return &Error{Kind: KindValidation, Code: code, Message: err.Error(), Err: err}
}

// Package errs classifies failures raised by the state stores so callers can
// tell a rejected command apart from a missing entity or a failed collaborator.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the category of a failure.
type Type string

const (
	TypeValidation Type = "VALIDATION"
	TypeNotFound   Type = "NOT_FOUND"
	TypeExternal   Type = "EXTERNAL"
	TypeSuperseded Type = "SUPERSEDED"
	TypeInternal   Type = "INTERNAL"
)

var (
	ErrInvalid    = errors.New("invalid input")
	ErrNotFound   = errors.New("not found")
	ErrExternal   = errors.New("external call failed")
	ErrSuperseded = errors.New("superseded by a newer command")
)

// Error carries the category, the operation that failed and the affected resource.
type Error struct {
	Type     Type
	Op       string
	Resource string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	switch {
	case e.Op != "" && e.Resource != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Resource, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's category so errors.Is(err, ErrNotFound)
// works without exposing *Error to callers.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalid:
		return e.Type == TypeValidation
	case ErrNotFound:
		return e.Type == TypeNotFound
	case ErrExternal:
		return e.Type == TypeExternal
	case ErrSuperseded:
		return e.Type == TypeSuperseded
	}
	return false
}

func NotFound(op, resource string) error {
	return &Error{Type: TypeNotFound, Op: op, Resource: resource, Message: "not found"}
}

func Invalid(op, message string) error {
	return &Error{Type: TypeValidation, Op: op, Message: message}
}

// External wraps a collaborator failure. A nil cause yields nil.
func External(op, resource string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Type: TypeExternal, Op: op, Resource: resource, Cause: cause}
}

func Superseded(op, resource string) error {
	return &Error{Type: TypeSuperseded, Op: op, Resource: resource, Message: "result discarded, superseded by a newer command"}
}

// TypeOf reports the category of err, TypeInternal when it is not classified.
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	switch {
	case errors.Is(err, ErrInvalid):
		return TypeValidation
	case errors.Is(err, ErrNotFound):
		return TypeNotFound
	case errors.Is(err, ErrExternal):
		return TypeExternal
	case errors.Is(err, ErrSuperseded):
		return TypeSuperseded
	}
	return TypeInternal
}

// HTTPStatus maps err to the response code used by the HTTP surface.
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeExternal:
		return http.StatusBadGateway
	case TypeSuperseded:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

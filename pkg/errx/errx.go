package errx

import (
	"errors"
	"fmt"
	"net/http"
)

// Type classifies an error for transport mapping and logging
type Type string

const (
	TypeValidation    Type = "VALIDATION"
	TypeNotFound      Type = "NOT_FOUND"
	TypeConflict      Type = "CONFLICT"
	TypeAuthorization Type = "AUTHORIZATION"
	TypeBusiness      Type = "BUSINESS"
	TypeInternal      Type = "INTERNAL"
	TypeExternal      Type = "EXTERNAL"
	TypeUnavailable   Type = "UNAVAILABLE"
)

// Error is the structured error carried across service boundaries
type Error struct {
	Code       string         `json:"code"`
	Type       Type           `json:"type"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on code so registry errors can be compared with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithDetail attaches a key/value detail and returns the same error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithError sets the underlying cause
func (e *Error) WithError(err error) *Error {
	e.Err = err
	return e
}

// New creates an ad-hoc error that does not belong to a registry
func New(message string, errType Type) *Error {
	return &Error{
		Code:       string(errType),
		Type:       errType,
		Message:    message,
		HTTPStatus: statusForType(errType),
	}
}

// Wrap wraps err with a message. Registry errors keep their code and status.
func Wrap(err error, message string, errType Type) *Error {
	var inner *Error
	if errors.As(err, &inner) {
		return &Error{
			Code:       inner.Code,
			Type:       inner.Type,
			Message:    message,
			HTTPStatus: inner.HTTPStatus,
			Err:        err,
		}
	}
	e := New(message, errType)
	e.Err = err
	return e
}

// IsType reports whether err (or anything it wraps) is an *Error of the given type
func IsType(err error, errType Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}
	return false
}

// As extracts the outermost *Error from the chain
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func statusForType(t Type) int {
	switch t {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeAuthorization:
		return http.StatusForbidden
	case TypeBusiness:
		return http.StatusUnprocessableEntity
	case TypeExternal:
		return http.StatusBadGateway
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

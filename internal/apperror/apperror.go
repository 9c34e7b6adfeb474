// Package apperror defines the classified errors raised by the social core
// and carried to clients in response envelopes.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the coarse error class a client branches on first.
type Kind string

const (
	KindMalformed       Kind = "MALFORMED"
	KindUnknownEndpoint Kind = "UNKNOWN_ENDPOINT"
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindConflict        Kind = "CONFLICT"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindInternal        Kind = "INTERNAL"
)

// Local codes narrow a Kind down to the exact failure cause.
const (
	CodeSelf               = "SELF"
	CodeAlreadyFriends     = "ALREADY_FRIENDS"
	CodeAlreadyRequested   = "ALREADY_REQUESTED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeRequestNotFound    = "REQUEST_NOT_FOUND"
	CodeFriendshipNotFound = "FRIENDSHIP_NOT_FOUND"
	CodeNotFriends         = "NOT_FRIENDS"
	CodeContentLength      = "CONTENT_LENGTH"
	CodeSchema             = "SCHEMA"
)

// Error is a classified failure. Field names the request field a reference
// error came from, when there is one. Details is client-visible.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Details any
	Err     error
}

// FieldError describes one failed rule on a request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.WireCode(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.WireCode(), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WireCode is "KIND" or "KIND/CODE".
func (e *Error) WireCode() string {
	if e.Code == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + "/" + e.Code
}

// Is matches another *Error with the same kind and code, so sentinel-style
// comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// OnField returns a copy of e tagged with the request field it refers to.
func (e *Error) OnField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// WithDetails returns a copy of e carrying structured details for the client.
func (e *Error) WithDetails(details any) *Error {
	c := *e
	c.Details = details
	return &c
}

// Internal wraps an unexpected failure. The cause stays server side.
func Internal(err error) *Error {
	return Wrap(err, KindInternal, "", "internal error")
}

// As extracts an *Error from err, classifying anything else as internal.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

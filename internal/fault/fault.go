// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

// Package fault classifies errors into the kinds surfaced to API clients.
//
// A typed error carries a Kind and one or more client-safe messages. Errors
// without a kind are internal: their cause is kept for logs while clients
// only see "Something went wrong in the <component> service".
package fault

import (
	"errors"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Kind is an error category mapped to an HTTP status.
type Kind string

// Error kinds.
const (
	KindBadRequest      Kind = "bad_request"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindTooManyRequests Kind = "too_many_requests"
	KindInternal        Kind = "internal"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Messages are safe to show to clients.
type Error struct {
	Kind     Kind
	Messages []string
	// List is set for validation failures, which are always reported as an array.
	List  bool
	cause error
}

func (e *Error) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, code string, messages []string, cause error) error {
	return oops.Code(code).
		With("kind", string(kind)).
		Wrap(&Error{Kind: kind, Messages: messages, cause: cause})
}

// BadRequest returns a 400 error.
func BadRequest(code, message string) error {
	return newError(KindBadRequest, code, []string{message}, nil)
}

// Invalid returns a 400 error listing every validation failure.
func Invalid(code string, messages []string) error {
	return oops.Code(code).
		With("kind", string(KindBadRequest)).
		Wrap(&Error{Kind: KindBadRequest, Messages: messages, List: true})
}

// Unauthorized returns a 401 error.
func Unauthorized(code, message string) error {
	return newError(KindUnauthorized, code, []string{message}, nil)
}

// Forbidden returns a 403 error.
func Forbidden(code, message string) error {
	return newError(KindForbidden, code, []string{message}, nil)
}

// NotFound returns a 404 error.
func NotFound(code, message string) error {
	return newError(KindNotFound, code, []string{message}, nil)
}

// TooManyRequests returns a 429 error.
func TooManyRequests(code, message string) error {
	return newError(KindTooManyRequests, code, []string{message}, nil)
}

// Wrap classifies err for the named component. Errors that already carry a
// kind are returned unchanged; anything else becomes an internal error.
func Wrap(err error, component string) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return oops.In(component).
		Code("INTERNAL").
		With("kind", string(KindInternal)).
		Wrap(&Error{
			Kind:     KindInternal,
			Messages: []string{InternalMessage(component)},
			cause:    err,
		})
}

// InternalMessage is the client message for unclassified failures.
func InternalMessage(component string) string {
	return "Something went wrong in the " + component + " service"
}

// KindOf returns the kind of err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Messages returns the client-safe messages for err. Unclassified errors
// yield the generic internal message for component.
func Messages(err error, component string) []string {
	var fe *Error
	if errors.As(err, &fe) && len(fe.Messages) > 0 {
		return fe.Messages
	}
	return []string{InternalMessage(component)}
}

// Message returns the client payload for err: the list of messages for
// validation failures, otherwise a single string.
func Message(err error, component string) any {
	var fe *Error
	if errors.As(err, &fe) && fe.List {
		return fe.Messages
	}
	return strings.Join(Messages(err, component), "; ")
}

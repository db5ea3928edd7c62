// Package errors is the error taxonomy shared by the API, the feed
// controller and the clients. Every failure a user can act on carries one
// of a small set of codes; the code decides the HTTP status on the server
// and whether the client offers a retry.
//
// Services return typed errors:
//
//	return errors.ValidationWithDetails("message contains blocked words", matches)
//
// Callers match on the code with the standard library:
//
//	if stderrors.Is(err, errors.ErrWrite) {
//	    // keep the draft, offer a retry
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code. It is part of the HTTP API.
type Code string

const (
	CodeValidation   Code = "VALIDATION"
	CodeNotFound     Code = "NOT_FOUND"
	CodeLookupFailed Code = "LOOKUP_FAILED"
	CodeWriteFailed  Code = "WRITE_FAILED"
	CodeReadFailed   Code = "READ_FAILED"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeInternal     Code = "INTERNAL"
)

type codeInfo struct {
	status    int
	retryable bool
}

var codes = map[Code]codeInfo{
	CodeValidation:   {status: http.StatusBadRequest},
	CodeNotFound:     {status: http.StatusNotFound},
	CodeLookupFailed: {status: http.StatusBadGateway, retryable: true},
	CodeWriteFailed:  {status: http.StatusServiceUnavailable, retryable: true},
	CodeReadFailed:   {status: http.StatusServiceUnavailable, retryable: true},
	CodeRateLimited:  {status: http.StatusTooManyRequests, retryable: true},
	CodeInternal:     {status: http.StatusInternalServerError},
}

// HTTPStatus is the response status for c. Unknown codes are 500.
func (c Code) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// CodeForStatus maps a status received from the API back to a code, so
// client adapters can rebuild the taxonomy on their side of the wire.
// Statuses shared by several codes (503) map to fallback.
func CodeForStatus(status int, fallback Code) Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusBadGateway:
		return CodeLookupFailed
	}
	return fallback
}

// Error is a coded error. Details is sent to clients as-is, so it must be
// JSON encodable.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so the sentinels below work
// with errors.Is regardless of message or details.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPStatus is the response status for the error's code.
func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// Retryable reports whether repeating the same action may succeed.
func (e *Error) Retryable() bool { return codes[e.Code].retryable }

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(details any) *Error {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// Sentinels for errors.Is.
var (
	ErrValidation  = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNotFound    = &Error{Code: CodeNotFound, Message: "not found"}
	ErrLookup      = &Error{Code: CodeLookupFailed, Message: "song lookup failed"}
	ErrWrite       = &Error{Code: CodeWriteFailed, Message: "write failed"}
	ErrRead        = &Error{Code: CodeReadFailed, Message: "read failed"}
	ErrRateLimited = &Error{Code: CodeRateLimited, Message: "rate limited"}
)

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// ValidationWithDetails carries per-field messages or blocked words.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func NotFoundf(format string, args ...any) *Error {
	return NotFound(fmt.Sprintf(format, args...))
}

// Lookup wraps a song catalog failure.
func Lookup(err error) *Error {
	return ErrLookup.WithCause(err)
}

// Write wraps a failed create or like toggle.
func Write(msg string, err error) *Error {
	return Wrap(err, CodeWriteFailed, msg)
}

// Read wraps a failed page query or subscription.
func Read(msg string, err error) *Error {
	return Wrap(err, CodeReadFailed, msg)
}

func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

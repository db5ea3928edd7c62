package spotify

import (
	"errors"
	"fmt"

	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

// ErrLookup matches every failure returned by the client.
var ErrLookup = domainerrors.ErrLookup

// Causes carried inside an *Error.
var (
	ErrUnauthorized = errors.New("spotify: credentials rejected")
	ErrRateLimited  = errors.New("spotify: rate limited by server")
	ErrServer       = errors.New("spotify: server error")
	ErrNoCredential = errors.New("spotify: client id and secret are not configured")
)

// Error wraps a failure with the operation that hit it.
type Error struct {
	Op    string // "token" or "search"
	Query string
	Err   error
}

func (e *Error) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("spotify %s [%q]: %v", e.Op, e.Query, e.Err)
	}
	return fmt.Sprintf("spotify %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the cause and the lookup sentinel.
func (e *Error) Unwrap() []error {
	return []error{e.Err, ErrLookup}
}

func wrapError(op, query string, err error) error {
	return &Error{Op: op, Query: query, Err: err}
}

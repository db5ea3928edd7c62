package store

import (
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

// Sentinel errors shared by every letter store backend.
var (
	ErrLetterNotFound = domainerrors.NotFound("letter not found")
	ErrInvalidCursor  = domainerrors.Validation("cursor does not belong to this filter and sort")
)

// ErrHubClosed is returned when subscribing after the store closed.
var ErrHubClosed = domainerrors.Read("store is closed", nil)

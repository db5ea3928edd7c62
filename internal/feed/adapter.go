// Package feed is the client-side feed of letters: paging, live merge,
// local name search and optimistic likes, plus the letter composer.
//
// A Controller runs against any Adapter: the in-process stores or the HTTP
// client. Its methods block on the adapter and are safe for concurrent use;
// the lock is never held across an adapter call, and results that arrive
// after the filter or sort changed are dropped by epoch.
package feed

import (
	"context"
	"errors"

	"github.com/armyletters/letters-server/internal/domain"
)

// Adapter is the letter store as the feed sees it.
type Adapter interface {
	Create(ctx context.Context, d domain.Draft) (string, error)
	GetLetter(ctx context.Context, letterID string) (*domain.Letter, error)
	QueryPage(ctx context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error)
	ToggleLike(ctx context.Context, letterID, identityID string, currentlyLiked bool) (*domain.Letter, error)
	Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error)
}

// LikedStore is the identity-scoped set of liked letter ids.
// identity.LikedSet implements it.
type LikedStore interface {
	Has(letterID string) bool
	Set(letterID string, liked bool) bool
}

// ErrClosed is returned by operations on a closed Controller or Composer.
var ErrClosed = errors.New("feed: closed")

// ErrSubmitting is returned by Composer.Submit while an earlier submission
// has not finished.
var ErrSubmitting = errors.New("feed: submission in progress")

// memoryLiked is the LikedStore used when none is configured.
type memoryLiked struct {
	ids map[string]struct{}
}

func (m *memoryLiked) Has(letterID string) bool {
	_, ok := m.ids[letterID]
	return ok
}

func (m *memoryLiked) Set(letterID string, liked bool) bool {
	if m.Has(letterID) == liked {
		return false
	}
	if liked {
		m.ids[letterID] = struct{}{}
	} else {
		delete(m.ids, letterID)
	}
	return true
}

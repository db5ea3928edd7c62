// Package store persists letters and serves paginated, live feeds over them.
package store

import (
	"context"

	"github.com/armyletters/letters-server/internal/domain"
)

// LetterStore is the persistence surface shared by the Badger store and the
// SQLite store in the sqlite subpackage.
type LetterStore interface {
	// Lifecycle
	Close() error
	SetEventEmitter(emitter EventEmitter)
	SetSearchIndexer(indexer SearchIndexer)
	SetValidator(v Validator)
	Hub() *Hub

	// Letters
	CreateLetter(ctx context.Context, d domain.Draft) (*domain.Letter, error)
	Create(ctx context.Context, d domain.Draft) (string, error)
	GetLetter(ctx context.Context, letterID string) (*domain.Letter, error)
	QueryPage(ctx context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error)
	ToggleLike(ctx context.Context, letterID, identityID string, currentlyLiked bool) (*domain.Letter, error)
	SetLike(ctx context.Context, letterID, identityID string, liked bool) (*domain.Letter, error)
	Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error)

	// Maintenance
	ListAllLetters(ctx context.Context) ([]*domain.Letter, error)
	CountLetters(ctx context.Context) (int, error)
	ImportLetters(ctx context.Context, letters []*domain.Letter) (int, error)
	Backfill(ctx context.Context) (*BackfillResult, error)
}

var _ LetterStore = (*Store)(nil)

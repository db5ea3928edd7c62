// Package service holds the business logic behind the letters API: creation
// with cover placeholders, paging, likes, search, share links and cards.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/media/card"
	"github.com/armyletters/letters-server/internal/profanity"
	"github.com/armyletters/letters-server/internal/share"
	"github.com/armyletters/letters-server/internal/store"
)

// CoverHasher computes a placeholder for an album cover URL.
type CoverHasher interface {
	BlurHash(ctx context.Context, url string) (string, error)
}

// Checker is the profanity check used for inline feedback.
type Checker interface {
	Check(text string) profanity.Result
}

// ShareResult bundles everything a client needs to share a letter.
type ShareResult struct {
	Links share.Links `json:"links"`
	Meta  share.Meta  `json:"meta"`
}

// LetterService orchestrates letter operations on top of the store.
type LetterService struct {
	store   store.LetterStore
	covers  CoverHasher
	cards   *card.Cache
	links   *share.Builder
	checker Checker
	logger  *slog.Logger
}

// NewLetterService creates a letter service. covers and cards may be nil:
// letters are then stored without a cover placeholder and cards are
// rendered on every request.
func NewLetterService(
	st store.LetterStore,
	covers CoverHasher,
	cards *card.Cache,
	links *share.Builder,
	checker Checker,
	logger *slog.Logger,
) *LetterService {
	if checker == nil {
		checker = profanity.Default
	}
	return &LetterService{
		store:   st,
		covers:  covers,
		cards:   cards,
		links:   links,
		checker: checker,
		logger:  logger,
	}
}

// Create stores a new letter. When a song is attached its cover placeholder
// is computed first; failing to fetch the cover never fails the letter.
func (s *LetterService) Create(ctx context.Context, d domain.Draft) (*domain.Letter, error) {
	if d.Track != nil {
		t := *d.Track
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, domainerrors.ValidationWithDetails("invalid song", map[string]string{
				"spotify_track": "song must have an id",
			})
		}
		if t.CoverBlurHash == "" && t.AlbumCover != "" && s.covers != nil {
			hash, err := s.covers.BlurHash(ctx, t.AlbumCover)
			if err != nil {
				s.logger.Warn("cover placeholder unavailable",
					"track_id", t.ID,
					"url", t.AlbumCover,
					"error", err,
				)
			}
			t.CoverBlurHash = hash
		}
		d.Track = &t
	}

	letter, err := s.store.CreateLetter(ctx, d)
	if err != nil {
		return nil, err
	}

	s.logger.Info("letter created",
		"id", letter.ID,
		"member", letter.Member,
		"has_song", letter.Track != nil,
	)
	return letter, nil
}

// Get returns one letter.
func (s *LetterService) Get(ctx context.Context, id string) (*domain.Letter, error) {
	return s.store.GetLetter(ctx, id)
}

// Page returns one page of the feed for q.
func (s *LetterService) Page(ctx context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error) {
	return s.store.QueryPage(ctx, q, cursor, limit)
}

// ToggleLike flips identityID's like on a letter from the state the caller
// last saw. A stale currentlyLiked is harmless: the set never double counts.
func (s *LetterService) ToggleLike(ctx context.Context, id, identityID string, currentlyLiked bool) (*domain.Letter, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, domainerrors.ValidationWithDetails("identity required", map[string]string{
			"identity_id": "identity_id is required",
		})
	}
	letter, err := s.store.ToggleLike(ctx, id, identityID, currentlyLiked)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("like toggled",
		"id", id,
		"liked", !currentlyLiked,
		"likes", letter.Likes,
	)
	return letter, nil
}

// Subscribe forwards to the store's live subscriptions.
func (s *LetterService) Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error) {
	return s.store.Subscribe(ctx, q, onChange)
}

// CheckText runs the profanity filter for inline feedback.
func (s *LetterService) CheckText(text string) profanity.Result {
	return s.checker.Check(text)
}

// Share returns the share links and page metadata of a letter.
func (s *LetterService) Share(ctx context.Context, id string) (*ShareResult, error) {
	letter, err := s.store.GetLetter(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ShareResult{
		Links: s.links.Links(letter),
		Meta:  s.links.Meta(letter),
	}, nil
}

// Meta returns the Open Graph metadata of a letter page.
func (s *LetterService) Meta(ctx context.Context, id string) (*domain.Letter, share.Meta, error) {
	letter, err := s.store.GetLetter(ctx, id)
	if err != nil {
		return nil, share.Meta{}, err
	}
	return letter, s.links.Meta(letter), nil
}

// Card returns the PNG card of a letter, rendering it on first use.
// Cards only show fields that never change, so a cached card stays valid.
func (s *LetterService) Card(ctx context.Context, id string) ([]byte, *domain.Letter, error) {
	letter, err := s.store.GetLetter(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if s.cards != nil {
		data, err := s.cards.Get(id)
		if err == nil {
			return data, letter, nil
		}
		if !errors.Is(err, card.ErrNotCached) {
			s.logger.Warn("card cache read failed", "id", id, "error", err)
		}
	}

	data, err := card.RenderPNG(letter)
	if err != nil {
		return nil, nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "render card")
	}

	if s.cards != nil {
		if err := s.cards.Save(id, data); err != nil {
			s.logger.Warn("card cache write failed", "id", id, "error", err)
		}
	}
	return data, letter, nil
}

package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

// maxSongQueryLength bounds the query forwarded to the catalog.
const maxSongQueryLength = 100

// SongSearcher looks up tracks in the music catalog.
type SongSearcher interface {
	Search(ctx context.Context, query string) ([]domain.Track, error)
}

// SongService proxies catalog searches for the compose form.
type SongService struct {
	searcher SongSearcher
	logger   *slog.Logger
}

// NewSongService creates a song service.
func NewSongService(searcher SongSearcher, logger *slog.Logger) *SongService {
	return &SongService{searcher: searcher, logger: logger}
}

// Search returns roster tracks matching query. Blank queries return an
// empty list; failures are lookup errors.
func (s *SongService) Search(ctx context.Context, query string) ([]domain.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Track{}, nil
	}
	if utf8.RuneCountInString(query) > maxSongQueryLength {
		return nil, domainerrors.Validationf("song query is longer than %d characters", maxSongQueryLength)
	}

	tracks, err := s.searcher.Search(ctx, query)
	if err != nil {
		s.logger.Warn("song lookup failed", "query", query, "error", err)
		return nil, err
	}
	if tracks == nil {
		tracks = []domain.Track{}
	}
	return tracks, nil
}

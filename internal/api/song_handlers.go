package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

func (s *Server) registerSongRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchSongs",
		Method:      http.MethodGet,
		Path:        "/api/v1/songs/search",
		Summary:     "Search songs",
		Description: "Searches the music catalog, keeping only tracks by the group and its members",
		Tags:        []string{"Songs"},
		Middlewares: huma.Middlewares{s.rateLimited(s.songLimiter)},
	}, s.handleSearchSongs)
}

// SearchSongsInput contains the song query.
type SearchSongsInput struct {
	Query string `query:"q" doc:"Song or artist text"`
}

// SearchSongsResponse lists matching tracks.
type SearchSongsResponse struct {
	Tracks []domain.Track `json:"tracks"`
}

// SearchSongsOutput wraps the song search response.
type SearchSongsOutput struct {
	Body SearchSongsResponse
}

func (s *Server) handleSearchSongs(ctx context.Context, input *SearchSongsInput) (*SearchSongsOutput, error) {
	tracks, err := s.services.Songs.Search(ctx, input.Query)
	if err != nil {
		var domainErr *domainerrors.Error
		if !errors.As(err, &domainErr) {
			err = domainerrors.Lookup(err)
		}
		return nil, apiError(err)
	}
	return &SearchSongsOutput{Body: SearchSongsResponse{Tracks: tracks}}, nil
}

package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/media/card"
	"github.com/armyletters/letters-server/internal/search"
	"github.com/armyletters/letters-server/internal/service"
)

func (s *Server) registerLetterRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createLetter",
		Method:        http.MethodPost,
		Path:          "/api/v1/letters",
		Summary:       "Create letter",
		Description:   "Submits a new letter. The message is checked against the block-list before it is stored.",
		Tags:          []string{"Letters"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   huma.Middlewares{s.rateLimited(s.writeLimiter)},
	}, s.handleCreateLetter)

	huma.Register(s.api, huma.Operation{
		OperationID: "listLetters",
		Method:      http.MethodGet,
		Path:        "/api/v1/letters",
		Summary:     "List letters",
		Description: "Returns one page of the feed for a member filter and sort order",
		Tags:        []string{"Letters"},
	}, s.handleListLetters)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchLetters",
		Method:      http.MethodGet,
		Path:        "/api/v1/letters/search",
		Summary:     "Search letters",
		Description: "Full-text search over sender names, messages and songs",
		Tags:        []string{"Letters"},
	}, s.handleSearchLetters)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLetter",
		Method:      http.MethodGet,
		Path:        "/api/v1/letters/{id}",
		Summary:     "Get letter",
		Tags:        []string{"Letters"},
	}, s.handleGetLetter)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleLike",
		Method:      http.MethodPost,
		Path:        "/api/v1/letters/{id}/like",
		Summary:     "Toggle like",
		Description: "Flips the identity's like from the state the client last saw. Repeating a toggle never double counts.",
		Tags:        []string{"Letters"},
		Middlewares: huma.Middlewares{s.rateLimited(s.writeLimiter)},
	}, s.handleToggleLike)

	huma.Register(s.api, huma.Operation{
		OperationID: "shareLetter",
		Method:      http.MethodGet,
		Path:        "/api/v1/letters/{id}/share",
		Summary:     "Share links",
		Description: "Returns the deep link, social share URLs and page metadata of a letter",
		Tags:        []string{"Letters"},
	}, s.handleShareLetter)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLetterCard",
		Method:      http.MethodGet,
		Path:        "/api/v1/letters/{id}/card.png",
		Summary:     "Letter card image",
		Description: "Returns the letter rendered as a PNG card in its colour",
		Tags:        []string{"Letters"},
	}, s.handleGetLetterCard)
}

// LetterOutput contains a single letter.
type LetterOutput struct {
	Body *domain.Letter
}

// CreateLetterInput contains the letter draft.
type CreateLetterInput struct {
	Body domain.Draft
}

func (s *Server) handleCreateLetter(ctx context.Context, input *CreateLetterInput) (*LetterOutput, error) {
	letter, err := s.services.Letters.Create(ctx, input.Body)
	if err != nil {
		return nil, apiError(err)
	}
	return &LetterOutput{Body: letter}, nil
}

// ListLettersInput contains feed query parameters.
type ListLettersInput struct {
	Member string `query:"member" doc:"Member name, or all (default)"`
	Sort   string `query:"sort" doc:"newest (default), oldest or most-liked"`
	Cursor string `query:"cursor" doc:"Cursor from the previous page"`
	Limit  int    `query:"limit" minimum:"0" maximum:"100" doc:"Page size (0 for the server default)"`
}

// PageOutput contains one page of letters.
type PageOutput struct {
	Body *domain.Page
}

func (s *Server) handleListLetters(ctx context.Context, input *ListLettersInput) (*PageOutput, error) {
	q, err := parseQuery(input.Member, input.Sort)
	if err != nil {
		return nil, apiError(err)
	}

	page, err := s.services.Letters.Page(ctx, q, input.Cursor, input.Limit)
	if err != nil {
		return nil, apiError(err)
	}
	return &PageOutput{Body: page}, nil
}

// SearchLettersInput contains search parameters.
type SearchLettersInput struct {
	Query  string `query:"q" doc:"Search text; empty lists the newest letters"`
	Member string `query:"member" doc:"Restrict to one member"`
	Limit  int    `query:"limit" minimum:"0" maximum:"100"`
	Offset int    `query:"offset" minimum:"0"`
}

// SearchLettersOutput contains ranked letters.
type SearchLettersOutput struct {
	Body *service.SearchResult
}

func (s *Server) handleSearchLetters(ctx context.Context, input *SearchLettersInput) (*SearchLettersOutput, error) {
	if s.services.Search == nil {
		return nil, apiError(domainerrors.Read("search unavailable", nil))
	}

	filter, ok := domain.ParseFilter(input.Member)
	if !ok {
		return nil, apiError(domainerrors.Validationf("unknown member %q", input.Member))
	}

	result, err := s.services.Search.Search(ctx, search.SearchParams{
		Query:  input.Query,
		Member: filter.Member,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &SearchLettersOutput{Body: result}, nil
}

// LetterIDInput identifies a letter.
type LetterIDInput struct {
	ID string `path:"id" doc:"Letter ID"`
}

func (s *Server) handleGetLetter(ctx context.Context, input *LetterIDInput) (*LetterOutput, error) {
	letter, err := s.services.Letters.Get(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &LetterOutput{Body: letter}, nil
}

// ToggleLikeRequest is the like toggle body.
type ToggleLikeRequest struct {
	IdentityID string `json:"identity_id" minLength:"1" doc:"Client identity"`
	Liked      bool   `json:"liked" doc:"Whether the identity liked the letter before this toggle"`
}

// ToggleLikeInput contains the letter and toggle body.
type ToggleLikeInput struct {
	ID   string `path:"id" doc:"Letter ID"`
	Body ToggleLikeRequest
}

func (s *Server) handleToggleLike(ctx context.Context, input *ToggleLikeInput) (*LetterOutput, error) {
	letter, err := s.services.Letters.ToggleLike(ctx, input.ID, input.Body.IdentityID, input.Body.Liked)
	if err != nil {
		return nil, apiError(err)
	}
	return &LetterOutput{Body: letter}, nil
}

// ShareOutput contains share links.
type ShareOutput struct {
	Body *service.ShareResult
}

func (s *Server) handleShareLetter(ctx context.Context, input *LetterIDInput) (*ShareOutput, error) {
	result, err := s.services.Letters.Share(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &ShareOutput{Body: result}, nil
}

// CardInput identifies a card and carries the cache validator.
type CardInput struct {
	ID          string `path:"id" doc:"Letter ID"`
	IfNoneMatch string `header:"If-None-Match"`
}

// ImageOutput is a binary image response.
type ImageOutput struct {
	Status             int
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	CacheControl       string `header:"Cache-Control"`
	ETag               string `header:"ETag"`
	Body               []byte
}

func (s *Server) handleGetLetterCard(ctx context.Context, input *CardInput) (*ImageOutput, error) {
	data, letter, err := s.services.Letters.Card(ctx, input.ID)
	if err != nil {
		return nil, apiError(err)
	}

	etag := card.ETag(data)
	out := &ImageOutput{
		Status:             http.StatusOK,
		ContentType:        "image/png",
		ContentDisposition: fmt.Sprintf("inline; filename=%q", card.Filename(letter)),
		CacheControl:       CacheOneWeek,
		ETag:               etag,
	}
	if input.IfNoneMatch == etag {
		out.Status = http.StatusNotModified
		return out, nil
	}
	out.Body = data
	return out, nil
}

// parseQuery reads a member filter and sort order.
func parseQuery(member, sort string) (domain.Query, error) {
	filter, ok := domain.ParseFilter(member)
	if !ok {
		return domain.Query{}, domainerrors.ValidationWithDetails("invalid query", map[string]string{
			"member": fmt.Sprintf("unknown member %q", member),
		})
	}
	order, ok := domain.ParseSortOrder(sort)
	if !ok {
		return domain.Query{}, domainerrors.ValidationWithDetails("invalid query", map[string]string{
			"sort": fmt.Sprintf("unknown sort %q", sort),
		})
	}
	return domain.Query{Filter: filter, Sort: order}, nil
}

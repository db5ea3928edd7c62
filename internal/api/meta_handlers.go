package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/media/card"
	"github.com/armyletters/letters-server/internal/profanity"
)

func (s *Server) registerMemberRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listMembers",
		Method:      http.MethodGet,
		Path:        "/api/v1/members",
		Summary:     "List members",
		Description: "Returns the addressees a letter can be written to, plus the sort orders and card colours",
		Tags:        []string{"Letters"},
	}, s.handleListMembers)
}

func (s *Server) registerProfanityRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "checkProfanity",
		Method:      http.MethodPost,
		Path:        "/api/v1/profanity/check",
		Summary:     "Check text",
		Description: "Reports blocked words in a draft for inline feedback",
		Tags:        []string{"Letters"},
	}, s.handleCheckProfanity)
}

// ColorClass pairs a card class with its display colour.
type ColorClass struct {
	Class string `json:"class"`
	Hex   string `json:"hex"`
}

// MembersResponse lists feed vocabulary.
type MembersResponse struct {
	Members []domain.Member    `json:"members"`
	Sorts   []domain.SortOrder `json:"sorts"`
	Colors  []ColorClass       `json:"colors"`
}

// MembersOutput wraps the members response.
type MembersOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         MembersResponse
}

func (s *Server) handleListMembers(_ context.Context, _ *struct{}) (*MembersOutput, error) {
	colors := make([]ColorClass, 0, len(domain.ColorClasses))
	for _, c := range domain.ColorClasses {
		colors = append(colors, ColorClass{Class: c, Hex: card.Hex(c)})
	}
	return &MembersOutput{
		CacheControl: CacheOneDay,
		Body: MembersResponse{
			Members: domain.Members,
			Sorts:   domain.SortOrders,
			Colors:  colors,
		},
	}, nil
}

// CheckProfanityInput contains the text to check.
type CheckProfanityInput struct {
	Body struct {
		Text string `json:"text" maxLength:"2000" doc:"Draft text"`
	}
}

// CheckProfanityOutput contains the matched words.
type CheckProfanityOutput struct {
	Body profanity.Result
}

func (s *Server) handleCheckProfanity(_ context.Context, input *CheckProfanityInput) (*CheckProfanityOutput, error) {
	result := s.services.Letters.CheckText(input.Body.Text)
	if result.Matches == nil {
		result.Matches = []string{}
	}
	return &CheckProfanityOutput{Body: result}, nil
}

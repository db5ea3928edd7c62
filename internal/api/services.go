package api

import (
	"github.com/armyletters/letters-server/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Letters *service.LetterService
	Songs   *service.SongService
	Search  *service.SearchService // Optional: search routes report an error without it
}

package api

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/media/card"
	"github.com/armyletters/letters-server/internal/share"
	"github.com/armyletters/letters-server/internal/store"
)

func (s *Server) registerLetterPageRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getLetterPage",
		Method:      http.MethodGet,
		Path:        "/letter/{id}",
		Summary:     "Letter page",
		Description: "Returns an HTML page with Open Graph meta tags for a shared letter",
		Tags:        []string{"Web"},
	}, s.handleGetLetterPage)
}

// HTMLOutput is an HTML page response.
type HTMLOutput struct {
	Status       int
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type letterPage struct {
	Meta       share.Meta
	Letter     *domain.Letter
	Background string
}

var letterPageTemplate = template.Must(template.New("letter").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Meta.Title}}</title>
    <meta property="og:type" content="article">
    <meta property="og:site_name" content="{{.Meta.SiteName}}">
    <meta property="og:title" content="{{.Meta.Title}}">
    <meta property="og:description" content="{{.Meta.Description}}">
    <meta property="og:url" content="{{.Meta.URL}}">
    <meta property="og:image" content="{{.Meta.Image}}">
    <meta property="og:image:width" content="1200">
    <meta property="og:image:height" content="630">
    <meta name="twitter:card" content="summary_large_image">
    <meta name="twitter:title" content="{{.Meta.Title}}">
    <meta name="twitter:description" content="{{.Meta.Description}}">
    <meta name="twitter:image" content="{{.Meta.Image}}">
    <style>
        *{margin:0;padding:0;box-sizing:border-box}
        body{font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;background:#1a1025;color:#2b2233;min-height:100vh;display:flex;align-items:center;justify-content:center}
        .card{max-width:520px;width:90%;padding:32px 28px;border-radius:16px;box-shadow:0 8px 32px rgba(0,0,0,.5)}
        .to{font-size:.9rem;text-transform:uppercase;letter-spacing:.08em;margin-bottom:12px}
        .msg{font-size:1.1rem;line-height:1.6;white-space:pre-wrap;margin-bottom:20px}
        .from{font-weight:700}
        .song{margin-top:12px;font-size:.85rem}
    </style>
</head>
<body>
    <div class="card" style="background:{{.Background}}">
        <p class="to">To {{.Letter.Member}}</p>
        <p class="msg">{{.Letter.Message}}</p>
        <p class="from">{{.Letter.Name}}{{if .Letter.Country}}, {{.Letter.Country}}{{end}}</p>
        {{if .Letter.Track}}<p class="song">&#9835; {{.Letter.Track.Name}} - {{.Letter.Track.Artist}}</p>{{end}}
    </div>
</body>
</html>`))

var errorPageTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html><head><title>{{.Title}}</title><meta name="viewport" content="width=device-width,initial-scale=1">
<style>body{font-family:-apple-system,BlinkMacSystemFont,sans-serif;background:#1a1025;color:#e0e0e0;display:flex;align-items:center;justify-content:center;min-height:100vh}.card{max-width:400px;text-align:center;padding:32px}h1{color:#cf6679;margin-bottom:16px}</style>
</head><body><div class="card"><h1>{{.Title}}</h1><p>{{.Message}}</p></div></body></html>`))

func (s *Server) handleGetLetterPage(ctx context.Context, input *LetterIDInput) (*HTMLOutput, error) {
	letter, meta, err := s.services.Letters.Meta(ctx, input.ID)
	if errors.Is(err, store.ErrLetterNotFound) {
		return s.errorPage(http.StatusNotFound, "Letter Not Found", "This letter could not be found."), nil
	}
	if err != nil {
		s.logger.Error("failed to load letter page", "id", input.ID, "error", err)
		return s.errorPage(http.StatusInternalServerError, "Error", "Could not load this letter."), nil
	}

	var buf bytes.Buffer
	if err := letterPageTemplate.Execute(&buf, letterPage{
		Meta:       meta,
		Letter:     letter,
		Background: card.Hex(letter.ColorClass),
	}); err != nil {
		return nil, apiError(err)
	}

	return &HTMLOutput{
		Status:       http.StatusOK,
		ContentType:  "text/html; charset=utf-8",
		CacheControl: CacheNoStore,
		Body:         buf.Bytes(),
	}, nil
}

func (s *Server) errorPage(status int, title, message string) *HTMLOutput {
	var buf bytes.Buffer
	_ = errorPageTemplate.Execute(&buf, map[string]string{"Title": title, "Message": message})
	return &HTMLOutput{
		Status:       status,
		ContentType:  "text/html; charset=utf-8",
		CacheControl: CacheNoStore,
		Body:         buf.Bytes(),
	}
}

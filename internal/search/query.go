package search

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/text/cases"

	"github.com/armyletters/letters-server/internal/domain"
)

// Result size bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// SearchParams configures a letter search.
type SearchParams struct {
	Query  string
	Member domain.Member // empty = all members
	Limit  int
	Offset int
}

// SearchResult is one page of hits.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is a matching letter id with its relevance.
type SearchHit struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Name       string            `json:"name"`
	Member     string            `json:"member"`
	Likes      int               `json:"likes"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// IDs returns the hit ids in rank order.
func (r *SearchResult) IDs() []string {
	ids := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ID
	}
	return ids
}

// SearchLetters runs a full-text query over names, messages and songs.
// An empty query lists letters newest first.
func (s *SearchIndex) SearchLetters(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), limit, max(params.Offset, 0), false)
	if strings.TrimSpace(params.Query) == "" {
		req.SortBy([]string{"-timestamp", "-_id"})
	} else {
		req.SortBy([]string{"-_score", "-timestamp", "-_id"})
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("name")
		req.Highlight.AddField("message")
	}
	req.Fields = []string{"name", "member", "likes"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	out := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}
		if n, ok := hit.Fields["name"].(string); ok {
			h.Name = n
		}
		if m, ok := hit.Fields["member"].(string); ok {
			h.Member = m
		}
		if l, ok := hit.Fields["likes"].(float64); ok {
			h.Likes = int(l)
		}
		if len(hit.Fragments) > 0 {
			h.Highlights = make(map[string]string, len(hit.Fragments))
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					h.Highlights[field] = fragments[0]
				}
			}
		}
		out.Hits = append(out.Hits, h)
	}
	return out, nil
}

// buildSearchQuery combines the text match with the member filter.
//
// Name carries the most weight: exact token, one-edit typo, then prefix for
// type-ahead. Message and song words match through their analyzers.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	text := strings.TrimSpace(params.Query)
	if text != "" {
		folded := cases.Fold().String(text)

		nameMatch := bleve.NewMatchQuery(text)
		nameMatch.SetField("name")
		nameMatch.SetBoost(3.0)

		messageMatch := bleve.NewMatchQuery(text)
		messageMatch.SetField("message")
		messageMatch.SetBoost(1.0)

		songMatch := bleve.NewMatchQuery(text)
		songMatch.SetField("song")
		songMatch.SetBoost(0.7)

		textQueries := []query.Query{nameMatch, messageMatch, songMatch}

		if !strings.ContainsRune(folded, ' ') {
			fuzzy := bleve.NewFuzzyQuery(folded)
			fuzzy.SetFuzziness(1)
			fuzzy.SetField("name")
			fuzzy.SetBoost(0.8)
			textQueries = append(textQueries, fuzzy)

			if utf8.RuneCountInString(folded) >= 2 {
				prefix := bleve.NewPrefixQuery(folded)
				prefix.SetField("name")
				prefix.SetBoost(0.5)
				textQueries = append(textQueries, prefix)
			}
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.Member != "" {
		mq := bleve.NewTermQuery(string(params.Member))
		mq.SetField("member")
		queries = append(queries, mq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

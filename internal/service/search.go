package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/search"
	"github.com/armyletters/letters-server/internal/store"
)

// hydrateConcurrency bounds parallel letter reads when resolving hits.
const hydrateConcurrency = 8

// SearchResult is a ranked list of letters.
type SearchResult struct {
	Query   string           `json:"query"`
	Total   uint64           `json:"total"`
	TookMs  int64            `json:"took_ms"`
	Letters []*domain.Letter `json:"letters"`
}

// SearchService bridges the search index with the letter store. It also
// implements store.SearchIndexer so writes keep the index current.
type SearchService struct {
	index  *search.SearchIndex
	store  store.LetterStore
	logger *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(index *search.SearchIndex, store store.LetterStore, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:  index,
		store:  store,
		logger: logger,
	}
}

var _ store.SearchIndexer = (*SearchService)(nil)

// Search runs a full-text query and loads the matching letters in rank order.
// Hits whose letter has since disappeared are skipped.
func (s *SearchService) Search(ctx context.Context, params search.SearchParams) (*SearchResult, error) {
	params.Query = strings.TrimSpace(params.Query)
	if params.Member != "" && !params.Member.Valid() {
		return nil, domainerrors.Validationf("unknown member %q", params.Member)
	}

	res, err := s.index.SearchLetters(ctx, params)
	if err != nil {
		return nil, domainerrors.Read("search letters", err)
	}

	letters := make([]*domain.Letter, len(res.Hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i, hit := range res.Hits {
		g.Go(func() error {
			l, err := s.store.GetLetter(gctx, hit.ID)
			if errors.Is(err, store.ErrLetterNotFound) {
				s.logger.Debug("search hit without letter", "id", hit.ID)
				return nil
			}
			if err != nil {
				return err
			}
			letters[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domainerrors.Read("load search hits", err)
	}

	out := &SearchResult{
		Query:   params.Query,
		Total:   res.Total,
		TookMs:  res.TookMs,
		Letters: make([]*domain.Letter, 0, len(letters)),
	}
	for _, l := range letters {
		if l != nil {
			out.Letters = append(out.Letters, l)
		}
	}
	return out, nil
}

// IndexLetter indexes a single letter. Called after every store write.
func (s *SearchService) IndexLetter(ctx context.Context, l *domain.Letter) error {
	if err := s.index.IndexLetter(ctx, l); err != nil {
		return fmt.Errorf("index letter: %w", err)
	}
	s.logger.Debug("indexed letter", "id", l.ID)
	return nil
}

// DeleteLetter removes a letter from the index.
func (s *SearchService) DeleteLetter(ctx context.Context, letterID string) error {
	return s.index.DeleteLetter(ctx, letterID)
}

// Reindex rebuilds the index from every stored letter.
func (s *SearchService) Reindex(ctx context.Context) (int, error) {
	letters, err := s.store.ListAllLetters(ctx)
	if err != nil {
		return 0, err
	}

	if err := s.index.Rebuild(); err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}
	if err := s.index.IndexLetters(ctx, letters); err != nil {
		return 0, fmt.Errorf("index letters: %w", err)
	}

	s.logger.Info("search index rebuilt", "letters", len(letters))
	return len(letters), nil
}

// EnsureIndexed reindexes when the index is behind the store, e.g. after the
// mapping version changed and the index was recreated empty.
func (s *SearchService) EnsureIndexed(ctx context.Context) error {
	indexed, err := s.index.DocumentCount()
	if err != nil {
		return fmt.Errorf("count indexed: %w", err)
	}
	stored, err := s.store.CountLetters(ctx)
	if err != nil {
		return err
	}
	if indexed == uint64(stored) {
		return nil
	}

	s.logger.Info("search index out of date, reindexing",
		"indexed", indexed,
		"stored", stored,
	)
	_, err = s.Reindex(ctx)
	return err
}

// DocumentCount returns the number of indexed letters.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}

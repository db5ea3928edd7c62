// Package search is the full-text index over letter names, messages,
// countries and song titles, backed by Bleve.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/armyletters/letters-server/internal/domain"
)

// mappingVersion changes whenever buildIndexMapping does. An index on disk
// with another version is dropped and rebuilt empty; the search service
// then reindexes from the store.
const mappingVersion = "letters-2"

const (
	indexDir    = "search.bleve"
	versionFile = "search.version"
	batchSize   = 500
)

// SearchIndex is a Bleve index of letters. Methods are safe for concurrent
// use; Rebuild excludes everything else while it swaps the index.
type SearchIndex struct {
	path   string // empty for an in-memory index
	logger *slog.Logger

	mu    sync.RWMutex
	index bleve.Index
}

// Options configures the search index.
type Options struct {
	// DataPath is the directory holding the index. Empty keeps the index in
	// memory.
	DataPath string
	Logger   *slog.Logger
}

// NewSearchIndex opens the index under opts.DataPath, creating it when it is
// missing, unreadable or built with an older mapping.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &SearchIndex{logger: logger}

	if opts.DataPath == "" {
		index, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		s.index = index
		return s, nil
	}

	if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create search directory: %w", err)
	}
	s.path = filepath.Join(opts.DataPath, indexDir)
	versionPath := filepath.Join(opts.DataPath, versionFile)

	index, err := s.openCurrent(versionPath)
	if err != nil {
		s.logger.Info("creating search index", "path", s.path, "reason", err)
		if index, err = s.create(); err != nil {
			return nil, err
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			s.logger.Warn("failed to write search version file", "error", err)
		}
	}
	s.index = index
	return s, nil
}

var (
	errNoIndex      = errors.New("no index")
	errStaleMapping = errors.New("mapping version changed")
	errUnversioned  = errors.New("index has no version file")
)

// openCurrent opens the on-disk index if it exists and matches the mapping.
func (s *SearchIndex) openCurrent(versionPath string) (bleve.Index, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, errNoIndex
	}
	version, err := os.ReadFile(versionPath)
	switch {
	case err != nil:
		return nil, errUnversioned
	case string(version) != mappingVersion:
		return nil, fmt.Errorf("%w: %s -> %s", errStaleMapping, version, mappingVersion)
	}
	index, err := bleve.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	s.logger.Info("opened search index", "path", s.path)
	return index, nil
}

// create replaces whatever is at s.path with an empty index.
func (s *SearchIndex) create() (bleve.Index, error) {
	if s.path == "" {
		return bleve.NewMemOnly(buildIndexMapping())
	}
	if err := os.RemoveAll(s.path); err != nil {
		return nil, fmt.Errorf("remove old index: %w", err)
	}
	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return index, nil
}

// Close releases the index.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexLetter adds or replaces one letter.
func (s *SearchIndex) IndexLetter(_ context.Context, l *domain.Letter) error {
	doc := LetterToDocument(l)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexLetters indexes letters in fixed-size batches.
func (s *SearchIndex) IndexLetters(ctx context.Context, letters []*domain.Letter) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for chunk := range chunks(letters, batchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := s.index.NewBatch()
		for _, l := range chunk {
			doc := LetterToDocument(l)
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch of %d: %w", len(chunk), err)
		}
	}
	return nil
}

func chunks(letters []*domain.Letter, size int) func(func([]*domain.Letter) bool) {
	return func(yield func([]*domain.Letter) bool) {
		for len(letters) > 0 {
			n := min(size, len(letters))
			if !yield(letters[:n]) {
				return
			}
			letters = letters[n:]
		}
	}
}

// DeleteLetter removes a letter.
func (s *SearchIndex) DeleteLetter(_ context.Context, letterID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(letterID)
}

// DocumentCount returns the number of indexed letters.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild swaps in an empty index. Callers reindex afterwards.
func (s *SearchIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	index, err := s.create()
	if err != nil {
		return err
	}
	s.index = index
	s.logger.Info("search index emptied for rebuild", "path", s.path)
	return nil
}

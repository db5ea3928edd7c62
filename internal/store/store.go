package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/validation"
)

// EventEmitter receives change events (sse.Event values) after each
// committed write.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter discards events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(any) {}

// NewNoopEmitter returns an emitter that discards events.
func NewNoopEmitter() EventEmitter { return NoopEmitter{} }

// SearchIndexer mirrors writes into the search index. Stores call it after
// commit and only log its failures.
type SearchIndexer interface {
	IndexLetter(ctx context.Context, letter *domain.Letter) error
	DeleteLetter(ctx context.Context, letterID string) error
}

// NoopSearchIndexer is used until SetSearchIndexer is called.
type NoopSearchIndexer struct{}

func (NoopSearchIndexer) IndexLetter(context.Context, *domain.Letter) error { return nil }
func (NoopSearchIndexer) DeleteLetter(context.Context, string) error        { return nil }

// Validator checks drafts before they are written.
type Validator interface {
	Validate(s any) error
}

// Options tunes a Store. Zero values select defaults.
type Options struct {
	PageSize int // used when a caller passes limit <= 0
	LiveCap  int // head size pushed to live subscriptions
	Clock    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Store keeps letters and their sort indexes in Badger.
type Store struct {
	db       *badger.DB
	logger   *slog.Logger
	now      func() time.Time
	pageSize int

	emitter       EventEmitter
	searchIndexer SearchIndexer
	validator     Validator

	letterLocks letterLocks

	hub *Hub
}

// New opens the Badger database at path, or an in-memory one when path is
// empty. A nil emitter discards change events.
func New(path string, logger *slog.Logger, emitter EventEmitter, options ...Options) (*Store, error) {
	var o Options
	if len(options) > 0 {
		o = options[0]
	}
	o = o.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if emitter == nil {
		emitter = NoopEmitter{}
	}

	db, err := badger.Open(badgerOptions(path))
	if err != nil {
		return nil, fmt.Errorf("open letter store: %w", err)
	}

	s := &Store{
		db:            db,
		logger:        logger,
		now:           o.Clock,
		pageSize:      o.PageSize,
		emitter:       emitter,
		searchIndexer: NoopSearchIndexer{},
		validator:     validation.New(),
	}
	s.hub = NewHub(s.QueryPage, o.LiveCap, logger)

	if path == "" {
		logger.Debug("letter store opened in memory")
	} else {
		logger.Info("letter store opened", "driver", "badger", "path", path)
	}
	return s, nil
}

func badgerOptions(path string) badger.Options {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		return opts.WithInMemory(true)
	}
	return opts.WithSyncWrites(true).WithCompactL0OnClose(true)
}

// Close ends live subscriptions, then closes the database.
func (s *Store) Close() error {
	s.hub.Close()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close letter store: %w", err)
	}
	s.logger.Debug("letter store closed")
	return nil
}

// SetEventEmitter replaces the change event sink. nil discards events.
func (s *Store) SetEventEmitter(emitter EventEmitter) {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	s.emitter = emitter
}

// SetSearchIndexer wires the search service in once it exists; it needs the
// store to reindex from, so it cannot be passed to New.
func (s *Store) SetSearchIndexer(indexer SearchIndexer) {
	s.searchIndexer = indexer
}

// SetValidator replaces the draft validator, e.g. with one whose block
// list is hot-reloaded.
func (s *Store) SetValidator(v Validator) {
	s.validator = v
}

// Hub exposes live subscriptions.
func (s *Store) Hub() *Hub {
	return s.hub
}

// letterLocks serializes read-modify-write cycles on one letter. Badger's
// optimistic transactions would otherwise abort all but one of a burst of
// concurrent likes with ErrConflict.
type letterLocks [64]sync.Mutex

func (l *letterLocks) lock(letterID string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(letterID))
	m := &l[h.Sum32()%uint32(len(l))]
	m.Lock()
	return m.Unlock
}

func getJSON(txn *badger.Txn, key []byte, dest any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dest)
	})
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// exists reports whether key is present.
func (s *Store) exists(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

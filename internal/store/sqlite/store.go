// Package sqlite is the SQLite letter store, selected with STORE_DRIVER=sqlite.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/armyletters/letters-server/internal/store"
	"github.com/armyletters/letters-server/internal/validation"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var _ store.LetterStore = (*Store)(nil)

// Store provides SQLite-backed persistence for letters.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	pageSize int

	emitter       store.EventEmitter
	searchIndexer store.SearchIndexer
	validator     store.Validator
	hub           *store.Hub
}

// dsn builds a connection string whose pragmas apply to every pooled
// connection. Transactions take the write lock up front so concurrent like
// toggles queue on busy_timeout instead of failing to upgrade.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open creates a new SQLite store at the given path.
// It configures WAL mode, sets pragmas, and runs schema migrations.
func Open(path string, logger *slog.Logger, options ...store.Options) (*Store, error) {
	var o store.Options
	if len(options) > 0 {
		o = options[0]
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	// Run schema migration.
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	s := &Store{
		db:            db,
		logger:        logger,
		now:           o.Clock,
		pageSize:      o.PageSize,
		emitter:       store.NewNoopEmitter(),
		searchIndexer: store.NoopSearchIndexer{},
		validator:     validation.New(),
	}
	s.hub = store.NewHub(s.QueryPage, o.LiveCap, logger)

	logger.Info("SQLite database opened successfully", "path", path)
	return s, nil
}

// Close stops live subscriptions and closes the database connection.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

// SetEventEmitter sets the emitter used to broadcast letter changes.
func (s *Store) SetEventEmitter(emitter store.EventEmitter) {
	s.emitter = emitter
}

// SetSearchIndexer sets the search indexer used for maintaining the search index.
func (s *Store) SetSearchIndexer(indexer store.SearchIndexer) {
	s.searchIndexer = indexer
}

// SetValidator replaces the draft validator.
func (s *Store) SetValidator(v store.Validator) {
	s.validator = v
}

// Hub exposes live subscriptions.
func (s *Store) Hub() *store.Hub {
	return s.hub
}

// nullString returns a sql.NullString, NULL for the empty string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
